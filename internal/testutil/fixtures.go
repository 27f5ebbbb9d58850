package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"splithaus/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
// The password is "password123" hashed at MinCost to keep tests fast.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash fixture password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         fmt.Sprintf("Test User %d", nextID()),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateConnectedUser creates a user with a linked Splitwise identity and
// a stored credential.
func CreateConnectedUser(t *testing.T, db *gorm.DB, splitwiseID string) *models.User {
	t.Helper()

	user := CreateTestUser(t, db)
	expires := time.Now().Add(time.Hour)
	user.SplitwiseID = &splitwiseID
	user.SplitwiseAccessToken = fmt.Sprintf("access-%s", splitwiseID)
	user.SplitwiseRefreshToken = fmt.Sprintf("refresh-%s", splitwiseID)
	user.SplitwiseTokenType = "bearer"
	user.SplitwiseTokenExpiresAt = &expires
	if err := db.Save(user).Error; err != nil {
		t.Fatalf("failed to connect test user: %v", err)
	}
	return user
}

// CreateTestHousehold creates a household owned by owner with the given members.
// The owner is always included as a member.
func CreateTestHousehold(t *testing.T, db *gorm.DB, owner *models.User, members ...*models.User) *models.Household {
	t.Helper()

	all := []models.User{*owner}
	for _, m := range members {
		all = append(all, *m)
	}

	household := &models.Household{
		Name:    fmt.Sprintf("Household %d", nextID()),
		OwnerID: owner.ID,
		Members: all,
	}
	if err := db.Create(household).Error; err != nil {
		t.Fatalf("failed to create test household: %v", err)
	}
	return household
}

// LinkHousehold links a household to a Splitwise group id.
func LinkHousehold(t *testing.T, db *gorm.DB, household *models.Household, groupID string) {
	t.Helper()

	household.SplitwiseGroupID = &groupID
	household.SplitwiseGroupName = fmt.Sprintf("Group %s", groupID)
	if err := db.Save(household).Error; err != nil {
		t.Fatalf("failed to link test household: %v", err)
	}
}

// CreateTestBill creates a bill with a single item split between the given
// users, with equal-split totals.
func CreateTestBill(t *testing.T, db *gorm.DB, household *models.Household, creator *models.User, amount float64, splitBetween ...*models.User) *models.Bill {
	t.Helper()

	if len(splitBetween) == 0 {
		splitBetween = []*models.User{creator}
	}
	ids := make([]string, 0, len(splitBetween))
	totals := models.Totals{}
	share := amount / float64(len(splitBetween))
	for _, u := range splitBetween {
		ids = append(ids, u.ID)
		totals[u.ID] += share
	}

	bill := &models.Bill{
		HouseholdID: household.ID,
		BillName:    fmt.Sprintf("Bill %d", nextID()),
		Items: models.BillItems{{
			ID:           fmt.Sprintf("item-%d", nextID()),
			Name:         "Fixture item",
			Amount:       amount,
			SplitBetween: ids,
		}},
		Totals:      totals,
		TotalAmount: amount,
		CreatedBy:   creator.ID,
		Sync:        models.SyncState{Status: models.SyncStatusPending},
	}
	if err := db.Create(bill).Error; err != nil {
		t.Fatalf("failed to create test bill: %v", err)
	}
	return bill
}
