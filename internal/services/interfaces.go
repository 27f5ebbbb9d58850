package services

import (
	"context"

	"splithaus/internal/models"
	"splithaus/internal/pagination"
)

// UserServicer defines the contract for account and credential logic.
type UserServicer interface {
	Register(email, password, name string) (*models.User, error)
	Login(email, password string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	SearchByEmail(query string, limit int) ([]models.User, error)
	// ConnectWithCode exchanges an OAuth authorization code, fetches the
	// Splitwise profile, and stores the credential. With a userID (from the
	// signed OAuth state) the credential attaches to that account; without
	// one the account is resolved by remote identity, then email, or created.
	ConnectWithCode(ctx context.Context, userID, code, redirectURI string) (*models.User, error)
	ConnectionStatus(userID string) (bool, string, error)
}

// TokenServicer runs remote calls under a valid access token, refreshing
// and retrying exactly once on an auth failure.
type TokenServicer interface {
	WithAccessToken(ctx context.Context, userID string, fn func(token string) error) error
}

// HouseholdUpdate holds optional household mutations. Nil fields are left
// unchanged; an empty SplitwiseGroupID unlinks the household.
type HouseholdUpdate struct {
	Name               *string
	SplitwiseGroupID   *string
	SplitwiseGroupName *string
}

// HouseholdServicer defines the contract for household logic.
type HouseholdServicer interface {
	CreateHousehold(ownerID, name, splitwiseGroupID, splitwiseGroupName string) (*models.Household, error)
	GetUserHouseholds(userID string) ([]models.Household, error)
	GetHouseholdForMember(householdID, userID string) (*models.Household, error)
	UpdateHousehold(householdID, actorID string, update HouseholdUpdate) (*models.Household, error)
	AddMember(householdID, actorID, email string) (*models.Household, error)
	RemoveMember(householdID, actorID, memberID string) (*models.Household, error)
	// ImportGroups mirrors the actor's Splitwise groups into households,
	// upserting member accounts by remote identity.
	ImportGroups(ctx context.Context, actorID string) ([]models.Household, error)
}

// BillItemInput is one bill line as submitted by a client.
type BillItemInput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name" binding:"required,min=1,max=200"`
	Amount       float64  `json:"amount" binding:"required,money"`
	SplitBetween []string `json:"split_between" binding:"required,min=1"`
}

// BillServicer defines the contract for bill logic. Create and update
// trigger a push to the remote ledger; delete removes the remote
// counterpart first and fails if that removal fails.
type BillServicer interface {
	CreateBill(ctx context.Context, householdID, actorID, name string, items []BillItemInput) (*models.Bill, error)
	UpdateBill(ctx context.Context, householdID, billID, actorID, name string, items []BillItemInput) (*models.Bill, error)
	DeleteBill(ctx context.Context, householdID, billID, actorID string) error
	GetHouseholdBills(householdID, actorID string, page pagination.PageRequest) (*pagination.PageResponse[models.Bill], error)
	GetBillByID(householdID, billID, actorID string) (*models.Bill, error)
}

// SyncSummary is the per-pass result of a pull reconciliation.
type SyncSummary struct {
	Fetched   int `json:"fetched"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Conflicts int `json:"conflicts"`
	Skipped   int `json:"skipped"`
}

// SyncServicer is the sync engine boundary used by the bill service and
// the reconciliation endpoint. Push outcomes are recorded on the bill's
// sync state rather than returned; DeleteRemote propagates its error
// because a failed remote delete must block the local delete.
type SyncServicer interface {
	PushOnCreate(ctx context.Context, bill *models.Bill, household *models.Household, actorID string)
	PushOnUpdate(ctx context.Context, bill *models.Bill, household *models.Household, actorID string)
	DeleteRemote(ctx context.Context, bill *models.Bill, actorID string) error
	PullReconcile(ctx context.Context, household *models.Household, actorID string) (*SyncSummary, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
