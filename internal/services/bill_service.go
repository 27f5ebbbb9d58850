package services

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/models"
	"splithaus/internal/pagination"
	"splithaus/internal/uuid"

	"gorm.io/gorm"
)

type billService struct {
	db         *gorm.DB
	households HouseholdServicer
	sync       SyncServicer
}

// NewBillService creates a new bill service.
func NewBillService(db *gorm.DB, households HouseholdServicer, sync SyncServicer) BillServicer {
	return &billService{db: db, households: households, sync: sync}
}

// CreateBill creates a bill in the household and pushes it to the remote
// ledger. The push outcome lands on the returned bill's sync state; a push
// failure never fails the local create.
func (s *billService) CreateBill(ctx context.Context, householdID, actorID, name string, items []BillItemInput) (*models.Bill, error) {
	household, err := s.households.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}

	billItems, totals, total, err := normalizeItems(items, household)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Bill name is required")
	}

	now := time.Now()
	bill := &models.Bill{
		HouseholdID: household.ID,
		BillName:    name,
		Items:       billItems,
		Totals:      totals,
		TotalAmount: total,
		CreatedBy:   actorID,
		Sync: models.SyncState{
			Status:          models.SyncStatusPending,
			LastLocalEditAt: &now,
		},
	}
	if err := s.db.Create(bill).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.sync.PushOnCreate(ctx, bill, household, actorID)
	return bill, nil
}

// UpdateBill replaces a bill's name and items, stamps the local edit time,
// and pushes the new content to the remote ledger.
func (s *billService) UpdateBill(ctx context.Context, householdID, billID, actorID, name string, items []BillItemInput) (*models.Bill, error) {
	household, err := s.households.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	bill, err := s.loadBill(household.ID, billID)
	if err != nil {
		return nil, err
	}

	billItems, totals, total, err := normalizeItems(items, household)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Bill name is required")
	}

	now := time.Now()
	bill.BillName = name
	bill.Items = billItems
	bill.Totals = totals
	bill.TotalAmount = total
	bill.Sync.Status = models.SyncStatusPending
	bill.Sync.LastLocalEditAt = &now
	bill.Sync.Conflict = false
	bill.Sync.Error = ""
	if err := s.db.Save(bill).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.sync.PushOnUpdate(ctx, bill, household, actorID)
	return bill, nil
}

// DeleteBill removes a bill. When the bill has a remote counterpart it is
// deleted remotely first; if that fails the local bill is left in place.
func (s *billService) DeleteBill(ctx context.Context, householdID, billID, actorID string) error {
	household, err := s.households.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return err
	}
	bill, err := s.loadBill(household.ID, billID)
	if err != nil {
		return err
	}

	if err := s.sync.DeleteRemote(ctx, bill, actorID); err != nil {
		return err
	}

	if err := s.db.Delete(bill).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetHouseholdBills lists a household's bills, newest first.
func (s *billService) GetHouseholdBills(householdID, actorID string, page pagination.PageRequest) (*pagination.PageResponse[models.Bill], error) {
	household, err := s.households.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	page.Defaults()

	var total int64
	if err := s.db.Model(&models.Bill{}).Where("household_id = ?", household.ID).Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var bills []models.Bill
	if err := s.db.Where("household_id = ?", household.ID).
		Order("created_at DESC").Scopes(pagination.Paginate(page)).Find(&bills).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(bills, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetBillByID fetches a single bill, enforcing household membership.
func (s *billService) GetBillByID(householdID, billID, actorID string) (*models.Bill, error) {
	household, err := s.households.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	return s.loadBill(household.ID, billID)
}

func (s *billService) loadBill(householdID, billID string) (*models.Bill, error) {
	var bill models.Bill
	if err := s.db.First(&bill, "id = ? AND household_id = ?", billID, householdID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBillNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &bill, nil
}

// normalizeItems validates the submitted items against the household and
// derives per-user totals: each item splits equally between its listed
// members, and the bill total is the sum of item amounts.
func normalizeItems(items []BillItemInput, household *models.Household) (models.BillItems, models.Totals, float64, error) {
	if len(items) == 0 {
		return nil, nil, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "A bill needs at least one item")
	}

	memberIDs := make(map[string]bool, len(household.Members))
	for _, m := range household.Members {
		memberIDs[m.ID] = true
	}

	billItems := make(models.BillItems, 0, len(items))
	totals := models.Totals{}
	var total float64
	for _, in := range items {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, nil, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Every item needs a name")
		}
		if in.Amount <= 0 {
			return nil, nil, 0, apperrors.WithMessage(apperrors.ErrInvalidAmount, "Item amounts must be greater than zero: "+name)
		}
		if len(in.SplitBetween) == 0 {
			return nil, nil, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Item is not split between anyone: "+name)
		}
		split := make([]string, 0, len(in.SplitBetween))
		seen := make(map[string]bool, len(in.SplitBetween))
		for _, id := range in.SplitBetween {
			if seen[id] {
				continue
			}
			seen[id] = true
			if !memberIDs[id] {
				return nil, nil, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Item split includes a non-member: "+name)
			}
			split = append(split, id)
		}

		itemID := strings.TrimSpace(in.ID)
		if itemID == "" {
			itemID = uuid.New()
		}
		billItems = append(billItems, models.BillItem{
			ID:           itemID,
			Name:         name,
			Amount:       in.Amount,
			SplitBetween: split,
		})

		share := in.Amount / float64(len(split))
		for _, id := range split {
			totals[id] += share
		}
		total += in.Amount
	}

	return billItems, totals, total, nil
}
