package services

import (
	"context"
	"errors"
	"time"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/logger"
	"splithaus/internal/metrics"
	"splithaus/internal/models"
	"splithaus/internal/projection"
	"splithaus/internal/splitwise"
	"splithaus/internal/synclock"

	"gorm.io/gorm"
)

const (
	// pullPageSize is the page size requested from get_expenses.
	pullPageSize = 100
	// maxPullPages bounds a single reconciliation pass. A household that
	// accumulates more than 2000 changed expenses between pulls catches up
	// over successive passes via the cursor.
	maxPullPages = 20
)

type syncService struct {
	db     *gorm.DB
	client *splitwise.Client
	tokens TokenServicer
	locks  *synclock.Keyed
}

// NewSyncService creates a new sync service.
func NewSyncService(db *gorm.DB, client *splitwise.Client, tokens TokenServicer) SyncServicer {
	return &syncService{
		db:     db,
		client: client,
		tokens: tokens,
		locks:  synclock.NewKeyed(),
	}
}

// PushOnCreate pushes a freshly created bill to the remote ledger.
func (s *syncService) PushOnCreate(ctx context.Context, bill *models.Bill, household *models.Household, actorID string) {
	s.push(ctx, bill, household, actorID)
}

// PushOnUpdate pushes a locally edited bill to the remote ledger.
func (s *syncService) PushOnUpdate(ctx context.Context, bill *models.Bill, household *models.Household, actorID string) {
	s.push(ctx, bill, household, actorID)
}

// push projects the bill and creates or updates its remote counterpart,
// recording the outcome on the bill's sync state. A bill that already has a
// remote expense id is updated; anything else is created, which also covers
// re-pushing after a failed create.
func (s *syncService) push(ctx context.Context, bill *models.Bill, household *models.Household, actorID string) {
	now := time.Now()
	log := logger.Get()

	if household == nil || !household.Linked() {
		bill.Sync.Status = models.SyncStatusSkipped
		bill.Sync.LastAttemptAt = &now
		bill.Sync.Error = "household has no linked Splitwise group"
		s.saveSyncState(bill)
		metrics.PushTotal.WithLabelValues("skipped").Inc()
		return
	}

	release, ok := s.locks.TryAcquire(household.ID)
	if !ok {
		s.recordPushFailure(bill, now, apperrors.ErrSyncInProgress)
		metrics.PushTotal.WithLabelValues("failed").Inc()
		return
	}
	defer release()

	members, err := s.loadMembers(household)
	if err != nil {
		s.recordPushFailure(bill, now, err)
		metrics.PushTotal.WithLabelValues("failed").Inc()
		return
	}

	payload, err := projection.ToRemoteExpense(bill, household, actorID, members)
	if err != nil {
		s.recordPushFailure(bill, now, err)
		metrics.PushTotal.WithLabelValues("failed").Inc()
		return
	}

	var remote *splitwise.Expense
	err = s.tokens.WithAccessToken(ctx, actorID, func(token string) error {
		var callErr error
		if bill.Sync.RemoteExpenseID != "" {
			remote, callErr = s.client.UpdateExpense(ctx, token, bill.Sync.RemoteExpenseID, payload)
		} else {
			remote, callErr = s.client.CreateExpense(ctx, token, payload)
		}
		return callErr
	})
	if err != nil {
		log.Warnw("push failed",
			"bill_id", bill.ID,
			"household_id", household.ID,
			"error", err)
		s.recordPushFailure(bill, now, err)
		metrics.PushTotal.WithLabelValues("failed").Inc()
		return
	}

	bill.Sync.Status = models.SyncStatusSynced
	bill.Sync.RemoteExpenseID = remote.RemoteID()
	bill.Sync.SyncedAt = &now
	bill.Sync.LastAttemptAt = &now
	bill.Sync.Error = ""
	bill.Sync.Direction = models.SyncDirectionPush
	bill.Sync.Conflict = false
	remoteUpdated := remote.UpdatedAt.Time
	if remoteUpdated.IsZero() {
		remoteUpdated = now
	}
	bill.Sync.RemoteUpdatedAt = &remoteUpdated
	s.saveSyncState(bill)
	metrics.PushTotal.WithLabelValues("synced").Inc()
}

// recordPushFailure marks the attempt failed without touching the bill's
// content or its prior RemoteExpenseID/SyncedAt, so a later retry can still
// tell create from update.
func (s *syncService) recordPushFailure(bill *models.Bill, at time.Time, err error) {
	bill.Sync.Status = models.SyncStatusFailed
	bill.Sync.LastAttemptAt = &at
	bill.Sync.Error = err.Error()
	s.saveSyncState(bill)
}

func (s *syncService) saveSyncState(bill *models.Bill) {
	if bill.ID == "" {
		return
	}
	if err := s.db.Model(&models.Bill{}).Where("id = ?", bill.ID).
		Select("sync_status", "sync_remote_expense_id", "sync_synced_at", "sync_last_attempt_at",
			"sync_error", "sync_remote_updated_at", "sync_direction", "sync_conflict").
		Updates(map[string]interface{}{
			"sync_status":            bill.Sync.Status,
			"sync_remote_expense_id": bill.Sync.RemoteExpenseID,
			"sync_synced_at":         bill.Sync.SyncedAt,
			"sync_last_attempt_at":   bill.Sync.LastAttemptAt,
			"sync_error":             bill.Sync.Error,
			"sync_remote_updated_at": bill.Sync.RemoteUpdatedAt,
			"sync_direction":         bill.Sync.Direction,
			"sync_conflict":          bill.Sync.Conflict,
		}).Error; err != nil {
		logger.Get().Errorw("failed to persist sync state", "bill_id", bill.ID, "error", err)
	}
}

// DeleteRemote removes the bill's remote counterpart. Its error must be
// honored by the caller: a bill whose remote delete failed keeps both copies.
func (s *syncService) DeleteRemote(ctx context.Context, bill *models.Bill, actorID string) error {
	if bill.Sync.RemoteExpenseID == "" {
		return nil
	}

	err := s.tokens.WithAccessToken(ctx, actorID, func(token string) error {
		return s.client.DeleteExpense(ctx, token, bill.Sync.RemoteExpenseID)
	})
	if err != nil {
		// A counterpart that is already gone remotely should not pin the
		// local bill forever.
		if apperrors.HasCode(err, apperrors.ErrLedgerUnavailable.Code) {
			logger.Get().Infow("remote expense already gone", "bill_id", bill.ID, "remote_expense_id", bill.Sync.RemoteExpenseID)
			return nil
		}
		s.recordPushFailure(bill, time.Now(), err)
		return err
	}
	return nil
}

// PullReconcile fetches the linked group's expenses changed since the
// household's cursor and reconciles them into local bills. At most one pass
// runs per household at a time.
func (s *syncService) PullReconcile(ctx context.Context, household *models.Household, actorID string) (*SyncSummary, error) {
	if !household.Linked() {
		return nil, apperrors.ErrHouseholdNotLinked
	}

	release, ok := s.locks.TryAcquire(household.ID)
	if !ok {
		metrics.PullPassTotal.WithLabelValues("busy").Inc()
		return nil, apperrors.ErrSyncInProgress
	}
	defer release()

	members, err := s.loadMembers(household)
	if err != nil {
		metrics.PullPassTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	usersByRemote := make(map[string]*models.User, len(members))
	allowed := make(map[string]bool, len(members))
	for i := range members {
		allowed[members[i].ID] = true
		if members[i].SplitwiseID != nil && *members[i].SplitwiseID != "" {
			usersByRemote[*members[i].SplitwiseID] = &members[i]
		}
	}

	log := logger.Get()
	cursor := household.SyncCursor
	newest := cursor
	summary := &SyncSummary{}
	offset := 0

	for page := 0; page < maxPullPages; page++ {
		var expenses []splitwise.Expense
		err := s.tokens.WithAccessToken(ctx, actorID, func(token string) error {
			var callErr error
			expenses, callErr = s.client.GetExpenses(ctx, token, splitwise.ListExpensesOptions{
				GroupID:      *household.SplitwiseGroupID,
				Limit:        pullPageSize,
				Offset:       offset,
				UpdatedAfter: cursor,
			})
			return callErr
		})
		if err != nil {
			// Nothing is persisted for an aborted pass; the cursor stays put
			// and the next pass re-fetches the same window.
			metrics.PullPassTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		summary.Fetched += len(expenses)
		for i := range expenses {
			s.applyExpense(&expenses[i], household, usersByRemote, allowed, actorID, summary, &newest)
		}
		if len(expenses) < pullPageSize {
			break
		}
		offset += pullPageSize
	}

	now := time.Now()
	updates := map[string]interface{}{"last_pulled_at": &now}
	household.LastPulledAt = &now
	if newest != nil && (household.SyncCursor == nil || newest.After(*household.SyncCursor)) {
		household.SyncCursor = newest
		updates["sync_cursor"] = newest
	}
	if err := s.db.Model(&models.Household{}).Where("id = ?", household.ID).Updates(updates).Error; err != nil {
		metrics.PullPassTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	log.Infow("pull reconciliation complete",
		"household_id", household.ID,
		"fetched", summary.Fetched,
		"created", summary.Created,
		"updated", summary.Updated,
		"deleted", summary.Deleted,
		"conflicts", summary.Conflicts,
		"skipped", summary.Skipped)
	metrics.PullPassTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

// applyExpense reconciles one remote expense against the local store. Item
// failures are contained: the expense is counted as skipped and the pass
// continues.
func (s *syncService) applyExpense(expense *splitwise.Expense, household *models.Household,
	usersByRemote map[string]*models.User, allowed map[string]bool, actorID string,
	summary *SyncSummary, newest **time.Time) {

	log := logger.Get()
	now := time.Now()

	remoteID := expense.RemoteID()
	if remoteID == "" {
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}

	remoteUpdated := expense.UpdatedAt.Time
	if remoteUpdated.IsZero() {
		remoteUpdated = now
	}
	if *newest == nil || remoteUpdated.After(**newest) {
		u := remoteUpdated
		*newest = &u
	}

	var existing *models.Bill
	var found models.Bill
	err := s.db.First(&found, "household_id = ? AND sync_remote_expense_id = ?", household.ID, remoteID).Error
	switch {
	case err == nil:
		existing = &found
	case errors.Is(err, gorm.ErrRecordNotFound):
		// new remote expense
	default:
		log.Errorw("pull lookup failed", "remote_expense_id", remoteID, "error", err)
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}

	if expense.Deleted() {
		if existing == nil {
			summary.Skipped++
			metrics.PullItemTotal.WithLabelValues("skipped").Inc()
			return
		}
		if err := s.db.Delete(existing).Error; err != nil {
			log.Errorw("pull delete failed", "bill_id", existing.ID, "error", err)
			summary.Skipped++
			metrics.PullItemTotal.WithLabelValues("skipped").Inc()
			return
		}
		summary.Deleted++
		metrics.PullItemTotal.WithLabelValues("deleted").Inc()
		return
	}

	if expense.Payment {
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}

	draft := projection.FromRemoteExpense(expense, projection.InverseInput{
		UsersByRemoteID:     usersByRemote,
		AllowedMemberIDs:    allowed,
		FallbackCreator:     actorID,
		RequiredParticipant: actorID,
	})
	if draft == nil {
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}

	if existing == nil {
		bill := &models.Bill{
			HouseholdID: household.ID,
			BillName:    draft.BillName,
			Items:       draft.Items,
			Totals:      draft.Totals,
			TotalAmount: draft.TotalAmount,
			CreatedBy:   draft.CreatedBy,
			Sync: models.SyncState{
				Status:          models.SyncStatusSynced,
				RemoteExpenseID: remoteID,
				SyncedAt:        &now,
				LastAttemptAt:   &now,
				RemoteUpdatedAt: &remoteUpdated,
				Direction:       models.SyncDirectionPull,
			},
		}
		if err := s.db.Create(bill).Error; err != nil {
			log.Errorw("pull create failed", "remote_expense_id", remoteID, "error", err)
			summary.Skipped++
			metrics.PullItemTotal.WithLabelValues("skipped").Inc()
			return
		}
		summary.Created++
		metrics.PullItemTotal.WithLabelValues("created").Inc()
		return
	}

	remoteChanged := existing.Sync.RemoteUpdatedAt == nil || remoteUpdated.After(*existing.Sync.RemoteUpdatedAt)
	if !remoteChanged {
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}

	if existing.LocallyEditedSince() {
		// Both sides changed since the last sync. Keep the local content and
		// flag the bill; a later local edit or successful sync clears it.
		existing.Sync.Status = models.SyncStatusFailed
		existing.Sync.Conflict = true
		existing.Sync.Error = "conflict: bill and Splitwise expense both changed since the last sync"
		existing.Sync.LastAttemptAt = &now
		existing.Sync.RemoteUpdatedAt = &remoteUpdated
		existing.Sync.Direction = models.SyncDirectionPull
		s.saveSyncState(existing)
		summary.Conflicts++
		metrics.PullItemTotal.WithLabelValues("conflict").Inc()
		return
	}

	existing.BillName = draft.BillName
	existing.Items = draft.Items
	existing.Totals = draft.Totals
	existing.TotalAmount = draft.TotalAmount
	existing.Sync.Status = models.SyncStatusSynced
	existing.Sync.SyncedAt = &now
	existing.Sync.LastAttemptAt = &now
	existing.Sync.Error = ""
	existing.Sync.RemoteUpdatedAt = &remoteUpdated
	existing.Sync.Direction = models.SyncDirectionPull
	existing.Sync.Conflict = false
	existing.Sync.LastLocalEditAt = nil
	if err := s.db.Save(existing).Error; err != nil {
		log.Errorw("pull update failed", "bill_id", existing.ID, "error", err)
		summary.Skipped++
		metrics.PullItemTotal.WithLabelValues("skipped").Inc()
		return
	}
	summary.Updated++
	metrics.PullItemTotal.WithLabelValues("updated").Inc()
}

// loadMembers returns the household's members, reloading them when the
// caller passed a household without the association preloaded.
func (s *syncService) loadMembers(household *models.Household) ([]models.User, error) {
	if len(household.Members) > 0 {
		return household.Members, nil
	}
	var loaded models.Household
	if err := s.db.Preload("Members").First(&loaded, "id = ?", household.ID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	household.Members = loaded.Members
	return loaded.Members, nil
}
