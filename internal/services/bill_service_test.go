package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"

	"splithaus/internal/models"
	"splithaus/internal/pagination"
	"splithaus/internal/testutil"

	"gorm.io/gorm"
)

func newBillFixture(t *testing.T, db *gorm.DB, ledger *stubLedger) BillServicer {
	t.Helper()
	client := newTestClient(ledger.URL())
	tokens := NewTokenService(db, client)
	households := NewHouseholdService(db, client, tokens)
	return NewBillService(db, households, NewSyncService(db, client, tokens))
}

func TestCreateBill(t *testing.T) {
	t.Run("creates an itemized bill with equal-split totals", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateConnectedUser(t, db, "101")
		member := testutil.CreateConnectedUser(t, db, "102")
		household := testutil.CreateTestHousehold(t, db, owner, member)

		svc := newBillFixture(t, db, ledger)
		bill, err := svc.CreateBill(context.Background(), household.ID, owner.ID, "Groceries", []BillItemInput{
			{Name: "Milk", Amount: 4.00, SplitBetween: []string{owner.ID, member.ID}},
			{Name: "Coffee", Amount: 9.00, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertNoError(t, err)

		if bill.TotalAmount != 13.00 {
			t.Errorf("expected total 13.00, got %v", bill.TotalAmount)
		}
		if got := bill.Totals[owner.ID]; math.Abs(got-11.00) > 1e-9 {
			t.Errorf("expected owner total 11.00, got %v", got)
		}
		if got := bill.Totals[member.ID]; math.Abs(got-2.00) > 1e-9 {
			t.Errorf("expected member total 2.00, got %v", got)
		}
		if len(bill.Items) != 2 || bill.Items[0].ID == "" {
			t.Errorf("expected 2 items with generated ids, got %+v", bill.Items)
		}
		if bill.Sync.LastLocalEditAt == nil {
			t.Error("expected local edit timestamp on create")
		}
		// Unlinked household: the push is skipped but the bill is created.
		if bill.Sync.Status != models.SyncStatusSkipped {
			t.Errorf("expected skipped push, got %s", bill.Sync.Status)
		}
	})

	t.Run("pushes to the linked group", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateConnectedUser(t, db, "101")
		household := testutil.CreateTestHousehold(t, db, owner)
		testutil.LinkHousehold(t, db, household, "555")

		svc := newBillFixture(t, db, ledger)
		bill, err := svc.CreateBill(context.Background(), household.ID, owner.ID, "Dinner", []BillItemInput{
			{Name: "Pizza", Amount: 20.00, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertNoError(t, err)

		if bill.Sync.Status != models.SyncStatusSynced {
			t.Errorf("expected synced, got %s (error: %s)", bill.Sync.Status, bill.Sync.Error)
		}
		if bill.Sync.RemoteExpenseID == "" {
			t.Error("expected remote expense id after push")
		}
		paths := ledger.requestPaths()
		if len(paths) != 1 || paths[0] != "/create_expense" {
			t.Errorf("expected one create call, got %v", paths)
		}
	})

	t.Run("rejects non-members", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateTestUser(t, db)
		stranger := testutil.CreateTestUser(t, db)
		household := testutil.CreateTestHousehold(t, db, owner)

		svc := newBillFixture(t, db, ledger)
		_, err := svc.CreateBill(context.Background(), household.ID, stranger.ID, "Sneaky", []BillItemInput{
			{Name: "Item", Amount: 1.00, SplitBetween: []string{stranger.ID}},
		})
		testutil.AssertAppError(t, err, "NOT_A_MEMBER")
	})

	t.Run("validates items", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateTestUser(t, db)
		stranger := testutil.CreateTestUser(t, db)
		household := testutil.CreateTestHousehold(t, db, owner)
		svc := newBillFixture(t, db, ledger)

		_, err := svc.CreateBill(context.Background(), household.ID, owner.ID, "Empty", nil)
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateBill(context.Background(), household.ID, owner.ID, "Zero", []BillItemInput{
			{Name: "Nothing", Amount: 0, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertAppError(t, err, "INVALID_AMOUNT")

		_, err = svc.CreateBill(context.Background(), household.ID, owner.ID, "Outsider", []BillItemInput{
			{Name: "Item", Amount: 5.00, SplitBetween: []string{stranger.ID}},
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateBill(context.Background(), household.ID, owner.ID, "  ", []BillItemInput{
			{Name: "Item", Amount: 5.00, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestUpdateBill(t *testing.T) {
	t.Run("replaces content and re-pushes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateConnectedUser(t, db, "101")
		household := testutil.CreateTestHousehold(t, db, owner)
		testutil.LinkHousehold(t, db, household, "555")
		bill := testutil.CreateTestBill(t, db, household, owner, 10.00, owner)
		bill.Sync.RemoteExpenseID = "9001"
		bill.Sync.Conflict = true
		testutil.AssertNoError(t, db.Save(bill).Error)

		svc := newBillFixture(t, db, ledger)
		updated, err := svc.UpdateBill(context.Background(), household.ID, bill.ID, owner.ID, "New name", []BillItemInput{
			{Name: "Single", Amount: 6.00, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertNoError(t, err)

		if updated.BillName != "New name" || updated.TotalAmount != 6.00 {
			t.Errorf("expected updated content, got %q %v", updated.BillName, updated.TotalAmount)
		}
		if updated.Sync.LastLocalEditAt == nil {
			t.Error("expected local edit timestamp on update")
		}
		if updated.Sync.Conflict {
			t.Error("expected local edit to clear the conflict flag")
		}
		paths := ledger.requestPaths()
		if len(paths) != 1 || paths[0] != "/update_expense/9001" {
			t.Errorf("expected one update call, got %v", paths)
		}
	})

	t.Run("rejects bills from other households", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateTestUser(t, db)
		household := testutil.CreateTestHousehold(t, db, owner)
		other := testutil.CreateTestHousehold(t, db, owner)
		bill := testutil.CreateTestBill(t, db, other, owner, 10.00, owner)

		svc := newBillFixture(t, db, ledger)
		_, err := svc.UpdateBill(context.Background(), household.ID, bill.ID, owner.ID, "Moved", []BillItemInput{
			{Name: "Item", Amount: 1.00, SplitBetween: []string{owner.ID}},
		})
		testutil.AssertAppError(t, err, "BILL_NOT_FOUND")
	})
}

func TestDeleteBill(t *testing.T) {
	t.Run("deletes remote first, then local", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateConnectedUser(t, db, "101")
		household := testutil.CreateTestHousehold(t, db, owner)
		testutil.LinkHousehold(t, db, household, "555")
		bill := testutil.CreateTestBill(t, db, household, owner, 10.00, owner)
		bill.Sync.RemoteExpenseID = "9001"
		testutil.AssertNoError(t, db.Save(bill).Error)

		svc := newBillFixture(t, db, ledger)
		testutil.AssertNoError(t, svc.DeleteBill(context.Background(), household.ID, bill.ID, owner.ID))

		paths := ledger.requestPaths()
		if len(paths) != 1 || paths[0] != "/delete_expense/9001" {
			t.Errorf("expected one delete call, got %v", paths)
		}
		err := db.First(&models.Bill{}, "id = ?", bill.ID).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected bill removed, got %v", err)
		}
	})

	t.Run("keeps the local bill when the remote delete fails", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)
		ledger.handle = func(w http.ResponseWriter, r *http.Request) bool {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": "server error"})
			return true
		}

		owner := testutil.CreateConnectedUser(t, db, "101")
		household := testutil.CreateTestHousehold(t, db, owner)
		testutil.LinkHousehold(t, db, household, "555")
		bill := testutil.CreateTestBill(t, db, household, owner, 10.00, owner)
		bill.Sync.RemoteExpenseID = "9001"
		testutil.AssertNoError(t, db.Save(bill).Error)

		svc := newBillFixture(t, db, ledger)
		err := svc.DeleteBill(context.Background(), household.ID, bill.ID, owner.ID)
		if err == nil {
			t.Fatal("expected delete to fail")
		}

		var stored models.Bill
		testutil.AssertNoError(t, db.First(&stored, "id = ?", bill.ID).Error)
		if stored.Sync.Status != models.SyncStatusFailed {
			t.Errorf("expected failed sync state recorded, got %s", stored.Sync.Status)
		}
	})

	t.Run("deletes unsynced bills without remote calls", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		ledger := newStubLedger(t)

		owner := testutil.CreateTestUser(t, db)
		household := testutil.CreateTestHousehold(t, db, owner)
		bill := testutil.CreateTestBill(t, db, household, owner, 10.00, owner)

		svc := newBillFixture(t, db, ledger)
		testutil.AssertNoError(t, svc.DeleteBill(context.Background(), household.ID, bill.ID, owner.ID))
		if ledger.requestCount() != 0 {
			t.Errorf("expected no remote calls, got %d", ledger.requestCount())
		}
	})
}

func TestGetHouseholdBills(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	ledger := newStubLedger(t)

	owner := testutil.CreateTestUser(t, db)
	household := testutil.CreateTestHousehold(t, db, owner)
	for i := 0; i < 5; i++ {
		testutil.CreateTestBill(t, db, household, owner, 10.00, owner)
	}

	svc := newBillFixture(t, db, ledger)

	page, err := svc.GetHouseholdBills(household.ID, owner.ID, pagination.PageRequest{Page: 1, PageSize: 3})
	testutil.AssertNoError(t, err)
	if page.TotalItems != 5 || len(page.Data) != 3 || page.TotalPages != 2 {
		t.Errorf("unexpected page: total=%d len=%d pages=%d", page.TotalItems, len(page.Data), page.TotalPages)
	}

	_, err = svc.GetHouseholdBills(household.ID, testutil.CreateTestUser(t, db).ID, pagination.PageRequest{})
	testutil.AssertAppError(t, err, "NOT_A_MEMBER")
}
