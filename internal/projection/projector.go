// Package projection is the pure mapping between local bills and the
// remote ledger's expense representation. It performs no I/O: callers load
// the participants and apply the resulting payloads or drafts themselves.
//
// Two business policies live here on purpose, as named rules rather than
// implicit arithmetic: the acting user absorbs the cents remainder left by
// per-share rounding, and the acting user is assumed to have paid the full
// bill (single-payer model).
package projection

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/models"
	"splithaus/internal/splitwise"
	"splithaus/internal/uuid"
)

// maxDetailItems bounds the generated details listing; the provider
// truncates long detail strings anyway.
const maxDetailItems = 25

// ToRemoteExpense projects a local bill into the provider's expense
// payload. Every participant (everyone with a nonzero total, plus the
// acting user) must have a linked Splitwise identity.
func ToRemoteExpense(bill *models.Bill, household *models.Household, actorID string, participants []models.User) (*splitwise.ExpensePayload, error) {
	if bill.TotalAmount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}

	byID := make(map[string]*models.User, len(participants))
	for i := range participants {
		byID[participants[i].ID] = &participants[i]
	}

	participantIDs := participantIDs(bill, actorID)

	var missing []string
	for _, id := range participantIDs {
		user, ok := byID[id]
		if !ok || user.SplitwiseID == nil || *user.SplitwiseID == "" {
			name := id
			if ok && user.Name != "" {
				name = user.Name
			}
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.WithMessage(apperrors.ErrMissingLedgerLink,
			"These members must connect Splitwise first: "+strings.Join(missing, ", "))
	}

	totalCents := toCents(bill.TotalAmount)

	// Round each share independently, then hand the signed remainder to
	// the acting user so owed shares always sum exactly to the total.
	owedCents := make(map[string]int64, len(participantIDs))
	var owedSum int64
	for _, id := range participantIDs {
		cents := toCents(bill.Totals[id])
		owedCents[id] = cents
		owedSum += cents
	}
	owedCents[actorID] += totalCents - owedSum

	shares := make([]splitwise.ExpenseShare, 0, len(participantIDs))
	for _, id := range participantIDs {
		paid := int64(0)
		if id == actorID {
			paid = totalCents
		}
		shares = append(shares, splitwise.ExpenseShare{
			UserID:    *byID[id].SplitwiseID,
			OwedShare: centsString(owedCents[id]),
			PaidShare: centsString(paid),
		})
	}

	payload := &splitwise.ExpensePayload{
		Cost:         centsString(totalCents),
		Description:  bill.BillName,
		Details:      buildDetails(bill, byID),
		CurrencyCode: "USD",
		Users:        shares,
	}
	if household != nil && household.Linked() {
		payload.GroupID = *household.SplitwiseGroupID
	}
	return payload, nil
}

// participantIDs returns every user with a nonzero total plus the acting
// user, in a stable order with the actor first.
func participantIDs(bill *models.Bill, actorID string) []string {
	ids := make([]string, 0, len(bill.Totals)+1)
	ids = append(ids, actorID)
	rest := make([]string, 0, len(bill.Totals))
	for id, amount := range bill.Totals {
		if id == actorID || amount == 0 {
			continue
		}
		rest = append(rest, id)
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// buildDetails renders a readable item listing for the remote expense.
func buildDetails(bill *models.Bill, byID map[string]*models.User) string {
	if len(bill.Items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Itemized bill:\n")
	for i, item := range bill.Items {
		if i >= maxDetailItems {
			fmt.Fprintf(&b, "... and %d more items\n", len(bill.Items)-maxDetailItems)
			break
		}
		names := make([]string, 0, len(item.SplitBetween))
		for _, id := range item.SplitBetween {
			if user, ok := byID[id]; ok && user.Name != "" {
				names = append(names, user.Name)
			} else {
				names = append(names, id)
			}
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", item.Name, centsString(toCents(item.Amount)), strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// BillDraft is a local bill candidate projected from a remote expense.
// The item breakdown is an explicit lossy approximation: the remote ledger
// stores per-person shares, not itemization.
type BillDraft struct {
	BillName    string
	CreatedBy   string
	TotalAmount float64
	Totals      models.Totals
	Items       models.BillItems
}

// InverseInput carries the lookup context for FromRemoteExpense.
type InverseInput struct {
	// UsersByRemoteID maps Splitwise user ids to local accounts.
	UsersByRemoteID map[string]*models.User
	// AllowedMemberIDs restricts survivors to household members.
	AllowedMemberIDs map[string]bool
	// FallbackCreator is used when no participant can be attributed.
	FallbackCreator string
	// RequiredParticipant, when set, must survive the row mapping for the
	// projection to succeed (the pulling user must be a party).
	RequiredParticipant string
}

type inverseShare struct {
	userID   string
	userName string
	owed     float64
	paid     float64
}

// FromRemoteExpense maps a remote expense to a local bill draft. It returns
// nil when the expense cannot be represented locally: no participant row
// maps to a household member, the required participant is absent, or no
// positive amount can be derived.
func FromRemoteExpense(expense *splitwise.Expense, in InverseInput) *BillDraft {
	remoteID := expense.RemoteID()
	if remoteID == "" {
		return nil
	}

	var shares []inverseShare
	for _, row := range expense.Users {
		rid := row.RemoteUserID()
		if rid == 0 {
			continue
		}
		local, ok := in.UsersByRemoteID[strconv.FormatInt(rid, 10)]
		if !ok || !in.AllowedMemberIDs[local.ID] {
			continue
		}
		name := local.Name
		if name == "" {
			name = local.ID
		}
		shares = append(shares, inverseShare{
			userID:   local.ID,
			userName: name,
			owed:     parseMoney(row.OwedShare),
			paid:     parseMoney(row.PaidShare),
		})
	}
	if len(shares) == 0 {
		return nil
	}

	if in.RequiredParticipant != "" {
		found := false
		for _, s := range shares {
			if s.userID == in.RequiredParticipant {
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}

	totals := models.Totals{}
	var owedSum float64
	for _, s := range shares {
		totals[s.userID] += s.owed
		owedSum += s.owed
	}

	totalAmount := parseMoney(expense.Cost)
	if totalAmount <= 0 {
		// Malformed remote cost: fall back to the sum of owed shares.
		totalAmount = round2(owedSum)
	}
	if totalAmount <= 0 {
		return nil
	}

	createdBy := topPayer(shares, in)

	items := make(models.BillItems, 0, len(shares))
	for _, s := range shares {
		if s.owed <= 0 {
			continue
		}
		items = append(items, models.BillItem{
			ID:           uuid.New(),
			Name:         "Splitwise share - " + s.userName,
			Amount:       s.owed,
			SplitBetween: []string{s.userID},
		})
	}
	if len(items) == 0 {
		// All owed shares are zero: synthesize a single catch-all item so
		// the local invariants (total == sum of items) still hold.
		items = append(items, models.BillItem{
			ID:           uuid.New(),
			Name:         "Splitwise imported amount",
			Amount:       totalAmount,
			SplitBetween: []string{createdBy},
		})
		totals[createdBy] = round2(totalAmount)
	}

	billName := strings.TrimSpace(expense.Description)
	if billName == "" {
		billName = "Splitwise Expense " + remoteID
	}

	for id, amount := range totals {
		totals[id] = round2(amount)
	}

	return &BillDraft{
		BillName:    billName,
		CreatedBy:   createdBy,
		TotalAmount: round2(totalAmount),
		Totals:      totals,
		Items:       items,
	}
}

// topPayer attributes the draft to whichever local participant paid the
// most, falling back to the pulling user on ties or when the top payer is
// not a member.
func topPayer(shares []inverseShare, in InverseInput) string {
	best := ""
	bestPaid := 0.0
	for _, s := range shares {
		if s.paid > bestPaid {
			best = s.userID
			bestPaid = s.paid
		}
	}
	if best == "" || !in.AllowedMemberIDs[best] {
		return in.FallbackCreator
	}
	return best
}

// toCents rounds a dollar amount to whole cents.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// centsString formats whole cents as a fixed 2-decimal dollar string.
func centsString(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// parseMoney parses a provider money string into a non-negative amount
// rounded to cents. Unparseable values become 0.
func parseMoney(s string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return math.Max(0, round2(value))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
