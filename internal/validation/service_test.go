package validation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgo/internal/models"
	"eventgo/internal/qr"
	"eventgo/internal/validation"
)

type fakeStore struct {
	purchases   map[string]*models.Purchase
	validations []models.TicketValidation
	attendees   map[string]*models.Attendee
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		purchases: make(map[string]*models.Purchase),
		attendees: make(map[string]*models.Attendee),
	}
}

func (f *fakeStore) GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error) {
	p, ok := f.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) LastValidationSince(ctx context.Context, purchaseID string, cutoff time.Time) (*models.TicketValidation, error) {
	var last *models.TicketValidation
	for i := range f.validations {
		v := f.validations[i]
		if v.PurchaseID != purchaseID || v.ValidationDatetime.Before(cutoff) {
			continue
		}
		if last == nil || v.ValidationDatetime.After(last.ValidationDatetime) {
			last = &f.validations[i]
		}
	}
	return last, nil
}

func (f *fakeStore) InsertValidation(ctx context.Context, v *models.TicketValidation) error {
	f.validations = append(f.validations, *v)
	return nil
}

func (f *fakeStore) ListValidations(ctx context.Context, purchaseID string) ([]models.TicketValidation, error) {
	var out []models.TicketValidation
	for _, v := range f.validations {
		if v.PurchaseID == purchaseID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	a, ok := f.attendees[id]
	if !ok {
		return nil, fmt.Errorf("attendee %s: %w", id, models.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) CheckInAttendee(ctx context.Context, id string, at time.Time) error {
	a, ok := f.attendees[id]
	if !ok {
		return fmt.Errorf("attendee %s: %w", id, models.ErrNotFound)
	}
	if !a.CheckedIn {
		a.CheckedIn = true
		a.CheckInDatetime = &at
	}
	return nil
}

func (f *fakeStore) ListAttendees(ctx context.Context, purchaseID string) ([]models.Attendee, error) {
	var out []models.Attendee
	for _, a := range f.attendees {
		if a.PurchaseID == purchaseID {
			out = append(out, *a)
		}
	}
	return out, nil
}

// fakeLock rejects a second acquire of the same purchase until released.
type fakeLock struct {
	held map[string]string
}

func (f *fakeLock) Acquire(ctx context.Context, purchaseID, validatorID string) (bool, error) {
	if f.held == nil {
		f.held = make(map[string]string)
	}
	if _, taken := f.held[purchaseID]; taken {
		return false, nil
	}
	f.held[purchaseID] = validatorID
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context, purchaseID, validatorID string) error {
	if f.held[purchaseID] == validatorID {
		delete(f.held, purchaseID)
	}
	return nil
}

func seedPaidPurchase(store *fakeStore, eventStart, eventEnd time.Time) *models.Purchase {
	now := time.Now()
	event := &models.Event{
		ID:            uuid.New().String(),
		Title:         "Go Conference",
		StartDatetime: eventStart,
		EndDatetime:   eventEnd,
	}
	tt := &models.TicketType{
		ID:      uuid.New().String(),
		EventID: event.ID,
		Event:   event,
		Name:    "General",
	}
	paidAt := now.Add(-time.Hour)
	p := &models.Purchase{
		ID:           uuid.New().String(),
		TicketTypeID: tt.ID,
		TicketType:   tt,
		Quantity:     1,
		Status:       models.PurchasePaid,
		Reference:    "EVT-ABCDEF12",
		PaidAt:       &paidAt,
	}
	store.purchases[p.ID] = p
	return p
}

func credential(p *models.Purchase) string {
	data, _ := json.Marshal(qr.CredentialPayload{
		PurchaseID: p.ID,
		Reference:  p.Reference,
		EventID:    p.TicketType.EventID,
		Quantity:   p.Quantity,
	})
	return string(data)
}

func TestValidateAdmitsPaidTicket(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, &fakeLock{}, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))

	outcome, err := svc.Validate(context.Background(), credential(p), "gate-1", "main entrance", "")
	require.NoError(t, err)

	assert.False(t, outcome.Duplicate)
	assert.Nil(t, outcome.LastScan)
	assert.Equal(t, p.ID, outcome.Purchase.ID)

	require.Len(t, store.validations, 1)
	assert.Equal(t, "gate-1", store.validations[0].ValidatedBy)
	assert.Equal(t, "main entrance", store.validations[0].Location)
	assert.Empty(t, store.validations[0].Notes)
}

func TestValidateRejectsMalformedPayload(t *testing.T) {
	svc := validation.NewService(newFakeStore(), nil, nil)

	_, err := svc.Validate(context.Background(), "not json at all", "gate-1", "", "")
	assert.ErrorIs(t, err, models.ErrMalformedCredential)

	_, err = svc.Validate(context.Background(), `{"reference":"EVT-ABCDEF12"}`, "gate-1", "", "")
	assert.ErrorIs(t, err, models.ErrMalformedCredential)
}

func TestValidateRejectsUnknownPurchase(t *testing.T) {
	svc := validation.NewService(newFakeStore(), nil, nil)

	raw := fmt.Sprintf(`{"purchase_id":%q,"reference":"EVT-ABCDEF12"}`, uuid.New().String())
	_, err := svc.Validate(context.Background(), raw, "gate-1", "", "")
	assert.ErrorIs(t, err, models.ErrMalformedCredential)
}

func TestValidateRejectsReferenceMismatch(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, nil, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))

	raw := fmt.Sprintf(`{"purchase_id":%q,"reference":"EVT-00000000"}`, p.ID)
	_, err := svc.Validate(context.Background(), raw, "gate-1", "", "")
	assert.ErrorIs(t, err, models.ErrMalformedCredential)
}

func TestValidateRejectsUnpaidStatuses(t *testing.T) {
	for _, status := range []models.PurchaseStatus{
		models.PurchasePending,
		models.PurchaseCancelled,
		models.PurchaseRefunded,
	} {
		t.Run(string(status), func(t *testing.T) {
			store := newFakeStore()
			svc := validation.NewService(store, nil, nil)
			now := time.Now()
			p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))
			p.Status = status

			_, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
			assert.ErrorIs(t, err, models.ErrNotPaid)
			assert.Empty(t, store.validations)
		})
	}
}

func TestValidateRejectsEndedEvent(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, nil, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-6*time.Hour), now.Add(-time.Hour))

	_, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
	assert.ErrorIs(t, err, models.ErrEventEnded)
}

func TestValidateEventNotYetOpen(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, nil, nil)

	t.Run("future date rejected", func(t *testing.T) {
		now := time.Now()
		p := seedPaidPurchase(store, now.Add(48*time.Hour), now.Add(54*time.Hour))

		_, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
		assert.ErrorIs(t, err, models.ErrEventNotYetOpen)
	})

	t.Run("start day admitted before start hour", func(t *testing.T) {
		// Event starts later today; the gate opens early.
		base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
		p := seedPaidPurchase(store, base.Add(8*time.Hour), base.Add(14*time.Hour))
		svc.Now = func() time.Time { return base }
		defer func() { svc.Now = time.Now }()

		outcome, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
		require.NoError(t, err)
		assert.False(t, outcome.Duplicate)
	})
}

func TestValidateFlagsDuplicateInsideWindow(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, &fakeLock{}, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))

	first, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Validate(context.Background(), credential(p), "gate-2", "", "")
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	require.NotNil(t, second.LastScan)
	assert.WithinDuration(t, first.ValidatedAt, *second.LastScan, time.Second)

	// The warning carries the prior record for the gate to display.
	require.NotNil(t, second.Previous)
	assert.Equal(t, store.validations[0].ID, second.Previous.ID)
	assert.Equal(t, "gate-1", second.Previous.ValidatedBy)

	// The duplicate scan is not re-recorded.
	assert.Len(t, store.validations, 1)
}

func TestValidateOutsideDuplicateWindowIsClean(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, nil, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))

	store.validations = append(store.validations, models.TicketValidation{
		ID:                 uuid.New().String(),
		PurchaseID:         p.ID,
		ValidatedBy:        "gate-1",
		ValidationDatetime: now.Add(-2 * time.Hour),
	})

	outcome, err := svc.Validate(context.Background(), credential(p), "gate-1", "", "")
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
}

func TestValidateRejectsConcurrentScan(t *testing.T) {
	store := newFakeStore()
	lock := &fakeLock{}
	svc := validation.NewService(store, lock, nil)
	now := time.Now()
	p := seedPaidPurchase(store, now.Add(-time.Hour), now.Add(5*time.Hour))

	acquired, err := lock.Acquire(context.Background(), p.ID, "gate-other")
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = svc.Validate(context.Background(), credential(p), "gate-1", "", "")
	assert.ErrorIs(t, err, validation.ErrScanInProgress)
}

func TestCheckInAttendeeIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := validation.NewService(store, nil, nil)

	a := &models.Attendee{
		ID:         uuid.New().String(),
		PurchaseID: uuid.New().String(),
		FirstName:  "A",
		LastName:   "One",
	}
	store.attendees[a.ID] = a

	first, err := svc.CheckInAttendee(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, first.CheckedIn)
	require.NotNil(t, first.CheckInDatetime)
	firstTime := *first.CheckInDatetime

	time.Sleep(5 * time.Millisecond)

	again, err := svc.CheckInAttendee(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, again.CheckedIn)
	assert.Equal(t, firstTime, *again.CheckInDatetime)
}
