package purchase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgo/internal/models"
	"eventgo/internal/payment"
	"eventgo/internal/purchase"
)

// fakeStore is an in-memory DBLayer. Its transition methods hold one mutex,
// mirroring the serialization the row lock provides in postgres.
type fakeStore struct {
	mu        sync.Mutex
	tt        *models.TicketType
	user      *models.User
	purchases map[string]*models.Purchase
	payments  []*models.Payment
	attendees []*models.Attendee
	validated map[string]bool
}

func newFakeStore(tt *models.TicketType, user *models.User) *fakeStore {
	return &fakeStore{
		tt:        tt,
		user:      user,
		purchases: make(map[string]*models.Purchase),
		validated: make(map[string]bool),
	}
}

func (f *fakeStore) confirmedQuantity() int {
	sold := 0
	for _, p := range f.purchases {
		if p.Status == models.PurchasePaid {
			sold += p.Quantity
		}
	}
	return sold
}

func (f *fakeStore) GetTicketTypeWithEvent(ctx context.Context, id string) (*models.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tt == nil || f.tt.ID != id {
		return nil, fmt.Errorf("ticket type %s: %w", id, models.ErrNotFound)
	}
	cp := *f.tt
	return &cp, nil
}

func (f *fakeStore) GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", id, models.ErrNotFound)
	}
	cp := *p
	cp.TicketType = f.tt
	cp.User = f.user
	return &cp, nil
}

func (f *fakeStore) GetPurchasesByUser(ctx context.Context, userID string) ([]models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Purchase
	for _, p := range f.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.ID != id {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	cp := *f.user
	return &cp, nil
}

func (f *fakeStore) CreatePurchase(ctx context.Context, p *models.Purchase, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := f.tt.QuantityAvailable - f.confirmedQuantity()
	if !f.tt.IsActive || p.Quantity <= 0 || p.Quantity > remaining {
		return fmt.Errorf("ticket type %s: %w", f.tt.ID, models.ErrInventoryExhausted)
	}
	cp := *p
	f.purchases[p.ID] = &cp
	return nil
}

func (f *fakeStore) ConfirmPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment, attendees []*models.Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmedQuantity()+p.Quantity > f.tt.QuantityAvailable {
		return fmt.Errorf("ticket type %s oversold: %w", f.tt.ID, models.ErrInventoryExhausted)
	}
	cp := *p
	cp.TicketType = nil
	cp.User = nil
	f.purchases[p.ID] = &cp
	if pay != nil {
		f.payments = append(f.payments, pay)
	}
	f.attendees = append(f.attendees, attendees...)
	f.tt.QuantitySold = f.confirmedQuantity()
	return nil
}

func (f *fakeStore) FailPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.TicketType = nil
	cp.User = nil
	f.purchases[p.ID] = &cp
	if pay != nil {
		f.payments = append(f.payments, pay)
	}
	return nil
}

func (f *fakeStore) CancelPurchase(ctx context.Context, p *models.Purchase, wasPaid bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.TicketType = nil
	cp.User = nil
	f.purchases[p.ID] = &cp
	f.tt.QuantitySold = f.confirmedQuantity()
	return nil
}

func (f *fakeStore) MarkRefundedPurchase(ctx context.Context, p *models.Purchase) error {
	return f.CancelPurchase(ctx, p, true)
}

func (f *fakeStore) HasValidation(ctx context.Context, purchaseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validated[purchaseID], nil
}

// fakeIssuer returns a canned credential.
type fakeIssuer struct{}

func (fakeIssuer) Issue(p *models.Purchase, user *models.User, now time.Time) (string, []byte, error) {
	return fmt.Sprintf(`{"purchase_id":%q,"reference":%q}`, p.ID, p.Reference), []byte{0x89, 'P', 'N', 'G'}, nil
}

func testFixtures(available int) (*models.TicketType, *models.User) {
	now := time.Now()
	event := &models.Event{
		ID:            uuid.New().String(),
		Title:         "Go Conference",
		OrganizerID:   "organizer-1",
		StartDatetime: now.Add(24 * time.Hour),
		EndDatetime:   now.Add(30 * time.Hour),
	}
	tt := &models.TicketType{
		ID:                uuid.New().String(),
		EventID:           event.ID,
		Event:             event,
		Name:              "General",
		Price:             decimal.RequireFromString("50.00"),
		QuantityAvailable: available,
		IsActive:          true,
	}
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     "buyer@example.com",
		FirstName: "Bea",
		LastName:  "Yer",
		Role:      "participant",
	}
	return tt, user
}

func newTestService(store *fakeStore) *purchase.Service {
	svc := purchase.NewService(store, fakeIssuer{}, nil, nil, "XOF")
	return svc
}

func TestCreatePurchase(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)

	p, err := svc.Create(context.Background(), tt.ID, user.ID, 3, models.MethodMobileMoney)
	require.NoError(t, err)

	assert.Equal(t, models.PurchasePending, p.Status)
	assert.Equal(t, "150.00", p.TotalAmount.StringFixed(2))
	assert.Equal(t, "50.00", p.UnitPrice.StringFixed(2))
	assert.Regexp(t, `^EVT-[0-9A-F]{8}$`, p.Reference)
}

func TestCreatePurchaseRejectsEndedEvent(t *testing.T) {
	tt, user := testFixtures(10)
	tt.Event.StartDatetime = time.Now().Add(-3 * time.Hour)
	tt.Event.EndDatetime = time.Now().Add(-1 * time.Hour)
	store := newFakeStore(tt, user)
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), tt.ID, user.ID, 1, models.MethodCard)
	assert.ErrorIs(t, err, models.ErrEventClosed)
}

func TestCreatePurchaseRejectsExhaustedInventory(t *testing.T) {
	tt, user := testFixtures(2)
	store := newFakeStore(tt, user)
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), tt.ID, user.ID, 3, models.MethodCard)
	assert.ErrorIs(t, err, models.ErrInventoryExhausted)
}

func TestCreatePurchaseRejectsClosedSaleWindow(t *testing.T) {
	tt, user := testFixtures(10)
	past := time.Now().Add(-time.Hour)
	tt.SaleEndDatetime = &past
	store := newFakeStore(tt, user)
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), tt.ID, user.ID, 1, models.MethodCard)
	assert.ErrorIs(t, err, models.ErrInventoryExhausted)
}

func TestConfirmPaymentIssuesCredential(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 2, models.MethodCard)
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true, Reference: "ch_123"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.PurchasePaid, confirmed.Status)
	assert.NotNil(t, confirmed.PaidAt)
	assert.NotEmpty(t, confirmed.QRCodeData)
	assert.NotEmpty(t, confirmed.QRCodePNG)
	assert.Regexp(t, `^PAY-[0-9A-F]{12}$`, confirmed.PaymentReference)

	require.Len(t, store.payments, 1)
	assert.Equal(t, models.PaymentSuccess, store.payments[0].Status)
	assert.Equal(t, "ch_123", store.payments[0].ExternalReference)

	// With no explicit attendee list the buyer becomes the attendee.
	require.Len(t, store.attendees, 1)
	assert.Equal(t, user.Email, store.attendees[0].Email)
}

func TestConfirmPaymentRequiresPendingStatus(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true}, nil)
	require.NoError(t, err)

	// Second confirmation of the same purchase is an invalid transition.
	_, err = svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConfirmPaymentRejectsAttendeeMismatch(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 3, models.MethodCard)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true}, []purchase.AttendeeInput{
		{FirstName: "Only", LastName: "One"},
	})
	assert.ErrorIs(t, err, models.ErrAttendeeMismatch)
}

func TestFailPaymentCancelsAndRecordsAttempt(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
	require.NoError(t, err)

	failed, err := svc.FailPayment(ctx, p.ID, "insufficient funds")
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseCancelled, failed.Status)
	require.Len(t, store.payments, 1)
	assert.Equal(t, models.PaymentFailed, store.payments[0].Status)
	assert.Equal(t, "insufficient funds", store.payments[0].FailureReason)
}

func TestCancelGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("started event blocks cancellation", func(t *testing.T) {
		tt, user := testFixtures(10)
		store := newFakeStore(tt, user)
		svc := newTestService(store)

		p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
		require.NoError(t, err)

		tt.Event.StartDatetime = time.Now().Add(-time.Minute)
		_, err = svc.Cancel(ctx, p.ID)
		assert.ErrorIs(t, err, models.ErrNotCancellable)
	})

	t.Run("scanned ticket blocks cancellation", func(t *testing.T) {
		tt, user := testFixtures(10)
		store := newFakeStore(tt, user)
		svc := newTestService(store)

		p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
		require.NoError(t, err)
		_, err = svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true}, nil)
		require.NoError(t, err)

		store.mu.Lock()
		store.validated[p.ID] = true
		store.mu.Unlock()

		_, err = svc.Cancel(ctx, p.ID)
		assert.ErrorIs(t, err, models.ErrNotCancellable)
	})

	t.Run("cancelled purchase cannot be cancelled again", func(t *testing.T) {
		tt, user := testFixtures(10)
		store := newFakeStore(tt, user)
		svc := newTestService(store)

		p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, p.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, p.ID)
		assert.ErrorIs(t, err, models.ErrNotCancellable)
	})
}

func TestCancelPaidPurchaseReleasesInventory(t *testing.T) {
	tt, user := testFixtures(5)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 3, models.MethodCard)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, p.ID, &payment.Result{Success: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tt.QuantitySold)

	_, err = svc.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tt.QuantitySold)
}

func TestMarkRefundedRequiresPaidStatus(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
	require.NoError(t, err)

	_, err = svc.MarkRefunded(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConcurrentConfirmationsNeverOversell(t *testing.T) {
	tt, user := testFixtures(10)
	store := newFakeStore(tt, user)
	svc := newTestService(store)
	ctx := context.Background()

	// Ten pending purchases of 3 tickets each all hold a capture; at most
	// three can confirm against 10 available.
	var ids []string
	for i := 0; i < 10; i++ {
		p, err := svc.Create(ctx, tt.ID, user.ID, 1, models.MethodCard)
		require.NoError(t, err)
		// Bypass the service to widen the pending quantity beyond what
		// Create would admit at once.
		store.mu.Lock()
		store.purchases[p.ID].Quantity = 3
		store.mu.Unlock()
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	results := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(purchaseID string) {
			defer wg.Done()
			_, err := svc.ConfirmPayment(ctx, purchaseID, &payment.Result{Success: true}, nil)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrInventoryExhausted)
		}
	}

	assert.Equal(t, 3, succeeded)
	assert.LessOrEqual(t, store.confirmedQuantity(), tt.QuantityAvailable)
}
