package trade_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuwa/escrow-api/internal/database"
	"github.com/kasuwa/escrow-api/internal/trade"
	"github.com/kasuwa/escrow-api/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPin = "907713"

type notifyEvent struct {
	UserID  string
	Kind    string
	Payload map[string]interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

func (f *fakeNotifier) Notify(userID, kind string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notifyEvent{UserID: userID, Kind: kind, Payload: payload})
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) lastFor(userID, kind string) (notifyEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].UserID == userID && f.events[i].Kind == kind {
			return f.events[i], true
		}
	}
	return notifyEvent{}, false
}

type fixedCodes struct {
	code string
}

func (f fixedCodes) SixDigits() (string, error) {
	return f.code, nil
}

func newTestService(t *testing.T) (*trade.Service, *fakeNotifier) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "trade_test.db"))
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	svc := trade.NewService(db, notifier, fixedCodes{code: testPin})
	return svc, notifier
}

func seedOffer(t *testing.T, svc *trade.Service) *trade.TradeOffer {
	t.Helper()
	offer := &trade.TradeOffer{
		OfferID:     "TRD_" + uuid.New().String(),
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		ListingID:   "LST_" + uuid.New().String(),
		OfferedItem: "Standing fan for blender",
		Status:      trade.StatusAccepted,
	}
	require.NoError(t, svc.GetDB().CreateOffer(offer))
	return offer
}

func lockBoth(t *testing.T, svc *trade.Service, offerID string) {
	t.Helper()
	_, err := svc.LockDeal(offerID, "buyer-1")
	require.NoError(t, err)
	_, err = svc.LockDeal(offerID, "seller-1")
	require.NoError(t, err)
}

func TestLockSingleParty(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)

	view, err := svc.LockDeal(offer.OfferID, "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, trade.StatusAccepted, view.Status)
	assert.True(t, view.IsBuyerLocked)
	assert.False(t, view.IsSellerLocked)
	assert.Empty(t, view.PickupPin)
}

func TestLockBothActivatesFulfillment(t *testing.T) {
	svc, notifier := newTestService(t)
	offer := seedOffer(t, svc)

	_, err := svc.LockDeal(offer.OfferID, "buyer-1")
	require.NoError(t, err)

	sellerView, err := svc.LockDeal(offer.OfferID, "seller-1")
	require.NoError(t, err)

	assert.Equal(t, trade.StatusAwaitingFulfillment, sellerView.Status)
	assert.True(t, sellerView.IsBuyerLocked)
	assert.True(t, sellerView.IsSellerLocked)
	require.NotNil(t, sellerView.LockedAt)
	// The PIN belongs to the buyer
	assert.Empty(t, sellerView.PickupPin)

	buyerView, err := svc.GetOffer(offer.OfferID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, testPin, buyerView.PickupPin)

	assert.Equal(t, 2, notifier.count("TRADE_AWAITING_PICKUP"))
	buyerEvent, ok := notifier.lastFor("buyer-1", "TRADE_AWAITING_PICKUP")
	require.True(t, ok)
	assert.Equal(t, testPin, buyerEvent.Payload["pickup_pin"])
}

func TestLockIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)

	_, err := svc.LockDeal(offer.OfferID, "buyer-1")
	require.NoError(t, err)

	// Same party again: no-op, not an error
	view, err := svc.LockDeal(offer.OfferID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusAccepted, view.Status)
	assert.False(t, view.IsSellerLocked)

	// Re-locking after both are committed is also a no-op
	_, err = svc.LockDeal(offer.OfferID, "seller-1")
	require.NoError(t, err)
	view, err = svc.LockDeal(offer.OfferID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusAwaitingFulfillment, view.Status)
}

func TestLockNonParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)

	_, err := svc.LockDeal(offer.OfferID, "stranger-9")
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestLockMissingOffer(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.LockDeal("TRD_missing", "buyer-1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestPinPickupCompletesBothSides(t *testing.T) {
	svc, notifier := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	result, err := svc.VerifyPickup(offer.OfferID, "seller-1", testPin)
	require.NoError(t, err)

	assert.True(t, result.JustCompleted)
	assert.Equal(t, trade.StatusCompleted, result.Offer.Status)
	assert.True(t, result.Offer.IsBuyerFulfilled)
	assert.True(t, result.Offer.IsSellerFulfilled)
	require.NotNil(t, result.Offer.CompletedAt)
	assert.Equal(t, 2, notifier.count("TRADE_COMPLETED"))
}

func TestPinPickupSellerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	_, err := svc.VerifyPickup(offer.OfferID, "buyer-1", testPin)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestPinPickupWrongPin(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	_, err := svc.VerifyPickup(offer.OfferID, "seller-1", "000000")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))

	view, err := svc.GetOffer(offer.OfferID, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusAwaitingFulfillment, view.Status)
}

func TestManualDualApproval(t *testing.T) {
	svc, notifier := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	// One approval is not enough
	first, err := svc.VerifyPickup(offer.OfferID, "buyer-1", "")
	require.NoError(t, err)
	assert.False(t, first.JustCompleted)
	assert.Equal(t, trade.StatusAwaitingFulfillment, first.Offer.Status)
	assert.True(t, first.Offer.IsBuyerFulfilled)
	assert.False(t, first.Offer.IsSellerFulfilled)

	// Re-approval by the same party is idempotent
	repeat, err := svc.VerifyPickup(offer.OfferID, "buyer-1", "")
	require.NoError(t, err)
	assert.False(t, repeat.JustCompleted)
	assert.Equal(t, trade.StatusAwaitingFulfillment, repeat.Offer.Status)

	// The second party completes the trade
	second, err := svc.VerifyPickup(offer.OfferID, "seller-1", "")
	require.NoError(t, err)
	assert.True(t, second.JustCompleted)
	assert.Equal(t, trade.StatusCompleted, second.Offer.Status)
	assert.Equal(t, 2, notifier.count("TRADE_COMPLETED"))

	// Completion fires exactly once; further calls are rejected
	_, err = svc.VerifyPickup(offer.OfferID, "buyer-1", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Equal(t, 2, notifier.count("TRADE_COMPLETED"))
}

func TestVerifyPickupRequiresAwaiting(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)

	_, err := svc.VerifyPickup(offer.OfferID, "buyer-1", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestDisputeFreezesTrade(t *testing.T) {
	svc, notifier := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	view, err := svc.RaiseDispute(offer.OfferID, "buyer-1", "Item was not as described")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusDisputed, view.Status)
	require.NotNil(t, view.DisputedAt)

	// The admin queue gets the handoff
	assert.Equal(t, 1, notifier.count("TRADE_DISPUTED"))
	adminEvent, ok := notifier.lastFor("ADMIN", "TRADE_DISPUTED")
	require.True(t, ok)
	assert.Equal(t, "Item was not as described", adminEvent.Payload["reason"])
	assert.Equal(t, "buyer-1", adminEvent.Payload["raised_by"])

	dispute, err := svc.GetDB().GetDisputeByOfferID(offer.OfferID)
	require.NoError(t, err)
	require.NotNil(t, dispute)
	assert.Equal(t, trade.DisputeOpen, dispute.Status)

	// Disputed is terminal for self-service actions
	_, err = svc.LockDeal(offer.OfferID, "seller-1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	_, err = svc.VerifyPickup(offer.OfferID, "seller-1", testPin)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	_, err = svc.RaiseDispute(offer.OfferID, "seller-1", "Counter claim")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestDisputeRequiresReason(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	_, err := svc.RaiseDispute(offer.OfferID, "buyer-1", "   ")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
}

func TestDisputeOnlyWhileAwaiting(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)

	_, err := svc.RaiseDispute(offer.OfferID, "buyer-1", "Never locked in")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestDisputeNonParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	offer := seedOffer(t, svc)
	lockBoth(t, svc, offer.OfferID)

	_, err := svc.RaiseDispute(offer.OfferID, "stranger-9", "Not my trade")
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}
