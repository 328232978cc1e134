package escrow_test

import (
	"testing"
	"time"

	"github.com/kasuwa/escrow-api/internal/escrow"
	"github.com/kasuwa/escrow-api/internal/types"
	"github.com/kasuwa/escrow-api/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func backdateExpiry(t *testing.T, db *gorm.DB, escrowID string) {
	t.Helper()
	require.NoError(t, db.Model(&escrow.EscrowTransaction{}).
		Where("escrow_id = ?", escrowID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)
}

func TestSweepExpiresHeldEscrow(t *testing.T) {
	svc, db, notifier, _ := newTestService(t)
	seedUser(t, db, "buyer-1", "Bola")
	seedUser(t, db, "seller-1", "Sade")
	listing := seedListing(t, db, "seller-1", 2_000_000)

	resp, err := svc.Initiate("buyer-1", escrow.InitiateRequest{ListingID: listing.ListingID})
	require.NoError(t, err)
	require.Equal(t, escrow.StatusHeld, resp.Escrow.Status)

	backdateExpiry(t, db, resp.Escrow.EscrowID)

	sweeper := escrow.NewSweeper(svc.GetDB(), notifier, time.Hour)
	require.NoError(t, sweeper.Sweep())

	view, err := svc.GetByOrderID(resp.Escrow.OrderID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusExpired, view.Status)
	require.NotNil(t, view.RefundedAt)
	assert.Equal(t, types.OrderStatusCancelled, view.OrderStatus)
	assert.Equal(t, types.PaymentStatusRefunded, view.OrderPaymentStatus)

	// Buyer and seller each hear about the expiry
	assert.Equal(t, 2, notifier.count("ESCROW_EXPIRED"))

	// The refund covers the item price only; the protection fee is kept
	buyerEvent, ok := notifier.lastFor("buyer-1", "ESCROW_EXPIRED")
	require.True(t, ok)
	assert.EqualValues(t, resp.Escrow.ItemPriceCents, buyerEvent.Payload["refund_cents"])

	// Confirming after expiry names the terminal status
	_, err = svc.ConfirmReceipt("buyer-1", resp.Escrow.OrderID, resp.ConfirmationCode)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestSweepLeavesUnexpiredAlone(t *testing.T) {
	svc, db, notifier, _ := newTestService(t)
	seedUser(t, db, "buyer-1", "Bola")
	seedUser(t, db, "seller-1", "Sade")
	listing := seedListing(t, db, "seller-1", 2_000_000)

	resp, err := svc.Initiate("buyer-1", escrow.InitiateRequest{ListingID: listing.ListingID})
	require.NoError(t, err)

	sweeper := escrow.NewSweeper(svc.GetDB(), notifier, time.Hour)
	require.NoError(t, sweeper.Sweep())

	view, err := svc.GetByOrderID(resp.Escrow.OrderID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusHeld, view.Status)
	assert.Zero(t, notifier.count("ESCROW_EXPIRED"))
}

func TestConfirmationWinsOverLateSweep(t *testing.T) {
	// The 24h window is enforced only by the sweeper. A buyer who confirms
	// before the sweep reaches the row keeps the release; the sweep then
	// observes the changed status and must not double-apply a refund.
	svc, db, notifier, _ := newTestService(t)
	seedUser(t, db, "buyer-1", "Bola")
	seedUser(t, db, "seller-1", "Sade")
	listing := seedListing(t, db, "seller-1", 2_000_000)

	resp, err := svc.Initiate("buyer-1", escrow.InitiateRequest{ListingID: listing.ListingID})
	require.NoError(t, err)

	backdateExpiry(t, db, resp.Escrow.EscrowID)

	_, err = svc.ConfirmReceipt("buyer-1", resp.Escrow.OrderID, resp.ConfirmationCode)
	require.NoError(t, err)

	sweeper := escrow.NewSweeper(svc.GetDB(), notifier, time.Hour)
	require.NoError(t, sweeper.Sweep())

	// Exactly one terminal state, and only the release side notified
	view, err := svc.GetByOrderID(resp.Escrow.OrderID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, view.Status)
	assert.Nil(t, view.RefundedAt)
	assert.Equal(t, types.OrderStatusFulfilled, view.OrderStatus)
	assert.Equal(t, 1, notifier.count("ESCROW_RELEASED"))
	assert.Zero(t, notifier.count("ESCROW_EXPIRED"))
}

func TestSweepIsolatesRowFailures(t *testing.T) {
	// Two expired escrows; breaking one order row must not stop the other
	// escrow from expiring, and the broken row must roll back whole rather
	// than expire without its order cancellation.
	svc, db, notifier, _ := newTestService(t)
	seedUser(t, db, "buyer-1", "Bola")
	seedUser(t, db, "buyer-2", "Chidi")
	seedUser(t, db, "seller-1", "Sade")

	first := seedListing(t, db, "seller-1", 2_000_000)
	second := seedListing(t, db, "seller-1", 3_000_000)

	respA, err := svc.Initiate("buyer-1", escrow.InitiateRequest{ListingID: first.ListingID})
	require.NoError(t, err)
	respB, err := svc.Initiate("buyer-2", escrow.InitiateRequest{ListingID: second.ListingID})
	require.NoError(t, err)

	backdateExpiry(t, db, respA.Escrow.EscrowID)
	backdateExpiry(t, db, respB.Escrow.EscrowID)

	// Orphan the first order so its status update fails
	require.NoError(t, db.Where("order_id = ?", respA.Escrow.OrderID).Delete(&types.Order{}).Error)

	sweeper := escrow.NewSweeper(svc.GetDB(), notifier, time.Hour)
	require.NoError(t, sweeper.Sweep())

	viewB, err := svc.GetByOrderID(respB.Escrow.OrderID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusExpired, viewB.Status)

	// The failed row stayed held, not half-expired
	brokenA, err := svc.GetDB().GetEscrow(respA.Escrow.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusHeld, brokenA.Status)
	assert.Nil(t, brokenA.RefundedAt)
}
