package escrow

import (
	"context"
	"time"

	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Sweeper expires held escrows whose confirmation window has lapsed. It is
// the only writer of the EXPIRED status and the system's single background
// task. Each row is handled independently so one failure never aborts the
// batch, and the held-status guard makes the sweep safe to race against
// ConfirmReceipt.
type Sweeper struct {
	db       *Database
	notifier notify.Notifier
	interval time.Duration
}

func NewSweeper(db *Database, notifier notify.Notifier, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		notifier: notifier,
		interval: interval,
	}
}

// Start begins the expiry sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "expiry_sweeper").Logger()
	logger.Info().Dur("interval", s.interval).Msg("starting expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down expiry sweeper")
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// Sweep runs one pass: every escrow still held past its deadline is refunded.
// The protection fee is not refunded; only the item price goes back to the
// buyer.
func (s *Sweeper) Sweep() error {
	logger := log.With().Str("component", "expiry_sweeper").Logger()

	expired, err := s.db.GetExpiredHeld(time.Now())
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		return nil
	}

	logger.Info().Int("expired_count", len(expired)).Msg("processing expired escrows")

	for i := range expired {
		if err := s.expireOne(&expired[i]); err != nil {
			logger.Error().
				Err(err).
				Str("escrow_id", expired[i].EscrowID).
				Msg("failed to expire escrow")
			continue
		}
	}

	return nil
}

func (s *Sweeper) expireOne(escrow *EscrowTransaction) error {
	logger := log.With().
		Str("component", "expiry_sweeper").
		Str("escrow_id", escrow.EscrowID).
		Str("order_id", escrow.OrderID).
		Logger()

	// One small transaction per row: the expiry and the order cancellation
	// commit together, and a failed row rolls back without touching the rest
	// of the batch.
	var applied bool
	err := s.db.WithTx(func(tx *Database) error {
		var err error
		applied, err = tx.TransitionEscrow(escrow.EscrowID, StatusHeld, map[string]interface{}{
			"status":      StatusExpired,
			"refunded_at": time.Now(),
		})
		if err != nil || !applied {
			return err
		}
		return tx.UpdateOrderStatus(escrow.OrderID, types.OrderStatusCancelled, types.PaymentStatusRefunded)
	})
	if err != nil {
		return err
	}
	if !applied {
		// The buyer confirmed between the scan and this update. Their release
		// won; nothing to refund.
		logger.Info().Msg("escrow no longer held, skipping")
		return nil
	}

	logger.Info().
		Int64("refund_cents", escrow.ItemPriceCents).
		Msg("escrow expired, buyer refunded")

	s.notifier.Notify(escrow.BuyerID, notify.KindEscrowExpired, map[string]interface{}{
		"order_id":     escrow.OrderID,
		"refund_cents": escrow.ItemPriceCents,
		"message":      "Your escrow purchase expired without confirmation. The item price has been refunded; the protection fee is non-refundable.",
	})

	s.notifier.Notify(escrow.SellerID, notify.KindEscrowExpired, map[string]interface{}{
		"order_id": escrow.OrderID,
		"message":  "The sale was cancelled because the buyer did not confirm receipt in time.",
	})

	return nil
}
