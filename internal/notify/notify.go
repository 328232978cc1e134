package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Notification kinds emitted by the escrow and trade lifecycles.
const (
	KindEscrowHeld     = "ESCROW_HELD"
	KindEscrowCode     = "ESCROW_CODE"
	KindEscrowReleased = "ESCROW_RELEASED"
	KindEscrowComplete = "ESCROW_COMPLETE"
	KindEscrowExpired  = "ESCROW_EXPIRED"

	KindTradeAwaitingPickup = "TRADE_AWAITING_PICKUP"
	KindTradeCompleted      = "TRADE_COMPLETED"
	KindTradeDisputed       = "TRADE_DISPUTED"
)

// Notifier forwards a lifecycle event to a user. Delivery is fire-and-forget:
// callers invoke it only after their own state transition has committed and
// never propagate its failure.
type Notifier interface {
	Notify(userID, kind string, payload map[string]interface{})
}

// Mailer is the best-effort email side channel for escrow milestones.
type Mailer interface {
	SendEscrowPaymentReceived(sellerEmail, listingTitle string, itemPriceCents int64)
	SendEscrowReleased(sellerEmail, listingTitle string, sellerReceivesCents int64)
}

// Notification is one persisted delivery record.
type Notification struct {
	gorm.Model     `json:"-"`
	NotificationID string    `gorm:"uniqueIndex" json:"notification_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	Kind           string    `json:"kind"`
	Payload        string    `json:"payload"` // JSON object
	CreatedAt      time.Time `json:"created_at"`
}

// Relay is the default Notifier. It persists each notification so a delivery
// worker (or the simulation) can pick it up, and logs the dispatch.
type Relay struct {
	db *gorm.DB
}

func NewRelay(db *gorm.DB) *Relay {
	return &Relay{db: db}
}

func (r *Relay) Notify(userID, kind string, payload map[string]interface{}) {
	logger := log.With().
		Str("user_id", userID).
		Str("kind", kind).
		Str("service", "notify").
		Logger()

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode notification payload")
		return
	}

	notification := &Notification{
		NotificationID: "NTF_" + uuid.New().String(),
		UserID:         userID,
		Kind:           kind,
		Payload:        string(body),
		CreatedAt:      time.Now(),
	}

	if err := r.db.Create(notification).Error; err != nil {
		// Best effort: the owning transition has already committed
		logger.Error().Err(err).Msg("failed to persist notification")
		return
	}

	logger.Info().Msg("notification dispatched")
}

// ListByUser returns a user's notifications, newest first.
func (r *Relay) ListByUser(userID string) ([]Notification, error) {
	var notifications []Notification
	if err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// LogMailer logs outbound mail instead of sending it. Environments with a
// real mail provider swap in their own Mailer.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) SendEscrowPaymentReceived(sellerEmail, listingTitle string, itemPriceCents int64) {
	log.Info().
		Str("to", sellerEmail).
		Str("listing_title", listingTitle).
		Int64("item_price_cents", itemPriceCents).
		Msg("mail: escrow payment received")
}

func (m *LogMailer) SendEscrowReleased(sellerEmail, listingTitle string, sellerReceivesCents int64) {
	log.Info().
		Str("to", sellerEmail).
		Str("listing_title", listingTitle).
		Int64("seller_receives_cents", sellerReceivesCents).
		Msg("mail: escrow released")
}
