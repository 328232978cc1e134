package trade

import (
	"time"

	"gorm.io/gorm"
)

// Trade offer statuses. DISPUTED is terminal for self-service actions;
// resolution is an admin concern outside this service.
const (
	StatusAccepted            = "ACCEPTED"
	StatusAwaitingFulfillment = "AWAITING_FULFILLMENT"
	StatusCompleted           = "COMPLETED"
	StatusDisputed            = "DISPUTED"
)

// TradeOffer is an accepted peer-to-peer barter trade. Commitment runs in two
// phases: both parties lock in, then both fulfill (either through the
// buyer's pickup PIN entered by the seller, or by each party approving
// manually). Status is COMPLETED exactly when both fulfillment flags are set.
type TradeOffer struct {
	gorm.Model  `json:"-"`
	OfferID     string `gorm:"uniqueIndex" json:"offer_id"`
	BuyerID     string `gorm:"index" json:"buyer_id"`
	SellerID    string `gorm:"index" json:"seller_id"`
	ListingID   string `json:"listing_id"`
	OfferedItem string `json:"offered_item"`

	Status string `gorm:"index" json:"status"` // ACCEPTED, AWAITING_FULFILLMENT, COMPLETED, DISPUTED

	IsBuyerLocked     bool `json:"is_buyer_locked"`
	IsSellerLocked    bool `json:"is_seller_locked"`
	IsBuyerFulfilled  bool `json:"is_buyer_fulfilled"`
	IsSellerFulfilled bool `json:"is_seller_fulfilled"`

	// Minted once when the trade enters AWAITING_FULFILLMENT; shared with the
	// buyer only. Stored as a string to keep leading zeros.
	PickupPin string `json:"-"`

	LockedAt    *time.Time `json:"locked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TradeDispute is the handoff record for the admin resolution queue.
type TradeDispute struct {
	gorm.Model `json:"-"`
	DisputeID  string    `gorm:"uniqueIndex" json:"dispute_id"`
	OfferID    string    `gorm:"index" json:"offer_id"`
	RaisedBy   string    `json:"raised_by"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"` // OPEN, RESOLVED
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Dispute statuses
const (
	DisputeOpen     = "OPEN"
	DisputeResolved = "RESOLVED"
)

// OfferView is the projection returned to participants. The pickup PIN is
// included only for the buyer while the trade awaits fulfillment.
type OfferView struct {
	OfferID           string     `json:"offer_id"`
	BuyerID           string     `json:"buyer_id"`
	SellerID          string     `json:"seller_id"`
	ListingID         string     `json:"listing_id"`
	OfferedItem       string     `json:"offered_item"`
	Status            string     `json:"status"`
	IsBuyerLocked     bool       `json:"is_buyer_locked"`
	IsSellerLocked    bool       `json:"is_seller_locked"`
	IsBuyerFulfilled  bool       `json:"is_buyer_fulfilled"`
	IsSellerFulfilled bool       `json:"is_seller_fulfilled"`
	PickupPin         string     `json:"pickup_pin,omitempty"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	DisputedAt        *time.Time `json:"disputed_at,omitempty"`
}

// PickupResult reports a verify-pickup outcome. JustCompleted is true only
// for the call that caused the transition into COMPLETED, so a caller can
// run one-time completion behavior without the core tracking who saw it.
type PickupResult struct {
	Offer         *OfferView `json:"offer"`
	JustCompleted bool       `json:"just_completed"`
}

// PickupRequest carries the optional PIN for verify-pickup.
type PickupRequest struct {
	Pin string `json:"pin"`
}

// DisputeRequest carries the reason for a dispute.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}
