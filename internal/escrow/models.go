package escrow

import (
	"time"

	"github.com/kasuwa/escrow-api/internal/fees"
	"gorm.io/gorm"
)

// Escrow statuses. Forward-only: no transition ever reverts a row to an
// earlier state.
const (
	StatusPending  = "PENDING"
	StatusHeld     = "HELD"
	StatusReleased = "RELEASED"
	StatusExpired  = "EXPIRED"
)

// Upstream payment provider statuses, tracked independently of the escrow
// lifecycle.
const (
	PaymentPending = "PENDING"
	PaymentSuccess = "SUCCESS"
)

// EscrowTransaction is the ledger row holding buyer funds for one purchase.
// The money fields are locked from the fee breakdown at creation and never
// recomputed, even if the schedule changes later. Rows are never deleted.
type EscrowTransaction struct {
	gorm.Model `json:"-"`
	EscrowID   string `gorm:"uniqueIndex" json:"escrow_id"`
	OrderID    string `gorm:"uniqueIndex" json:"order_id"`
	BuyerID    string `gorm:"index" json:"buyer_id"`
	SellerID   string `gorm:"index" json:"seller_id"`
	ListingID  string `json:"listing_id"`

	ItemPriceCents      int64  `json:"item_price_cents"`
	ProtectionFeeCents  int64  `json:"protection_fee_cents"`
	CommissionCents     int64  `json:"commission_cents"`
	TotalPaidCents      int64  `json:"total_paid_cents"`
	SellerReceivesCents int64  `json:"seller_receives_cents"`
	CurrencyCode        string `json:"currency_code"`

	Status        string `gorm:"index" json:"status"`  // PENDING, HELD, RELEASED, EXPIRED
	PaymentStatus string `json:"payment_status"`       // PENDING, SUCCESS

	// 6-digit numeric string, generated once, compared byte-for-byte.
	// Stored as a string so a leading zero survives.
	ConfirmationCode string `json:"-"`

	PaymentProvider  string `json:"payment_provider"`
	PaymentReference string `json:"payment_reference"`
	ShippingMethod   string `json:"shipping_method"`

	ExpiresAt   time.Time  `json:"expires_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// View is the read projection for an escrow, joining the order and the
// parties. The confirmation code is deliberately absent: the buyer receives
// it once through the initiate response and their notifications.
type View struct {
	EscrowID            string     `json:"escrow_id"`
	OrderID             string     `json:"order_id"`
	Status              string     `json:"status"`
	PaymentStatus       string     `json:"payment_status"`
	ItemPriceCents      int64      `json:"item_price_cents"`
	ProtectionFeeCents  int64      `json:"protection_fee_cents"`
	CommissionCents     int64      `json:"commission_cents"`
	TotalPaidCents      int64      `json:"total_paid_cents"`
	SellerReceivesCents int64      `json:"seller_receives_cents"`
	CurrencyCode        string     `json:"currency_code"`
	PaymentProvider     string     `json:"payment_provider"`
	ShippingMethod      string     `json:"shipping_method"`
	ExpiresAt           time.Time  `json:"expires_at"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	ReleasedAt          *time.Time `json:"released_at,omitempty"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`

	OrderStatus        string `json:"order_status"`
	OrderPaymentStatus string `json:"order_payment_status"`
	BuyerID            string `json:"buyer_id"`
	BuyerName          string `json:"buyer_name"`
	SellerID           string `json:"seller_id"`
	SellerName         string `json:"seller_name"`
	ListingID          string `json:"listing_id"`
	ListingTitle       string `json:"listing_title"`
	ListingImageURL    string `json:"listing_image_url"`
}

// InitiateRequest is the payload for starting an escrow purchase.
type InitiateRequest struct {
	ListingID       string `json:"listing_id" binding:"required"`
	PaymentProvider string `json:"payment_provider"`
	ShippingMethod  string `json:"shipping_method"`
}

// InitiateResponse returns the created escrow alongside the locked fee
// breakdown and the buyer's confirmation code.
type InitiateResponse struct {
	Escrow           *View          `json:"escrow"`
	Fees             fees.Breakdown `json:"fees"`
	ConfirmationCode string         `json:"confirmation_code"`
}

// ConfirmRequest is the payload for confirming receipt.
type ConfirmRequest struct {
	ConfirmationCode string `json:"confirmation_code" binding:"required"`
}

// ConfirmResult reports the outcome of the release.
type ConfirmResult struct {
	Success             bool  `json:"success"`
	SellerReceivesCents int64 `json:"seller_receives_cents"`
}
