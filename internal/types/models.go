package types

import (
	"time"

	"gorm.io/gorm"
)

// Listing statuses
const (
	ListingStatusActive = "ACTIVE"
	ListingStatusSold   = "SOLD"
)

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusFulfilled = "FULFILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Order payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
)

type User struct {
	gorm.Model `json:"-"`
	UserID     string    `gorm:"uniqueIndex" json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Listing struct {
	gorm.Model     `json:"-"`
	ListingID      string    `gorm:"uniqueIndex" json:"listing_id"`
	SellerID       string    `json:"seller_id"`
	Title          string    `json:"title"`
	PriceCents     int64     `json:"price_cents"`
	CurrencyCode   string    `json:"currency_code"`
	IsDistressSale bool      `json:"is_distress_sale"`
	Status         string    `json:"status"` // ACTIVE, SOLD
	FirstImageURL  string    `json:"first_image_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string    `gorm:"uniqueIndex" json:"order_id"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	ListingID     string    `json:"listing_id"`
	PriceCents    int64     `json:"price_cents"` // locked at purchase time
	CurrencyCode  string    `json:"currency_code"`
	Status        string    `json:"status"`         // PENDING, PAID, FULFILLED, CANCELLED
	PaymentStatus string    `json:"payment_status"` // PENDING, PAID, REFUNDED
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
