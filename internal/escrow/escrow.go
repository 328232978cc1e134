package escrow

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuwa/escrow-api/internal/codes"
	"github.com/kasuwa/escrow-api/internal/fees"
	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/internal/payments"
	"github.com/kasuwa/escrow-api/internal/types"
	"github.com/kasuwa/escrow-api/pkg/apperrors"
	"github.com/kasuwa/escrow-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns the escrow transaction lifecycle: creation, payment-success,
// buyer confirmation, and the reads supporting them. Expiry is driven by the
// Sweeper in this package.
type Service struct {
	db        *Database
	notifier  notify.Notifier
	mailer    notify.Mailer
	codes     codes.Generator
	providers *payments.Registry
	window    time.Duration // time a held escrow waits for confirmation
}

func NewService(
	gormDB *gorm.DB,
	notifier notify.Notifier,
	mailer notify.Mailer,
	generator codes.Generator,
	providers *payments.Registry,
	window time.Duration,
) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		notifier:  notifier,
		mailer:    mailer,
		codes:     generator,
		providers: providers,
		window:    window,
	}
}

// Initiate starts an escrow purchase for a distress-sale listing. On success
// it creates the order and escrow row atomically with fees locked at the
// current schedule; when the mock provider is selected the payment-success
// transition runs inline and the caller never sees the pending state.
func (s *Service) Initiate(buyerID string, req InitiateRequest) (*InitiateResponse, error) {
	logger := log.With().
		Str("buyer_id", buyerID).
		Str("listing_id", req.ListingID).
		Str("service", "escrow").
		Logger()

	logger.Info().Msg("initiating escrow purchase")

	// Preconditions, first failure wins. Nothing is persisted until all pass.
	listing, err := s.db.GetListing(req.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	if listing == nil {
		return nil, apperrors.NotFound("Listing not found")
	}
	if !listing.IsDistressSale {
		return nil, apperrors.InvalidState("Listing is not eligible for escrow purchase")
	}
	if buyerID == listing.SellerID {
		return nil, apperrors.Forbidden("You cannot purchase your own listing")
	}
	if listing.PriceCents <= 0 {
		return nil, apperrors.InvalidInput("Listing price must be positive")
	}
	if listing.Status != types.ListingStatusActive {
		return nil, apperrors.InvalidState("Listing is not available")
	}

	provider, err := s.providers.Resolve(req.PaymentProvider)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	breakdown := fees.Compute(listing.PriceCents)

	code, err := s.codes.SixDigits()
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation code: %w", err)
	}

	now := time.Now()
	order := &types.Order{
		OrderID:       "ORD_" + uuid.New().String(),
		BuyerID:       buyerID,
		SellerID:      listing.SellerID,
		ListingID:     listing.ListingID,
		PriceCents:    listing.PriceCents,
		CurrencyCode:  listing.CurrencyCode,
		Status:        types.OrderStatusPending,
		PaymentStatus: types.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	escrow := &EscrowTransaction{
		EscrowID:            "ESC_" + uuid.New().String(),
		OrderID:             order.OrderID,
		BuyerID:             buyerID,
		SellerID:            listing.SellerID,
		ListingID:           listing.ListingID,
		ItemPriceCents:      breakdown.ItemPriceCents,
		ProtectionFeeCents:  breakdown.ProtectionFeeCents,
		CommissionCents:     breakdown.CommissionCents,
		TotalPaidCents:      breakdown.TotalPaidCents,
		SellerReceivesCents: breakdown.SellerReceivesCents,
		CurrencyCode:        listing.CurrencyCode,
		Status:              StatusPending,
		PaymentStatus:       PaymentPending,
		ConfirmationCode:    code,
		PaymentProvider:     provider.Name(),
		ShippingMethod:      req.ShippingMethod,
		ExpiresAt:           now.Add(s.window),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.db.CreateEscrowWithOrder(escrow, order); err != nil {
		logger.Error().Err(err).Msg("failed to create escrow transaction")
		return nil, fmt.Errorf("failed to create escrow transaction: %w", err)
	}

	logger.Info().
		Str("escrow_id", escrow.EscrowID).
		Str("order_id", order.OrderID).
		Int64("total_paid_cents", escrow.TotalPaidCents).
		Time("expires_at", escrow.ExpiresAt).
		Msg("escrow transaction created")

	result, err := provider.Charge(escrow.EscrowID, escrow.TotalPaidCents, escrow.CurrencyCode)
	if err != nil {
		logger.Error().Err(err).Msg("provider charge failed to start")
		return nil, fmt.Errorf("failed to start payment: %w", err)
	}

	if result.Succeeded {
		// Synchronous provider: drive the payment-success transition inline
		if escrow, err = s.HandlePaymentSuccess(escrow.EscrowID, result.Reference); err != nil {
			return nil, err
		}
	}

	view, err := s.buildView(escrow)
	if err != nil {
		return nil, err
	}

	return &InitiateResponse{
		Escrow:           view,
		Fees:             breakdown,
		ConfirmationCode: code,
	}, nil
}

// HandlePaymentSuccess moves a pending escrow to held. Providers deliver this
// at least once, so a non-pending starting state is detected and becomes a
// no-op: timestamps are not re-set and notifications do not fire again.
func (s *Service) HandlePaymentSuccess(escrowID, paymentReference string) (*EscrowTransaction, error) {
	logger := log.With().
		Str("escrow_id", escrowID).
		Str("service", "escrow").
		Logger()

	escrow, err := s.db.GetEscrow(escrowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}
	if escrow == nil {
		return nil, apperrors.NotFound("Escrow transaction not found")
	}

	if escrow.Status != StatusPending {
		logger.Info().Str("status", escrow.Status).Msg("payment success redelivered, ignoring")
		return escrow, nil
	}

	// The escrow transition and the order mirror commit together or not at
	// all, so a redelivery never finds a held escrow with a pending order.
	now := time.Now()
	var applied bool
	err = s.db.WithTx(func(tx *Database) error {
		applied, err = tx.TransitionEscrow(escrowID, StatusPending, map[string]interface{}{
			"status":            StatusHeld,
			"payment_status":    PaymentSuccess,
			"payment_reference": paymentReference,
			"paid_at":           now,
		})
		if err != nil || !applied {
			return err
		}
		return tx.UpdateOrderStatus(escrow.OrderID, types.OrderStatusPaid, types.PaymentStatusPaid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark escrow held: %w", err)
	}
	if !applied {
		// A concurrent delivery won the transition; report its result
		return s.db.GetEscrow(escrowID)
	}

	escrow, err = s.db.GetEscrow(escrowID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload escrow: %w", err)
	}

	logger.Info().
		Str("order_id", escrow.OrderID).
		Str("payment_reference", paymentReference).
		Msg("escrow funds secured")

	s.notifyHeld(escrow)

	return escrow, nil
}

// ConfirmReceipt releases held funds to the seller once the buyer submits the
// correct confirmation code. This is the single irreversible money movement:
// the held→released transition is a conditional update so two concurrent
// confirmations, or a confirmation racing the expiry sweep, resolve to
// exactly one winner.
func (s *Service) ConfirmReceipt(buyerID, orderID, confirmationCode string) (*ConfirmResult, error) {
	logger := log.With().
		Str("buyer_id", buyerID).
		Str("order_id", orderID).
		Str("service", "escrow").
		Logger()

	escrow, err := s.db.GetEscrowByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}
	if escrow == nil {
		return nil, apperrors.NotFound("No escrow found for this order")
	}
	if escrow.BuyerID != buyerID {
		return nil, apperrors.Forbidden("Only the buyer can confirm receipt")
	}
	if escrow.Status != StatusHeld {
		return nil, apperrors.InvalidState("Cannot confirm: escrow status is %s", escrow.Status)
	}
	// Exact byte comparison, no normalization. The error does not say which
	// digit is wrong.
	if confirmationCode != escrow.ConfirmationCode {
		return nil, apperrors.InvalidInput("Invalid confirmation code")
	}

	// Release, order and listing commit as one unit: a failure on any of the
	// mirrored writes rolls the release back, so the escrow is still held and
	// the buyer can retry.
	now := time.Now()
	var applied bool
	err = s.db.WithTx(func(tx *Database) error {
		applied, err = tx.TransitionEscrow(escrow.EscrowID, StatusHeld, map[string]interface{}{
			"status":       StatusReleased,
			"confirmed_at": now,
			"released_at":  now,
		})
		if err != nil || !applied {
			return err
		}
		if err := tx.UpdateOrderStatus(orderID, types.OrderStatusFulfilled, types.PaymentStatusPaid); err != nil {
			return err
		}
		return tx.MarkListingSold(escrow.ListingID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to release escrow: %w", err)
	}
	if !applied {
		// Lost the race, most likely to the expiry sweep. Re-read once and
		// report the winning status.
		current, err := s.db.GetEscrow(escrow.EscrowID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload escrow: %w", err)
		}
		if current == nil {
			return nil, apperrors.NotFound("Escrow transaction not found")
		}
		return nil, apperrors.InvalidState("Cannot confirm: escrow status is %s", current.Status)
	}

	logger.Info().
		Str("escrow_id", escrow.EscrowID).
		Int64("seller_receives_cents", escrow.SellerReceivesCents).
		Msg("escrow released to seller")

	s.notifyReleased(escrow)

	return &ConfirmResult{
		Success:             true,
		SellerReceivesCents: escrow.SellerReceivesCents,
	}, nil
}

// GetByOrderID returns the escrow view for an order.
func (s *Service) GetByOrderID(orderID string) (*View, error) {
	escrow, err := s.db.GetEscrowByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}
	if escrow == nil {
		return nil, apperrors.NotFound("No escrow found for this order")
	}
	return s.buildView(escrow)
}

// PreviewFees exposes the fee schedule without touching persistence.
func (s *Service) PreviewFees(priceCents int64) (*fees.Breakdown, error) {
	if priceCents <= 0 {
		return nil, apperrors.InvalidInput("Price must be positive")
	}
	breakdown := fees.Compute(priceCents)
	return &breakdown, nil
}

func (s *Service) buildView(escrow *EscrowTransaction) (*View, error) {
	view := &View{
		EscrowID:            escrow.EscrowID,
		OrderID:             escrow.OrderID,
		Status:              escrow.Status,
		PaymentStatus:       escrow.PaymentStatus,
		ItemPriceCents:      escrow.ItemPriceCents,
		ProtectionFeeCents:  escrow.ProtectionFeeCents,
		CommissionCents:     escrow.CommissionCents,
		TotalPaidCents:      escrow.TotalPaidCents,
		SellerReceivesCents: escrow.SellerReceivesCents,
		CurrencyCode:        escrow.CurrencyCode,
		PaymentProvider:     escrow.PaymentProvider,
		ShippingMethod:      escrow.ShippingMethod,
		ExpiresAt:           escrow.ExpiresAt,
		PaidAt:              escrow.PaidAt,
		ConfirmedAt:         escrow.ConfirmedAt,
		ReleasedAt:          escrow.ReleasedAt,
		RefundedAt:          escrow.RefundedAt,
		BuyerID:             escrow.BuyerID,
		SellerID:            escrow.SellerID,
		ListingID:           escrow.ListingID,
	}

	order, err := s.db.GetOrder(escrow.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	if order != nil {
		view.OrderStatus = order.Status
		view.OrderPaymentStatus = order.PaymentStatus
	}

	if buyer, err := s.db.GetUser(escrow.BuyerID); err == nil && buyer != nil {
		view.BuyerName = buyer.Name
	}
	if seller, err := s.db.GetUser(escrow.SellerID); err == nil && seller != nil {
		view.SellerName = seller.Name
	}
	if listing, err := s.db.GetListing(escrow.ListingID); err == nil && listing != nil {
		view.ListingTitle = listing.Title
		view.ListingImageURL = listing.FirstImageURL
	}

	return view, nil
}

// notifyHeld fires the funds-secured notifications. Best effort: the state
// transition has already committed.
func (s *Service) notifyHeld(escrow *EscrowTransaction) {
	listingTitle := ""
	if listing, err := s.db.GetListing(escrow.ListingID); err == nil && listing != nil {
		listingTitle = listing.Title
	}

	s.notifier.Notify(escrow.SellerID, notify.KindEscrowHeld, map[string]interface{}{
		"order_id":         escrow.OrderID,
		"listing_title":    listingTitle,
		"item_price_cents": escrow.ItemPriceCents,
		"message":          "Buyer payment is secured in escrow. Hand over the item and collect the confirmation code from the buyer.",
	})

	s.notifier.Notify(escrow.BuyerID, notify.KindEscrowCode, map[string]interface{}{
		"order_id":          escrow.OrderID,
		"listing_title":     listingTitle,
		"confirmation_code": escrow.ConfirmationCode,
		"message":           fmt.Sprintf("Your payment is held in escrow. Give code %s to the seller only after you receive the item.", escrow.ConfirmationCode),
	})

	if seller, err := s.db.GetUser(escrow.SellerID); err == nil && seller != nil {
		s.mailer.SendEscrowPaymentReceived(seller.Email, listingTitle, escrow.ItemPriceCents)
	}
}

func (s *Service) notifyReleased(escrow *EscrowTransaction) {
	listingTitle := ""
	if listing, err := s.db.GetListing(escrow.ListingID); err == nil && listing != nil {
		listingTitle = listing.Title
	}

	s.notifier.Notify(escrow.SellerID, notify.KindEscrowReleased, map[string]interface{}{
		"order_id":              escrow.OrderID,
		"listing_title":         listingTitle,
		"seller_receives_cents": escrow.SellerReceivesCents,
		"message":               "The buyer confirmed receipt. Your payout has been released.",
	})

	s.notifier.Notify(escrow.BuyerID, notify.KindEscrowComplete, map[string]interface{}{
		"order_id":      escrow.OrderID,
		"listing_title": listingTitle,
		"message":       "Purchase complete. Thank you for confirming receipt.",
	})

	if seller, err := s.db.GetUser(escrow.SellerID); err == nil && seller != nil {
		s.mailer.SendEscrowReleased(seller.Email, listingTitle, escrow.SellerReceivesCents)
	}
}

// GetDB exposes the package database for the sweeper.
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for escrow endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// InitiateHandler handles POST requests to start an escrow purchase
func (h *GinHandlers) InitiateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		buyerID := c.GetString("userID")
		if buyerID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		var req InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Initiate(buyerID, req)
		response.Handle(c, result, err)
	}
}

// ConfirmReceiptHandler handles POST requests to confirm item receipt
// URL parameter: order_id
func (h *GinHandlers) ConfirmReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		buyerID := c.GetString("userID")
		if buyerID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		orderID := c.Param("order_id")

		var req ConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.ConfirmReceipt(buyerID, orderID, req.ConfirmationCode)
		response.Handle(c, result, err)
	}
}

// GetByOrderIDHandler handles GET requests for an escrow view
// URL parameter: order_id
func (h *GinHandlers) GetByOrderIDHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		view, err := h.service.GetByOrderID(orderID)
		response.Handle(c, view, err)
	}
}

// PreviewFeesHandler handles GET requests for a fee preview
// Query parameter: price_cents
func (h *GinHandlers) PreviewFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		priceCents, err := strconv.ParseInt(c.Query("price_cents"), 10, 64)
		if err != nil {
			response.BadRequest(c, "price_cents must be an integer")
			return
		}

		breakdown, err := h.service.PreviewFees(priceCents)
		response.Handle(c, breakdown, err)
	}
}

// PaymentSuccessHandler handles webhook-style payment confirmations from
// asynchronous providers. Deliveries are at least once.
// URL parameter: escrow_id
func (h *GinHandlers) PaymentSuccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		escrowID := c.Param("escrow_id")

		var req struct {
			PaymentReference string `json:"payment_reference" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		escrow, err := h.service.HandlePaymentSuccess(escrowID, req.PaymentReference)
		response.Handle(c, escrow, err)
	}
}
