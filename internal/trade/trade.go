package trade

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuwa/escrow-api/internal/codes"
	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/pkg/apperrors"
	"github.com/kasuwa/escrow-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// adminQueueID is the notification channel watched by the moderation
// dashboard.
const adminQueueID = "ADMIN"

// Service runs the barter fulfillment state machine: two-party lock-in,
// PIN or manual mutual confirmation, and dispute escalation. It shares the
// escrow engine's rule that every transition is a status-guarded conditional
// update, so racing callers resolve to exactly one winner.
type Service struct {
	db       *Database
	notifier notify.Notifier
	codes    codes.Generator
}

func NewService(gormDB *gorm.DB, notifier notify.Notifier, generator codes.Generator) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		notifier: notifier,
		codes:    generator,
	}
}

// LockDeal records the caller's binding commitment to an accepted trade.
// When the second party locks, the trade moves to AWAITING_FULFILLMENT and a
// pickup PIN is minted for the buyer. Re-locking by a party who already
// locked is a no-op.
func (s *Service) LockDeal(offerID, actorID string) (*OfferView, error) {
	logger := log.With().
		Str("offer_id", offerID).
		Str("actor_id", actorID).
		Str("service", "trade").
		Logger()

	offer, err := s.loadForActor(offerID, actorID)
	if err != nil {
		return nil, err
	}

	switch offer.Status {
	case StatusAccepted:
		// fall through to locking
	case StatusAwaitingFulfillment:
		// Both parties are locked by definition; re-locking is idempotent
		return s.buildView(offer, actorID), nil
	default:
		return nil, apperrors.InvalidState("Cannot lock: trade status is %s", offer.Status)
	}

	flagColumn := "is_buyer_locked"
	alreadyLocked := offer.IsBuyerLocked
	if actorID == offer.SellerID {
		flagColumn = "is_seller_locked"
		alreadyLocked = offer.IsSellerLocked
	}

	if !alreadyLocked {
		applied, err := s.db.UpdateOfferIfStatus(offerID, StatusAccepted, map[string]interface{}{
			flagColumn: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to lock trade: %w", err)
		}
		if !applied {
			// Status moved under us; report where the trade ended up
			return nil, s.staleStateError(offerID, "Cannot lock")
		}
		logger.Info().Str("flag", flagColumn).Msg("party locked in")
	}

	offer, err = s.db.GetOffer(offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload offer: %w", err)
	}

	if offer.Status == StatusAccepted && offer.IsBuyerLocked && offer.IsSellerLocked {
		pin, err := s.codes.SixDigits()
		if err != nil {
			return nil, fmt.Errorf("failed to generate pickup PIN: %w", err)
		}

		applied, err := s.db.ActivateFulfillment(offerID, pin)
		if err != nil {
			return nil, fmt.Errorf("failed to activate fulfillment: %w", err)
		}
		if applied {
			logger.Info().Msg("both parties locked, trade awaiting fulfillment")

			s.notifier.Notify(offer.BuyerID, notify.KindTradeAwaitingPickup, map[string]interface{}{
				"offer_id":   offerID,
				"pickup_pin": pin,
				"message":    fmt.Sprintf("Both parties are locked in. Share PIN %s with the seller at pickup, or approve manually.", pin),
			})
			s.notifier.Notify(offer.SellerID, notify.KindTradeAwaitingPickup, map[string]interface{}{
				"offer_id": offerID,
				"message":  "Both parties are locked in. Enter the buyer's pickup PIN to complete the trade.",
			})
		}

		offer, err = s.db.GetOffer(offerID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload offer: %w", err)
		}
	}

	return s.buildView(offer, actorID), nil
}

// VerifyPickup confirms fulfillment. With a PIN, only the seller may call and
// a correct PIN completes both sides at once. Without a PIN, the caller
// approves their own side; the trade completes when both have approved.
func (s *Service) VerifyPickup(offerID, actorID, pin string) (*PickupResult, error) {
	logger := log.With().
		Str("offer_id", offerID).
		Str("actor_id", actorID).
		Str("service", "trade").
		Logger()

	offer, err := s.loadForActor(offerID, actorID)
	if err != nil {
		return nil, err
	}

	if offer.Status != StatusAwaitingFulfillment {
		return nil, apperrors.InvalidState("Cannot verify pickup: trade status is %s", offer.Status)
	}

	if pin != "" {
		return s.verifyWithPin(offer, actorID, pin, logger)
	}

	return s.verifyManually(offer, actorID, logger)
}

func (s *Service) verifyWithPin(offer *TradeOffer, actorID, pin string, logger zerolog.Logger) (*PickupResult, error) {
	if actorID != offer.SellerID {
		return nil, apperrors.Forbidden("Only the seller can verify with a pickup PIN")
	}
	// Exact match, same rule as the escrow confirmation code
	if pin != offer.PickupPin {
		return nil, apperrors.InvalidInput("Invalid pickup PIN")
	}

	applied, err := s.db.UpdateOfferIfStatus(offer.OfferID, StatusAwaitingFulfillment, map[string]interface{}{
		"is_buyer_fulfilled":  true,
		"is_seller_fulfilled": true,
		"status":              StatusCompleted,
		"completed_at":        time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete trade: %w", err)
	}
	if !applied {
		return nil, s.staleStateError(offer.OfferID, "Cannot verify pickup")
	}

	logger.Info().Msg("pickup PIN accepted, trade completed")
	s.notifyCompleted(offer)

	updated, err := s.db.GetOffer(offer.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload offer: %w", err)
	}

	return &PickupResult{
		Offer:         s.buildView(updated, actorID),
		JustCompleted: true,
	}, nil
}

func (s *Service) verifyManually(offer *TradeOffer, actorID string, logger zerolog.Logger) (*PickupResult, error) {
	flagColumn := "is_buyer_fulfilled"
	alreadyFulfilled := offer.IsBuyerFulfilled
	if actorID == offer.SellerID {
		flagColumn = "is_seller_fulfilled"
		alreadyFulfilled = offer.IsSellerFulfilled
	}

	if !alreadyFulfilled {
		applied, err := s.db.UpdateOfferIfStatus(offer.OfferID, StatusAwaitingFulfillment, map[string]interface{}{
			flagColumn: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record approval: %w", err)
		}
		if !applied {
			return nil, s.staleStateError(offer.OfferID, "Cannot verify pickup")
		}
		logger.Info().Str("flag", flagColumn).Msg("party approved fulfillment")
	}

	// Complete only when both sides have independently approved. The guarded
	// update makes sure two racing approvals fire the completion exactly once.
	justCompleted, err := s.db.CompleteIfBothFulfilled(offer.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete trade: %w", err)
	}
	if justCompleted {
		logger.Info().Msg("both parties approved, trade completed")
		s.notifyCompleted(offer)
	}

	updated, err := s.db.GetOffer(offer.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload offer: %w", err)
	}

	return &PickupResult{
		Offer:         s.buildView(updated, actorID),
		JustCompleted: justCompleted,
	}, nil
}

// RaiseDispute freezes an awaiting trade for admin resolution. Either party
// may raise it; a reason is required.
func (s *Service) RaiseDispute(offerID, actorID, reason string) (*OfferView, error) {
	logger := log.With().
		Str("offer_id", offerID).
		Str("actor_id", actorID).
		Str("service", "trade").
		Logger()

	offer, err := s.loadForActor(offerID, actorID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.InvalidInput("Dispute reason is required")
	}
	if offer.Status != StatusAwaitingFulfillment {
		return nil, apperrors.InvalidState("Cannot dispute: trade status is %s", offer.Status)
	}

	applied, err := s.db.UpdateOfferIfStatus(offerID, StatusAwaitingFulfillment, map[string]interface{}{
		"status":      StatusDisputed,
		"disputed_at": time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dispute trade: %w", err)
	}
	if !applied {
		return nil, s.staleStateError(offerID, "Cannot dispute")
	}

	dispute := &TradeDispute{
		DisputeID: "DSP_" + uuid.New().String(),
		OfferID:   offerID,
		RaisedBy:  actorID,
		Reason:    reason,
		Status:    DisputeOpen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateDispute(dispute); err != nil {
		logger.Error().Err(err).Msg("failed to record dispute details")
	}

	logger.Info().Str("dispute_id", dispute.DisputeID).Msg("trade disputed")

	s.notifier.Notify(adminQueueID, notify.KindTradeDisputed, map[string]interface{}{
		"offer_id":  offerID,
		"raised_by": actorID,
		"reason":    reason,
	})

	updated, err := s.db.GetOffer(offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload offer: %w", err)
	}

	return s.buildView(updated, actorID), nil
}

// GetOffer returns the offer view for a participant.
func (s *Service) GetOffer(offerID, viewerID string) (*OfferView, error) {
	offer, err := s.loadForActor(offerID, viewerID)
	if err != nil {
		return nil, err
	}
	return s.buildView(offer, viewerID), nil
}

func (s *Service) loadForActor(offerID, actorID string) (*TradeOffer, error) {
	offer, err := s.db.GetOffer(offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offer: %w", err)
	}
	if offer == nil {
		return nil, apperrors.NotFound("Trade offer not found")
	}
	if actorID != offer.BuyerID && actorID != offer.SellerID {
		return nil, apperrors.Forbidden("You are not a participant in this trade")
	}
	return offer, nil
}

// staleStateError re-reads after a lost conditional update and names the
// status that won.
func (s *Service) staleStateError(offerID, action string) error {
	current, err := s.db.GetOffer(offerID)
	if err != nil || current == nil {
		return apperrors.Conflict("Trade was modified concurrently, please retry")
	}
	return apperrors.InvalidState("%s: trade status is %s", action, current.Status)
}

func (s *Service) notifyCompleted(offer *TradeOffer) {
	for _, userID := range []string{offer.BuyerID, offer.SellerID} {
		s.notifier.Notify(userID, notify.KindTradeCompleted, map[string]interface{}{
			"offer_id": offer.OfferID,
			"message":  "Trade complete. Both parties have confirmed fulfillment.",
		})
	}
}

func (s *Service) buildView(offer *TradeOffer, viewerID string) *OfferView {
	view := &OfferView{
		OfferID:           offer.OfferID,
		BuyerID:           offer.BuyerID,
		SellerID:          offer.SellerID,
		ListingID:         offer.ListingID,
		OfferedItem:       offer.OfferedItem,
		Status:            offer.Status,
		IsBuyerLocked:     offer.IsBuyerLocked,
		IsSellerLocked:    offer.IsSellerLocked,
		IsBuyerFulfilled:  offer.IsBuyerFulfilled,
		IsSellerFulfilled: offer.IsSellerFulfilled,
		LockedAt:          offer.LockedAt,
		CompletedAt:       offer.CompletedAt,
		DisputedAt:        offer.DisputedAt,
	}

	// The PIN is the buyer's secret while fulfillment is pending
	if viewerID == offer.BuyerID && offer.Status == StatusAwaitingFulfillment {
		view.PickupPin = offer.PickupPin
	}

	return view
}

// GetDB exposes the package database for seeding and wiring.
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for trade endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// LockDealHandler handles POST requests to lock in a trade
// URL parameter: offer_id
func (h *GinHandlers) LockDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetString("userID")
		if actorID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		view, err := h.service.LockDeal(c.Param("offer_id"), actorID)
		response.Handle(c, view, err)
	}
}

// VerifyPickupHandler handles POST requests to confirm fulfillment
// URL parameter: offer_id
func (h *GinHandlers) VerifyPickupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetString("userID")
		if actorID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		var req PickupRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, err.Error())
				return
			}
		}

		result, err := h.service.VerifyPickup(c.Param("offer_id"), actorID, req.Pin)
		response.Handle(c, result, err)
	}
}

// RaiseDisputeHandler handles POST requests to escalate a trade
// URL parameter: offer_id
func (h *GinHandlers) RaiseDisputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetString("userID")
		if actorID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		var req DisputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.RaiseDispute(c.Param("offer_id"), actorID, req.Reason)
		response.Handle(c, view, err)
	}
}

// GetOfferHandler handles GET requests for a trade offer
// URL parameter: offer_id
func (h *GinHandlers) GetOfferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewerID := c.GetString("userID")
		if viewerID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		view, err := h.service.GetOffer(c.Param("offer_id"), viewerID)
		response.Handle(c, view, err)
	}
}
