package trade

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOffer(offer *TradeOffer) error {
	return d.db.Create(offer).Error
}

func (d *Database) GetOffer(offerID string) (*TradeOffer, error) {
	var offer TradeOffer
	if err := d.db.Where("offer_id = ?", offerID).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}

// UpdateOfferIfStatus applies updates only while the offer is still in the
// given status. Returns false if a concurrent transition got there first.
func (d *Database) UpdateOfferIfStatus(offerID, status string, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now()

	result := d.db.Model(&TradeOffer{}).
		Where("offer_id = ? AND status = ?", offerID, status).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ActivateFulfillment transitions an accepted offer to AWAITING_FULFILLMENT
// and mints the pickup PIN, guarded on both lock flags so exactly one of two
// concurrent lock-ins performs the transition.
func (d *Database) ActivateFulfillment(offerID, pin string) (bool, error) {
	result := d.db.Model(&TradeOffer{}).
		Where("offer_id = ? AND status = ? AND is_buyer_locked = ? AND is_seller_locked = ?",
			offerID, StatusAccepted, true, true).
		Updates(map[string]interface{}{
			"status":     StatusAwaitingFulfillment,
			"pickup_pin": pin,
			"locked_at":  time.Now(),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// CompleteIfBothFulfilled transitions an awaiting offer to COMPLETED, guarded
// on both fulfillment flags so exactly one caller fires the completion.
func (d *Database) CompleteIfBothFulfilled(offerID string) (bool, error) {
	result := d.db.Model(&TradeOffer{}).
		Where("offer_id = ? AND status = ? AND is_buyer_fulfilled = ? AND is_seller_fulfilled = ?",
			offerID, StatusAwaitingFulfillment, true, true).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (d *Database) CreateDispute(dispute *TradeDispute) error {
	return d.db.Create(dispute).Error
}

func (d *Database) GetDisputeByOfferID(offerID string) (*TradeDispute, error) {
	var dispute TradeDispute
	if err := d.db.Where("offer_id = ?", offerID).First(&dispute).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dispute, nil
}
