package escrow

import (
	"errors"
	"time"

	"github.com/kasuwa/escrow-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx runs fn against a transaction-scoped Database. A transition and its
// mirrored order/listing writes go through here so either all of them commit
// or none do.
func (d *Database) WithTx(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// CreateEscrowWithOrder creates the order and its escrow row in one
// transaction so a failed purchase leaves no partial state behind.
func (d *Database) CreateEscrowWithOrder(escrow *EscrowTransaction, order *types.Order) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(escrow).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (d *Database) GetEscrow(escrowID string) (*EscrowTransaction, error) {
	var escrow EscrowTransaction
	if err := d.db.Where("escrow_id = ?", escrowID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &escrow, nil
}

func (d *Database) GetEscrowByOrderID(orderID string) (*EscrowTransaction, error) {
	var escrow EscrowTransaction
	if err := d.db.Where("order_id = ?", orderID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &escrow, nil
}

// TransitionEscrow applies updates only if the row is still in fromStatus.
// It returns false when the row was already transitioned by a concurrent
// caller; the caller must re-read and no-op instead of double-applying.
func (d *Database) TransitionEscrow(escrowID, fromStatus string, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now()

	result := d.db.Model(&EscrowTransaction{}).
		Where("escrow_id = ? AND status = ?", escrowID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// GetExpiredHeld returns every escrow still holding funds past its deadline.
func (d *Database) GetExpiredHeld(now time.Time) ([]EscrowTransaction, error) {
	var escrows []EscrowTransaction
	if err := d.db.Where("status = ? AND expires_at < ?", StatusHeld, now).
		Find(&escrows).Error; err != nil {
		return nil, err
	}
	return escrows, nil
}

func (d *Database) GetListing(listingID string) (*types.Listing, error) {
	var listing types.Listing
	if err := d.db.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetUser(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) UpdateOrderStatus(orderID, status, paymentStatus string) error {
	result := d.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":         status,
			"payment_status": paymentStatus,
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errors.New("order not found")
	}

	return nil
}

func (d *Database) MarkListingSold(listingID string) error {
	result := d.db.Model(&types.Listing{}).
		Where("listing_id = ?", listingID).
		Updates(map[string]interface{}{
			"status":     types.ListingStatusSold,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errors.New("listing not found")
	}

	return nil
}

func (d *Database) CountOrders() (int64, error) {
	var count int64
	if err := d.db.Model(&types.Order{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Database) CountEscrows() (int64, error) {
	var count int64
	if err := d.db.Model(&EscrowTransaction{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
