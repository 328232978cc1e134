package migrations

import (
	"github.com/kasuwa/escrow-api/internal/trade"
	"gorm.io/gorm"
)

func AddTradeFulfillment(db *gorm.DB) error {
	if err := db.AutoMigrate(&trade.TradeOffer{}); err != nil {
		return err
	}

	return db.AutoMigrate(&trade.TradeDispute{})
}
