package migrations

import (
	"github.com/kasuwa/escrow-api/internal/escrow"
	"gorm.io/gorm"
)

func AddEscrowTransactions(db *gorm.DB) error {
	return db.AutoMigrate(&escrow.EscrowTransaction{})
}
