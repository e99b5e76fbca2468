package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types recorded in the ledger.
const (
	TypeBuy  = "buy"
	TypeSell = "sell"
)

// User owns a cash balance, holdings and a transaction log.
type User struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Hash     string `gorm:"not null"`
	Cash     Money  `gorm:"not null"`
}

// Holding is the number of shares a user owns for one symbol.
// It maps onto the "stocks" table.
type Holding struct {
	UserID uint   `gorm:"primaryKey;autoIncrement:false"`
	Symbol string `gorm:"primaryKey"`
	Name   string
	Number int64 `gorm:"not null"`
}

func (Holding) TableName() string {
	return "stocks"
}

// Transaction is an immutable ledger record.
type Transaction struct {
	ID     uint      `gorm:"primaryKey"`
	UserID uint      `gorm:"index;not null"`
	Symbol string    `gorm:"not null"`
	Type   string    `gorm:"not null"` // buy/sell
	Number int64     `gorm:"not null"`
	Price  Money     `gorm:"not null"`
	Time   time.Time `gorm:"index;not null"`
}

// Position is a holding valued at the current market price.
type Position struct {
	Holding
	Price decimal.Decimal
	Total decimal.Decimal
}

// Portfolio is what the index page shows.
type Portfolio struct {
	Positions []Position
	Cash      decimal.Decimal
	Total     decimal.Decimal
}
