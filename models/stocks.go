package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockPrice is a point of the price log kept for every looked up symbol.
type StockPrice struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"index;not null"`
	Price     Money     `gorm:"not null"`
	Timestamp time.Time `gorm:"not null"`
}

// Quote is the answer of the market-data provider for one symbol.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}
