// Package database stores users, holdings, the transaction log and the price log.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock-trader/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrInvalidBatchSize = fmt.Errorf("invalid batch size")
)

// Store runs the queries of the application. A Store obtained inside
// Transaction runs its queries in that transaction.
type Store struct {
	db *gorm.DB
}

// New wraps an open connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.User{},
		&models.Holding{},
		&models.Transaction{},
		&models.StockPrice{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	return nil
}

// Transaction runs fn atomically. fn's error rolls back everything it did.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// CreateUser inserts u and sets its ID.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserByUsername finds a user by exact username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	return &u, notFound(err, "failed to find user")
}

// UserByID finds a user by id.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	return &u, notFound(err, "failed to find user")
}

// LockUser reads a user and locks its row until the transaction ends.
// Drivers without row locks (sqlite) drop the locking clause.
func (s *Store) LockUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, id).Error
	return &u, notFound(err, "failed to lock user")
}

// SetCash overwrites the cash balance of a user.
func (s *Store) SetCash(ctx context.Context, userID uint, cash decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("cash", cash)
	if res.Error != nil {
		return fmt.Errorf("failed to update cash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHash overwrites the password hash of a user.
func (s *Store) SetHash(ctx context.Context, userID uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Holdings lists the holdings of a user, largest first.
func (s *Store) Holdings(ctx context.Context, userID uint) ([]models.Holding, error) {
	var holdings []models.Holding
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("number DESC").Order("symbol").
		Find(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	return holdings, nil
}

// Holding finds the holding of a user for one symbol.
func (s *Store) Holding(ctx context.Context, userID uint, symbol string) (*models.Holding, error) {
	var h models.Holding
	err := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).First(&h).Error
	return &h, notFound(err, "failed to find holding")
}

// PutHolding stores h, inserting it if absent. A zero share count removes it.
func (s *Store) PutHolding(ctx context.Context, h *models.Holding) error {
	db := s.db.WithContext(ctx)
	if h.Number == 0 {
		err := db.Where("user_id = ? AND symbol = ?", h.UserID, h.Symbol).Delete(&models.Holding{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "number"}),
	}).Create(h).Error
	if err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}
	return nil
}

// HeldSymbols returns every symbol held by at least one user.
func (s *Store) HeldSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).Model(&models.Holding{}).
		Distinct("symbol").Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list held symbols: %w", err)
	}
	return symbols, nil
}

// AppendTransaction adds a record to the transaction log.
func (s *Store) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// History lists the transactions of a user, oldest first.
func (s *Store) History(ctx context.Context, userID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("time").Order("id").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// RecordPrice appends one point to the price log.
func (s *Store) RecordPrice(ctx context.Context, p *models.StockPrice) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to record price: %w", err)
	}
	return nil
}

// Prices lists the price log of a symbol, oldest first.
func (s *Store) Prices(ctx context.Context, symbol string) ([]models.StockPrice, error) {
	var prices []models.StockPrice
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("timestamp").Order("id").Find(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return prices, nil
}

// CreateInBatches inserts rows batchSize at a time in a single transaction.
func CreateInBatches[T any](ctx context.Context, s *Store, rows []T, batchSize int) error {
	if batchSize <= 0 {
		return ErrInvalidBatchSize
	}

	return s.Transaction(ctx, func(tx *Store) error {
		total := len(rows)
		for i := 0; i < total; i += batchSize {
			end := min(i+batchSize, total)
			if err := tx.db.Create(rows[i:end]).Error; err != nil {
				return fmt.Errorf("batch insert failed: %w", err)
			}
		}
		return nil
	})
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}
