// Package trading implements accounts and the simulated buy/sell ledger.
package trading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"stock-trader/database"
	"stock-trader/market"
	"stock-trader/models"
)

// Service implements business logic
type Service struct {
	store  *database.Store
	quoter market.Quoter
	cash   decimal.Decimal
	log    *logrus.Logger
	now    func() time.Time
}

// NewService is constructor. New users start with startingCash.
func NewService(store *database.Store, quoter market.Quoter, startingCash decimal.Decimal, log *logrus.Logger) *Service {
	return &Service{
		store:  store,
		quoter: quoter,
		cash:   startingCash,
		log:    log,
		now:    time.Now,
	}
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apologize(http.StatusBadRequest, "must provide username")
	}
	if err := checkPassword(password, confirmation); err != nil {
		return nil, err
	}

	_, err := s.store.UserByUsername(ctx, username)
	if err == nil {
		return nil, apologize(http.StatusBadRequest, "this user already exists")
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{Username: username, Hash: string(hash), Cash: models.NewMoney(s.cash)}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apologize(http.StatusBadRequest, "this user already exists")
	}
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Infof("user registered: %s", user.Username)
	return user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apologize(http.StatusForbidden, "must provide username")
	}
	if password == "" {
		return nil, apologize(http.StatusForbidden, "must provide password")
	}

	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apologize(http.StatusForbidden, "invalid username and/or password")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)) != nil {
		return nil, apologize(http.StatusForbidden, "invalid username and/or password")
	}
	return user, nil
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, current, password, confirmation string) error {
	if password == "" {
		return apologize(http.StatusBadRequest, "must provide password")
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(current)) != nil {
		return apologize(http.StatusBadRequest, "invalid password")
	}
	if err := checkPassword(password, confirmation); err != nil {
		return err
	}
	if current == password {
		return apologize(http.StatusBadRequest, "new password can't be equal to old password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.SetHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("password changed")
	return nil
}

// Quote looks up the current quote of symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apologize(http.StatusBadRequest, "must provide symbol")
	}
	quote, err := s.quoter.Lookup(ctx, symbol)
	switch {
	case errors.Is(err, market.ErrNotFound):
		return nil, apologize(http.StatusBadRequest, "this symbol is invalid")
	case errors.Is(err, market.ErrUnavailable):
		s.log.WithField("symbol", symbol).Warn(err)
		return nil, apologize(http.StatusServiceUnavailable, "market data is unavailable, try again later")
	case err != nil:
		return nil, err
	}
	return quote, nil
}

// Buy debits cash, credits the holding and logs the purchase, all or nothing.
func (s *Service) Buy(ctx context.Context, userID uint, symbol, shares string) (*models.Transaction, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apologize(http.StatusBadRequest, "must provide symbol")
	}
	n, err := parseShares(shares)
	if err != nil {
		return nil, err
	}
	quote, err := s.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	cost := quote.Price.Mul(decimal.NewFromInt(n))

	var record *models.Transaction
	err = s.store.Transaction(ctx, func(tx *database.Store) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.Cash.LessThan(cost) {
			return apologize(http.StatusBadRequest, "insufficient funds")
		}
		if err := tx.SetCash(ctx, userID, user.Cash.Sub(cost)); err != nil {
			return err
		}

		holding, err := tx.Holding(ctx, userID, quote.Symbol)
		if errors.Is(err, database.ErrNotFound) {
			holding = &models.Holding{UserID: userID, Symbol: quote.Symbol}
		} else if err != nil {
			return err
		}
		holding.Name = quote.Name
		holding.Number += n
		if err := tx.PutHolding(ctx, holding); err != nil {
			return err
		}

		record = s.transaction(userID, quote, models.TypeBuy, n)
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "symbol": quote.Symbol, "shares": n, "price": quote.Price}).Info("bought")
	return record, nil
}

// Sell credits cash, debits the holding and logs the sale, all or nothing.
// A holding sold down to zero shares is removed.
func (s *Service) Sell(ctx context.Context, userID uint, symbol, shares string) (*models.Transaction, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apologize(http.StatusBadRequest, "must provide symbol")
	}
	n, err := parseShares(shares)
	if err != nil {
		return nil, err
	}
	quote, err := s.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	proceeds := quote.Price.Mul(decimal.NewFromInt(n))

	var record *models.Transaction
	err = s.store.Transaction(ctx, func(tx *database.Store) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		holding, err := tx.Holding(ctx, userID, quote.Symbol)
		if errors.Is(err, database.ErrNotFound) || (err == nil && holding.Number < n) {
			return apologize(http.StatusBadRequest, "you don't have enough shares")
		}
		if err != nil {
			return err
		}

		if err := tx.SetCash(ctx, userID, user.Cash.Add(proceeds)); err != nil {
			return err
		}
		holding.Number -= n
		if err := tx.PutHolding(ctx, holding); err != nil {
			return err
		}

		record = s.transaction(userID, quote, models.TypeSell, n)
		return tx.AppendTransaction(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "symbol": quote.Symbol, "shares": n, "price": quote.Price}).Info("sold")
	return record, nil
}

func (s *Service) transaction(userID uint, quote *models.Quote, kind string, n int64) *models.Transaction {
	return &models.Transaction{
		UserID: userID,
		Symbol: quote.Symbol,
		Type:   kind,
		Number: n,
		Price:  models.NewMoney(quote.Price),
		Time:   s.now().UTC(),
	}
}

// Portfolio values the holdings of userID at current prices.
func (s *Service) Portfolio(ctx context.Context, userID uint) (*models.Portfolio, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &models.Portfolio{Cash: user.Cash.Decimal, Total: user.Cash.Decimal}
	for _, h := range holdings {
		quote, err := s.Quote(ctx, h.Symbol)
		if err != nil {
			return nil, err
		}
		total := quote.Price.Mul(decimal.NewFromInt(h.Number))
		p.Positions = append(p.Positions, models.Position{Holding: h, Price: quote.Price, Total: total})
		p.Total = p.Total.Add(total)
	}
	return p, nil
}

// Holdings lists what userID can sell.
func (s *Service) Holdings(ctx context.Context, userID uint) ([]models.Holding, error) {
	return s.store.Holdings(ctx, userID)
}

// History lists the transactions of userID, oldest first.
func (s *Service) History(ctx context.Context, userID uint) ([]models.Transaction, error) {
	return s.store.History(ctx, userID)
}
