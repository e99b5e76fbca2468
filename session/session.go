// Package session keeps the logged in user of each browser in Redis.
//
// The browser holds a signed token naming a session id; the user id itself
// only lives server side, under "session:<id>", until the session expires or
// is destroyed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrNoSession = errors.New("no valid session")

// Session is the capability protected handlers receive: proof that the
// request belongs to UserID.
type Session struct {
	ID     string
	UserID uint
}

// Store creates, resolves and destroys sessions.
type Store struct {
	rdb    redis.UniversalClient
	secret []byte
	ttl    time.Duration
}

// NewStore is constructor
func NewStore(rdb redis.UniversalClient, secret string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, secret: []byte(secret), ttl: ttl}
}

// TTL is the lifetime of new sessions.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func key(id string) string {
	return "session:" + id
}

// Create starts a session for userID and returns it with its browser token.
func (s *Store) Create(ctx context.Context, userID uint) (Session, string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, key(id), userID, s.ttl).Err(); err != nil {
		return Session{}, "", fmt.Errorf("failed to store session: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return Session{ID: id, UserID: userID}, signed, nil
}

// Resolve returns the live session named by token.
func (s *Store) Resolve(ctx context.Context, token string) (Session, error) {
	id, err := s.parse(token, true)
	if err != nil {
		return Session{}, err
	}

	userID, err := s.rdb.Get(ctx, key(id)).Uint64()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return Session{ID: id, UserID: uint(userID)}, nil
}

// Destroy ends the session named by token. Unknown or invalid tokens are ignored.
func (s *Store) Destroy(ctx context.Context, token string) error {
	id, err := s.parse(token, false)
	if err != nil {
		return nil
	}
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) parse(token string, checkExpiry bool) (string, error) {
	if token == "" {
		return "", ErrNoSession
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if checkExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || claims.ID == "" {
		return "", ErrNoSession
	}
	return claims.ID, nil
}
