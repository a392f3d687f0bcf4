// ABOUTME: Verified flag persisted as user metadata
// ABOUTME: Two states stored as "1" or "0"; an absent row reads as false

// Package verification stores the per-user verified flag in host metadata.
package verification

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-verified/internal/host"
)

// MetaKey is the user metadata key holding the flag.
const MetaKey = "coven_verified_account"

// Stored values.
const (
	valueTrue  = "1"
	valueFalse = "0"
)

// Store reads and writes the verified flag. It holds no state of its own.
type Store struct {
	meta host.Meta
}

// NewStore creates a Store over meta.
func NewStore(meta host.Meta) *Store {
	return &Store{meta: meta}
}

// Get reports whether the user is verified. A missing flag is false.
func (s *Store) Get(ctx context.Context, userID int64) (bool, error) {
	v, ok, err := s.meta.GetUserMeta(ctx, userID, MetaKey)
	if err != nil {
		return false, fmt.Errorf("reading verified flag for user %d: %w", userID, err)
	}
	if !ok {
		return false, nil
	}
	return ParseBool(v), nil
}

// Set overwrites the user's flag.
func (s *Store) Set(ctx context.Context, userID int64, verified bool) error {
	v := valueFalse
	if verified {
		v = valueTrue
	}
	if err := s.meta.SetUserMeta(ctx, userID, MetaKey, v); err != nil {
		return fmt.Errorf("writing verified flag for user %d: %w", userID, err)
	}
	return nil
}

// Clear removes the user's flag, leaving them unverified.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.meta.DeleteUserMeta(ctx, userID, MetaKey); err != nil {
		return fmt.Errorf("clearing verified flag for user %d: %w", userID, err)
	}
	return nil
}

// ParseBool coerces a stored or submitted value to a bool. "1", "true",
// "yes" and "on" (any case, surrounding space ignored) are true.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
