// Package quota keeps a user's consumed storage in step with the bytes they own.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrQuotaExceeded is returned when a positive delta would push usage over the quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Usage is a snapshot of a user's storage accounting.
type Usage struct {
	Quota int64
	Used  int64
}

// Available returns the bytes still free under the quota.
func (u Usage) Available() int64 {
	if u.Used >= u.Quota {
		return 0
	}
	return u.Quota - u.Used
}

// Apply computes the usage after deltaBytes. Positive deltas that overflow the quota are
// rejected; negative deltas always succeed and clamp at zero.
func Apply(u Usage, deltaBytes int64) (int64, bool) {
	candidate := u.Used + deltaBytes
	if deltaBytes > 0 && candidate > u.Quota {
		return u.Used, false
	}
	if candidate < 0 {
		candidate = 0
	}
	return candidate, true
}

// Accounts is the transactional view the ledger reads and writes. LockUsage must hold the
// user's row until the surrounding transaction ends.
type Accounts interface {
	LockUsage(ctx context.Context, userID uuid.UUID) (Usage, error)
	SetUsed(ctx context.Context, userID uuid.UUID, used int64) error
}

// Ledger validates and applies storage deltas.
type Ledger struct {
	accounts Accounts
}

// NewLedger binds a ledger to accounts, normally a catalog transaction.
func NewLedger(accounts Accounts) *Ledger {
	return &Ledger{accounts: accounts}
}

// Reserve applies deltaBytes to the user's usage. It returns false without writing when the
// delta is rejected.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID, deltaBytes int64) (bool, error) {
	usage, err := l.accounts.LockUsage(ctx, userID)
	if err != nil {
		return false, err
	}

	used, ok := Apply(usage, deltaBytes)
	if !ok {
		return false, nil
	}
	if used == usage.Used {
		return true, nil
	}

	if err := l.accounts.SetUsed(ctx, userID, used); err != nil {
		return false, fmt.Errorf("set storage used: %w", err)
	}
	return true, nil
}

// Require is Reserve with the rejection surfaced as ErrQuotaExceeded.
func (l *Ledger) Require(ctx context.Context, userID uuid.UUID, deltaBytes int64) error {
	ok, err := l.Reserve(ctx, userID, deltaBytes)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reserve %d bytes: %w", deltaBytes, ErrQuotaExceeded)
	}
	return nil
}
