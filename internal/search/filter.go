// Package search composes photo filters into one ordered, paginated query. The same Filter
// drives the SQL builder used by PostgreSQL and the matcher used by the in-memory store, so
// both backends agree on semantics and ordering.
package search

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalidFilter is returned for filters that can never match, like an inverted date range.
var ErrInvalidFilter = errors.New("invalid search filter")

// Filter holds the independently optional, conjunctive search predicates.
type Filter struct {
	// Tags matches photos carrying at least one of the named tags.
	Tags              []string
	AlbumID           *uuid.UUID
	From              *time.Time
	To                *time.Time
	FilenameSubstring string
}

// Normalize trims values and drops empty or duplicate tag names.
func (f Filter) Normalize() Filter {
	out := Filter{
		AlbumID:           f.AlbumID,
		From:              f.From,
		To:                f.To,
		FilenameSubstring: strings.TrimSpace(f.FilenameSubstring),
	}
	seen := make(map[string]struct{}, len(f.Tags))
	for _, tag := range f.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out.Tags = append(out.Tags, tag)
	}
	return out
}

// Validate rejects inverted date ranges.
func (f Filter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: date range starts after it ends", ErrInvalidFilter)
	}
	return nil
}

// Page is an offset window over an ordered result.
type Page struct {
	Skip  int
	Limit int
}

// Normalize applies the default limit and clamps out-of-range values.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Window returns the slice bounds of the page over n ordered items.
func (p Page) Window(n int) (int, int) {
	p = p.Normalize()
	lo := p.Skip
	if lo > n {
		lo = n
	}
	hi := lo + p.Limit
	if hi > n {
		hi = n
	}
	return lo, hi
}

// Candidate is what the in-memory matcher needs to know about a photo.
type Candidate struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Filename   string
	UploadDate time.Time
	TagNames   []string
	AlbumIDs   []uuid.UUID
}

// Match reports whether c belongs to ownerID and satisfies every predicate of f.
func (f Filter) Match(ownerID uuid.UUID, c Candidate) bool {
	if c.OwnerID != ownerID {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(f.Tags, c.TagNames) {
		return false
	}
	if f.AlbumID != nil && !containsID(c.AlbumIDs, *f.AlbumID) {
		return false
	}
	if f.From != nil && c.UploadDate.Before(*f.From) {
		return false
	}
	if f.To != nil && c.UploadDate.After(*f.To) {
		return false
	}
	if f.FilenameSubstring != "" &&
		!strings.Contains(strings.ToLower(c.Filename), strings.ToLower(f.FilenameSubstring)) {
		return false
	}
	return true
}

// NewestFirst orders by upload date descending, ties broken by id ascending.
func NewestFirst(aDate time.Time, aID uuid.UUID, bDate time.Time, bID uuid.UUID) bool {
	if !aDate.Equal(bDate) {
		return aDate.After(bDate)
	}
	return bytes.Compare(aID[:], bID[:]) < 0
}

// OldestFirst orders by upload date ascending, ties broken by id ascending.
func OldestFirst(aDate time.Time, aID uuid.UUID, bDate time.Time, bID uuid.UUID) bool {
	if !aDate.Equal(bDate) {
		return aDate.Before(bDate)
	}
	return bytes.Compare(aID[:], bID[:]) < 0
}

func anyTag(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
