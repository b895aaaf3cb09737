// Package document turns per-stock, per-date market facts into
// content-addressed documents ready for embedding and indexing.
package document

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the atomic indexable unit: a deterministic id, a fixed-order
// text rendering of the facts, and the structured facts themselves.
type Document struct {
	ID           string
	SecurityID   string
	SecurityName string
	AsOfDate     time.Time
	Category     Category
	Text         string
	Facts        Facts
}

// NewID derives the content address for a (security, date, category) triple:
// the first 16 bytes of SHA-256 over "id_date_category", rendered as a UUID.
// Fact values never participate, so re-ingesting the same triple overwrites
// in place instead of duplicating.
func NewID(securityID string, asOf time.Time, category Category) string {
	key := securityID + "_" + asOf.Format(time.DateOnly) + "_" + string(category)
	sum := sha256.Sum256([]byte(key))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// Build validates the facts and assembles a Document. Identical inputs
// produce byte-identical text and the same id.
func Build(securityID, securityName string, asOf time.Time, facts Facts) (*Document, error) {
	if securityID == "" {
		return nil, fmt.Errorf("%w: empty security id", ErrValidation)
	}
	if err := facts.Validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "security: %s %s\n", securityID, securityName)
	fmt.Fprintf(&b, "date: %s\n", asOf.Format(time.DateOnly))
	fmt.Fprintf(&b, "category: %s\n", facts.Category())
	for _, line := range facts.Lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return &Document{
		ID:           NewID(securityID, asOf, facts.Category()),
		SecurityID:   securityID,
		SecurityName: securityName,
		AsOfDate:     asOf,
		Category:     facts.Category(),
		Text:         b.String(),
		Facts:        facts,
	}, nil
}
