package syncer

import (
	"sort"
	"time"

	"github.com/bull/twstock-rag/internal/document"
)

// Item is one (security, date, category) unit of work.
type Item struct {
	SecurityID   string
	SecurityName string
	Date         time.Time
	Category     document.Category
}

// Status is the terminal state of one item.
type Status string

const (
	StatusSkipped  Status = "skipped"
	StatusInserted Status = "inserted"
	StatusFailed   Status = "failed"
)

// Outcome records how one item ended.
type Outcome struct {
	Item   Item
	ID     string
	Status Status
	Err    error
}

// Failure is the reportable form of a failed outcome.
type Failure struct {
	ID     string
	Item   Item
	Reason string
}

// Report summarizes a run. Outcomes are in request order regardless of
// completion order, so repeated runs produce comparable logs.
type Report struct {
	Requested int
	Skipped   int
	Inserted  int
	Failed    int
	Outcomes  []Outcome
	Failures  []Failure
	Duration  time.Duration
}

// BuildItems expands a security universe and date window into the requested
// item list: one price_technical item per security per weekday, plus one
// fundamental item per security pinned to the window end. Items are ordered
// by security, then date, so reports are stable across runs.
func BuildItems(securities map[string]string, from, to time.Time, includeFundamentals bool) []Item {
	ids := make([]string, 0, len(securities))
	for id := range securities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var items []Item
	for _, id := range ids {
		name := securities[id]
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			items = append(items, Item{
				SecurityID:   id,
				SecurityName: name,
				Date:         d,
				Category:     document.CategoryPriceTechnical,
			})
		}
		if includeFundamentals {
			items = append(items, Item{
				SecurityID:   id,
				SecurityName: name,
				Date:         to,
				Category:     document.CategoryFundamental,
			})
		}
	}
	return items
}
