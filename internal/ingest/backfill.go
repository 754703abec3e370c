package ingest

import (
	"context"
	"fmt"
	"time"
)

// BackfillResult aggregates a multi-day run.
type BackfillResult struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DaysRequested  int       `json:"days_requested"`
	DaysFilled     int       `json:"days_filled"`
	FeedsProcessed int       `json:"feeds_processed"`
	ItemsSeen      int       `json:"items_seen"`
	Inserted       int       `json:"inserted"`
	Duplicates     int       `json:"duplicates"`
	Skipped        int       `json:"skipped"`
	Errors         []string  `json:"errors"`
}

// Backfill fills the last days slots ending at endDate, oldest slot
// first so older entries land in older slots. A zero endDate means
// today. Per-day failures are recorded and the run continues.
func (g *Ingester) Backfill(ctx context.Context, days int, endDate time.Time, maxItemsPerFeed int) *BackfillResult {
	if endDate.IsZero() {
		endDate = g.now()
	}
	result := &BackfillResult{
		StartedAt:     g.now().UTC(),
		DaysRequested: days,
		Errors:        []string{},
	}

	for i := days - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("backfill aborted: %v", err))
			break
		}
		slot := SlotDate(endDate.AddDate(0, 0, -i))
		st, err := g.IngestSlot(ctx, slot, maxItemsPerFeed)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("slot %s: %v", slot, err))
			continue
		}
		result.FeedsProcessed += st.FeedsProcessed
		result.ItemsSeen += st.ItemsSeen
		result.Inserted += st.Inserted
		result.Duplicates += st.Duplicates
		result.Skipped += st.Skipped
		result.Errors = append(result.Errors, st.Errors...)
		if st.Inserted > 0 {
			result.DaysFilled++
		}
	}

	result.FinishedAt = g.now().UTC()
	return result
}
