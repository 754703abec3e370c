// Package scheduler runs the daily slot fill at a fixed UTC wall time.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"daybrief/internal/ingest"
)

// Scheduler owns the cron runner. The job fires once a day and fills
// the slot for the current UTC date.
type Scheduler struct {
	cron     *cron.Cron
	ingester *ingest.Ingester
	logger   *log.Logger
}

func New(ingester *ingest.Ingester, logger *log.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		ingester: ingester,
		logger:   logger,
	}
}

// CronSpec converts a "HH:MM" wall time into a daily cron expression.
func CronSpec(fetchAt string) (string, error) {
	hh, mm, ok := strings.Cut(fetchAt, ":")
	if !ok {
		return "", fmt.Errorf("invalid fetch time %q, want HH:MM", fetchAt)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid fetch hour %q", hh)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid fetch minute %q", mm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Start registers the daily job and launches the cron loop.
func (s *Scheduler) Start(fetchAt string) error {
	spec, err := CronSpec(fetchAt)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, s.runDaily); err != nil {
		return fmt.Errorf("scheduling daily fetch: %w", err)
	}
	s.cron.Start()
	s.logger.Printf("Daily fetch scheduled at %s UTC", fetchAt)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	slot := ingest.SlotDate(time.Now())
	stats, err := s.ingester.IngestSlot(ctx, slot, 0)
	if err != nil {
		s.logger.Printf("Daily fetch for %s failed: %v", slot, err)
		return
	}
	s.logger.Printf("Daily fetch for %s: inserted=%d duplicates=%d skipped=%d errors=%d",
		slot, stats.Inserted, stats.Duplicates, stats.Skipped, len(stats.Errors))
}
