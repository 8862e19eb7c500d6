// Package service schedules and runs library scan passes: every catalog item
// goes through the change detector, with per-item error isolation so one bad
// path cannot abort a pass.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/sublingo/sublingo/internal/catalog"
	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/detector"
	"github.com/sublingo/sublingo/pkg/icron"
	"github.com/sublingo/sublingo/pkg/log"
)

// ScanSummary is the outcome of one pass over the library.
type ScanSummary struct {
	ItemsScanned    int       `json:"itemsScanned"`
	RequestsCreated int       `json:"requestsCreated"`
	ItemErrors      int       `json:"itemErrors"`
	StartedAt       time.Time `json:"startedAt"`
	Duration        string    `json:"duration"`
}

// ScanService runs the detector over the whole catalog, on a cron schedule
// and on manual trigger. Overlapping triggers collapse into one pass.
type ScanService struct {
	catalog   catalog.Store
	detector  *detector.Detector
	settings  *config.Store
	cron      *cron.Cron
	cronExpr  string
	mediaDirs []string

	group singleflight.Group
}

func NewScanService(cat catalog.Store, det *detector.Detector, settings *config.Store, c *cron.Cron, defaultExpr string) *ScanService {
	return &ScanService{
		catalog:  cat,
		detector: det,
		settings: settings,
		cron:     c,
		cronExpr: defaultExpr,
	}
}

// SetMediaDirs enables the library walk at the start of each pass.
func (s *ScanService) SetMediaDirs(dirs []string) {
	s.mediaDirs = dirs
}

// Schedule registers the recurring scan. The settings store may override the
// default expression.
func (s *ScanService) Schedule(ctx context.Context) error {
	if expr := s.settings.Get(ctx, config.KeyScanCron); expr != "" {
		s.cronExpr = expr
	}

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.Run(context.Background()); err != nil {
			log.Error("Scheduled scan failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule scan %q: %w", s.cronExpr, err)
	}
	log.Info("Library scan scheduled: %s", s.cronExpr)
	return nil
}

// Run executes one scan pass. Concurrent callers share a single in-flight
// pass and its summary.
func (s *ScanService) Run(ctx context.Context) (ScanSummary, error) {
	result, err, _ := s.group.Do("scan", func() (any, error) {
		return s.runOnce(ctx)
	})
	if err != nil {
		return ScanSummary{}, err
	}
	return result.(ScanSummary), nil
}

func (s *ScanService) runOnce(ctx context.Context) (ScanSummary, error) {
	summary := ScanSummary{StartedAt: time.Now().UTC()}

	if len(s.mediaDirs) > 0 {
		if _, err := catalog.Sync(ctx, s.catalog, s.mediaDirs); err != nil {
			log.Warn("Library sync incomplete: %v", err)
		}
	}

	items, err := s.catalog.ListTranslatable(ctx)
	if err != nil {
		return summary, fmt.Errorf("list catalog items: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		created, _, err := s.detector.Evaluate(ctx, item)
		summary.ItemsScanned++
		summary.RequestsCreated += created
		if err != nil {
			summary.ItemErrors++
			log.Warn("Scan of item %s (%s) failed: %v", item.ID, item.Title, err)
		}
	}

	summary.Duration = time.Since(summary.StartedAt).Round(time.Millisecond).String()
	log.Info("Scan finished: %d items, %d requests created, %d errors in %s",
		summary.ItemsScanned, summary.RequestsCreated, summary.ItemErrors, summary.Duration)
	return summary, nil
}

// TriggerInfo reports the schedule's previous and next firing.
func (s *ScanService) TriggerInfo() (*icron.TriggerInfo, error) {
	return icron.GetTriggerInfo(s.cronExpr, time.Now())
}
