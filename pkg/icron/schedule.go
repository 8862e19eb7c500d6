// Package icron derives trigger timing information from cron expressions for
// status reporting.
package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo reports the previous and next firing of a cron expression
// relative to refTime. Descriptor expressions like "@every 6h" are accepted.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	next := schedule.Next(refTime)

	// Walk backwards in coarse steps until a firing before refTime is found;
	// a year back with nothing means the expression effectively never fired.
	var last time.Time
	for i := range 366 * 24 {
		probe := refTime.Add(-time.Duration(i+1) * time.Hour)
		candidate := schedule.Next(probe)
		if !candidate.After(refTime) {
			last = candidate
			break
		}
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       next,
		Last:       last,
	}
	if !last.IsZero() {
		info.TimeSinceLast = refTime.Sub(last)
	}
	info.TimeUntilNext = next.Sub(refTime)
	return info, nil
}
