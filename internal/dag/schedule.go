package dag

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRun computes the next fire time of a DAG schedule.
// Params: cron expression or descriptor (`@daily`) and reference time.
// Returns: next activation, false when schedule is empty, or parse error.
func NextRun(schedule string, after time.Time) (time.Time, bool, error) {
	trimmed := strings.TrimSpace(schedule)
	if trimmed == "" {
		return time.Time{}, false, nil
	}
	parsed, err := scheduleParser.Parse(trimmed)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return parsed.Next(after), true, nil
}
