package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule is a five-field cron expression:
// minute hour day-of-month month day-of-week (0 = Sunday).
//
// When both day fields are restricted a day matching either of them fires,
// as in crontab: "0 6 1 * 1" runs on the 1st and on every Monday.
type CronSchedule struct {
	raw   string
	sched cron.Schedule
}

// ParseCron parses a five-field cron expression. Times are evaluated in the
// location of the time passed to Next unless expr starts with CRON_TZ=.
func ParseCron(expr string) (*CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return nil, fmt.Errorf("invalid cron expression %q: descriptors are handled by ParseSchedule", expr)
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, sched: s}, nil
}

func (s *CronSchedule) String() string {
	return s.raw
}

// Next returns the first matching minute after t, or the zero time if none
// matches within five years.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}
