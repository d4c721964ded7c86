// Package cron parses the schedules that trigger training runs.
package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrInvalidTimezone       = errors.New("invalid timezone")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed five-field cron expression or descriptor such as
// "@hourly" or "@every 30m", evaluated in a fixed location.
type Schedule struct {
	expr string
	spec cron.Schedule
	loc  *time.Location
}

// Parse parses expr. An empty timezone means UTC.
func Parse(expr, timezone string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}

	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCronExpression, err)
	}

	loc := time.UTC
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
		}
	}

	return &Schedule{
		expr: expr,
		spec: spec,
		loc:  loc,
	}, nil
}

func ValidateCronExpression(expr string) error {
	_, err := Parse(expr, "")

	return err
}

// Next returns the first activation strictly after from.
func (s *Schedule) Next(from time.Time) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	return s.spec.Next(from.In(s.loc))
}

func (s *Schedule) String() string {
	return s.expr
}
