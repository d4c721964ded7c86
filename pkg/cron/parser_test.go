package cron_test

import (
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		desc     string
		expr     string
		timezone string
		err      error
	}{
		{desc: "five field expression", expr: "*/15 * * * *"},
		{desc: "descriptor", expr: "@hourly"},
		{desc: "interval descriptor", expr: "@every 30m"},
		{desc: "with timezone", expr: "0 3 * * *", timezone: "Europe/Belgrade"},
		{desc: "empty expression", expr: "", err: cron.ErrInvalidCronExpression},
		{desc: "too many fields", expr: "0 0 3 * * *", err: cron.ErrInvalidCronExpression},
		{desc: "garbage", expr: "every day", err: cron.ErrInvalidCronExpression},
		{desc: "unknown timezone", expr: "@daily", timezone: "Mars/Olympus", err: cron.ErrInvalidTimezone},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := cron.Parse(tc.expr, tc.timezone)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expr, s.String())
		})
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2026, 3, 10, 10, 7, 0, 0, time.UTC)

	cases := []struct {
		desc string
		expr string
		want time.Time
	}{
		{
			desc: "quarter hour",
			expr: "*/15 * * * *",
			want: time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC),
		},
		{
			desc: "daily at three",
			expr: "0 3 * * *",
			want: time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			desc: "every ten minutes",
			expr: "@every 10m",
			want: from.Add(10 * time.Minute),
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := cron.Parse(tc.expr, "")
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(s.Next(from)), "got %s", s.Next(from))
		})
	}

	var nilSchedule *cron.Schedule
	assert.True(t, nilSchedule.Next(from).IsZero())
}
