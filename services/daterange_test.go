package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_dashboard/models"
)

func TestParseDateRange(t *testing.T) {
	// 2024-05-15 是周三
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		raw  string
		from time.Time
		to   time.Time
	}{
		{"today", day(2024, 5, 15), day(2024, 5, 16)},
		{"week", day(2024, 5, 13), day(2024, 5, 20)},
		{"month", day(2024, 5, 1), day(2024, 6, 1)},
		{"quarter", day(2024, 4, 1), day(2024, 7, 1)},
		{"year", day(2024, 1, 1), day(2025, 1, 1)},
		{"2024-05-01,2024-05-10", day(2024, 5, 1), day(2024, 5, 11)},
		{"2024-05-01..2024-05-10", day(2024, 5, 1), day(2024, 5, 11)},
		{"2024-05-01,", day(2024, 5, 1), time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r, err := ParseDateRange(tt.raw, now)
			require.NoError(t, err)
			assert.True(t, tt.from.Equal(r.From), "from %s", r.From)
			assert.True(t, tt.to.Equal(r.To), "to %s", r.To)
		})
	}

	for _, raw := range []string{"", "all", " ALL "} {
		r, err := ParseDateRange(raw, now)
		require.NoError(t, err)
		assert.True(t, r.Unbounded())
		assert.Equal(t, "all:", r.KeyPart())
	}

	for _, raw := range []string{"yesterday", "2024-13-01,2024-12-01", "2024-05-10,2024-05-01"} {
		_, err := ParseDateRange(raw, now)
		assert.ErrorIs(t, err, models.ErrValidation, raw)
	}
}

func TestDateRangeContains(t *testing.T) {
	r, err := ParseDateRange("2024-05-01,2024-05-31", fixtureNow)
	require.NoError(t, err)

	assert.True(t, r.Contains(time.Date(2024, 5, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Time{}), "限定日期时没有日期的记录不包含")

	all := DateRange{Label: "all"}
	assert.True(t, all.Contains(time.Time{}))
}
