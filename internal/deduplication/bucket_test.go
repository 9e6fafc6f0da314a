package deduplication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lima(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)
	return loc
}

func TestBucketFor_UsesLocalDate(t *testing.T) {
	loc := lima(t)

	tests := []struct {
		name string
		at   time.Time
		want BucketKey
	}{
		{"late evening local is still the same day", time.Date(2024, 3, 5, 23, 59, 0, 0, loc), "20240305"},
		{"UTC already next day", time.Date(2024, 3, 6, 4, 30, 0, 0, time.UTC), "20240305"},
		{"local midnight", time.Date(2024, 3, 6, 0, 0, 0, 0, loc), "20240306"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketFor(tt.at, loc))
		})
	}
}

func TestWindowBuckets(t *testing.T) {
	loc := lima(t)
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, loc)

	tests := []struct {
		name    string
		since   time.Time
		padding int
		want    []BucketKey
	}{
		{"today only", now, 0, []BucketKey{"20240306"}},
		{"lookback with padding", now.AddDate(0, 0, -1), 1, []BucketKey{"20240304", "20240305", "20240306"}},
		{"month boundary", time.Date(2024, 3, 1, 0, 0, 0, 0, loc), 1, []BucketKey{"20240229", "20240301", "20240302", "20240303", "20240304", "20240305", "20240306"}},
		{"negative padding treated as zero", now, -3, []BucketKey{"20240306"}},
		{"since after now collapses to today", now.AddDate(0, 0, 2), 0, []BucketKey{"20240306"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WindowBuckets(tt.since, now, tt.padding, loc))
		})
	}
}

func TestParseBucketKey(t *testing.T) {
	day, err := ParseBucketKey("20240229")
	require.NoError(t, err)
	assert.Equal(t, BucketKey("20240229"), day)

	for _, bad := range []string{"", "2024-02-29", "20240230", "2024022", "abcdefgh"} {
		_, err := ParseBucketKey(bad)
		assert.Error(t, err, bad)
	}
}
