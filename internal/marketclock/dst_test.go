package marketclock

import (
	"testing"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bangkok(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	return loc
}

func TestIsSummerTimeMarchBoundary(t *testing.T) {
	loc := bangkok(t)
	secondSunday := secondSundayOfMarch(2026, loc)

	before := secondSunday.Add(-time.Hour)
	assert.False(t, isSummerTime(before), "just before the second Sunday of March is still winter")

	assert.True(t, isSummerTime(secondSunday), "at the second Sunday of March, summer begins")
}

func TestIsSummerTimeNovemberBoundary(t *testing.T) {
	loc := bangkok(t)
	firstSunday := firstSundayOfNovember(2026, loc)

	before := firstSunday.Add(-time.Hour)
	assert.True(t, isSummerTime(before), "just before the first Sunday of November is still summer")

	assert.False(t, isSummerTime(firstSunday), "at the first Sunday of November, winter begins")
}

func TestIsSummerTimeFixedMonths(t *testing.T) {
	loc := bangkok(t)
	assert.True(t, isSummerTime(time.Date(2026, time.July, 15, 12, 0, 0, 0, loc)))
	assert.False(t, isSummerTime(time.Date(2026, time.January, 15, 12, 0, 0, 0, loc)))
	assert.False(t, isSummerTime(time.Date(2026, time.December, 15, 12, 0, 0, 0, loc)))
}

func TestNextCloseAsiaInvariant(t *testing.T) {
	loc := bangkok(t)
	now := time.Date(2026, time.July, 1, 16, 30, 0, 0, loc) // after HK's 15:00 close today
	next, ok := NextClose(domain.MarketHK, now)
	require.True(t, ok)
	assert.Equal(t, 2, next.Day())
	assert.Equal(t, 15, next.Hour())
}

func TestNextCloseUSWinterSummer(t *testing.T) {
	loc := bangkok(t)
	// Deep winter: US closes at 04:00 Bangkok.
	now := time.Date(2026, time.January, 10, 1, 0, 0, 0, loc)
	next, ok := NextClose(domain.MarketUS, now)
	require.True(t, ok)
	assert.Equal(t, 4, next.Hour())

	// Deep summer: US closes at 03:00 Bangkok.
	now = time.Date(2026, time.July, 10, 1, 0, 0, 0, loc)
	next, ok = NextClose(domain.MarketUS, now)
	require.True(t, ok)
	assert.Equal(t, 3, next.Hour())
}
