// Package marketclock implements MarketClockScheduler: one sleep-to-instant
// task per tracked market, each computing its own next Bangkok-local close
// time under the US daylight-saving convention (spec.md §4.6.1).
package marketclock

import (
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
)

// closeTime is an hour/minute pair on the Bangkok wall clock.
type closeTime struct {
	hour, min int
}

// closeTimes holds each market's (winter, summer) close pair. Asian markets
// carry the same value in both slots: they are DST-invariant.
var closeTimes = map[domain.MarketCode]struct{ winter, summer closeTime }{
	domain.MarketUS: {closeTime{4, 0}, closeTime{3, 0}},
	domain.MarketDK: {closeTime{23, 0}, closeTime{22, 0}},
	domain.MarketNL: {closeTime{23, 30}, closeTime{22, 30}},
	domain.MarketFR: {closeTime{23, 30}, closeTime{22, 30}},
	domain.MarketIT: {closeTime{23, 30}, closeTime{22, 30}},
	domain.MarketHK: {closeTime{15, 0}, closeTime{15, 0}},
	domain.MarketJP: {closeTime{13, 0}, closeTime{13, 0}},
	domain.MarketSG: {closeTime{16, 0}, closeTime{16, 0}},
	domain.MarketTW: {closeTime{12, 30}, closeTime{12, 30}},
	domain.MarketCN: {closeTime{14, 0}, closeTime{14, 0}},
	domain.MarketVN: {closeTime{15, 0}, closeTime{15, 0}},
}

// isSummerTime implements the bit-exact DST rule of spec.md §4.6.1 for a
// Bangkok-local reference time t.
//
// This intentionally corrects a dead branch in the system this was derived
// from: there, the November carve-out sat behind an unconditional "month in
// {11,12,1,2} -> winter" check that always fired first, so November never
// reached its own rule. Here the November check runs on its own.
func isSummerTime(t time.Time) bool {
	switch t.Month() {
	case time.April, time.May, time.June, time.July, time.August, time.September, time.October:
		return true
	case time.December, time.January, time.February:
		return false
	case time.March:
		return !t.Before(secondSundayOfMarch(t.Year(), t.Location()))
	case time.November:
		return t.Before(firstSundayOfNovember(t.Year(), t.Location()))
	default:
		return false
	}
}

// closeTimeFor returns the close-time pair for market under the given
// summer/winter status.
func closeTimeFor(market domain.MarketCode, summer bool) (closeTime, bool) {
	pair, ok := closeTimes[market]
	if !ok {
		return closeTime{}, false
	}
	if summer {
		return pair.summer, true
	}
	return pair.winter, true
}

// nthWeekdayOfMonth returns the n-th occurrence (1-indexed) of weekday in
// (year, month), at 00:00 in loc.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := int(weekday) - int(first.Weekday())
	if offset < 0 {
		offset += 7
	}
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func secondSundayOfMarch(year int, loc *time.Location) time.Time {
	return nthWeekdayOfMonth(year, time.March, time.Sunday, 2, loc)
}

func firstSundayOfNovember(year int, loc *time.Location) time.Time {
	return nthWeekdayOfMonth(year, time.November, time.Sunday, 1, loc)
}

// NextClose returns the next local-Bangkok close instant for market,
// strictly after now (spec.md §4.6 step 1). now must already be in the
// Asia/Bangkok location.
func NextClose(market domain.MarketCode, now time.Time) (time.Time, bool) {
	loc := now.Location()
	for dayOffset := 0; dayOffset < 8; dayOffset++ {
		day := now.AddDate(0, 0, dayOffset)
		summer := isSummerTime(day)
		ct, ok := closeTimeFor(market, summer)
		if !ok {
			return time.Time{}, false
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.min, 0, 0, loc)
		if candidate.After(now) {
			return candidate, true
		}
	}
	return time.Time{}, false
}
