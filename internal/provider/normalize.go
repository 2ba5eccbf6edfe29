package provider

import (
	"time"
)

// Timestamp normalization. Providers disagree on how they report event
// times (zone-aware RFC 3339, floating local times, bare dates for all-day
// events); everything is anchored to UTC before a RemoteEvent leaves an
// adapter so that equivalent events from different providers compare equal.

// canonicalUTC converts a provider timestamp to UTC. Timezone-naive values
// must already have been parsed in UTC by the caller.
func canonicalUTC(t time.Time) time.Time {
	return t.UTC()
}

// allDayRange returns the canonical UTC window for an all-day event that
// starts on the given calendar date and spans days whole days: midnight UTC
// start with an exclusive midnight end.
func allDayRange(year int, month time.Month, day, days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, days)
}

// allDayFromDates builds the canonical window from provider start/end
// dates, where end is the provider's exclusive end date. A zero or inverted
// end collapses to a single day.
func allDayFromDates(start, end time.Time) (time.Time, time.Time) {
	days := 1
	if !end.IsZero() {
		if d := int(end.Sub(start).Hours() / 24); d > 1 {
			days = d
		}
	}
	return allDayRange(start.Year(), start.Month(), start.Day(), days)
}
