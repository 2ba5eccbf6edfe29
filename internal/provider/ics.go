package provider

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/church-connect/backend/internal/storage/models"
)

// icsEvent is an intermediate VEVENT representation before recurrence
// expansion.
type icsEvent struct {
	uid         string
	summary     string
	description string
	location    string
	start       time.Time
	end         time.Time
	allDay      bool
	rrule       string
	exDates     []time.Time
	status      string
	attendees   []string
}

// parseVEvent extracts the fields we consume from a VEVENT. The library's
// start/end helpers handle VTIMEZONE/TZID resolution; all-day is detected
// from the DTSTART value form.
func parseVEvent(ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.status = normalizeICSStatus(p.Value)
	} else {
		out.status = models.EventStatusConfirmed
	}

	for _, p := range ve.Attendees() {
		addr := strings.TrimPrefix(strings.ToLower(p.Value), "mailto:")
		if addr != "" {
			out.attendees = append(out.attendees, addr)
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// Events without DTEND are treated as instantaneous.
		end = start
	}
	out.start = start
	out.end = end

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.allDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.allDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	return out, nil
}

func normalizeICSStatus(status string) string {
	switch strings.ToUpper(status) {
	case "CANCELLED":
		return models.EventStatusCancelled
	case "TENTATIVE":
		return models.EventStatusTentative
	default:
		return models.EventStatusConfirmed
	}
}

// parseICSTime parses basic ICS DATE / DATE-TIME / UTC forms. Values
// without an explicit zone are anchored in UTC for canonical comparison.
func parseICSTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}

// expandOccurrences turns one parsed VEVENT into normalized occurrences
// within [start, end). Non-recurring events yield at most one; RRULE events
// are expanded with the recurrence library, honoring EXDATE.
func expandOccurrences(ev icsEvent, start, end time.Time) []RemoteEvent {
	if ev.rrule == "" {
		if !overlapsWindow(ev.start, ev.end, start, end) {
			return nil
		}
		return []RemoteEvent{normalizeICSEvent(ev, ev.start, ev.end, ev.uid)}
	}

	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex)
	}

	duration := ev.end.Sub(ev.start)
	var out []RemoteEvent
	for _, occStart := range set.Between(start.Add(-duration), end, true) {
		occEnd := occStart.Add(duration)
		if !overlapsWindow(occStart, occEnd, start, end) {
			continue
		}
		// Each occurrence gets a stable identity derived from the UID and
		// its start instant so re-syncs upsert rather than duplicate.
		id := ev.uid + "/" + occStart.UTC().Format("20060102T150405Z")
		out = append(out, normalizeICSEvent(ev, occStart, occEnd, id))
	}
	return out
}

func overlapsWindow(evStart, evEnd, winStart, winEnd time.Time) bool {
	if evEnd.Equal(evStart) {
		// Instantaneous events count when they fall inside the window.
		return !evStart.Before(winStart) && evStart.Before(winEnd)
	}
	return evStart.Before(winEnd) && winStart.Before(evEnd)
}

func normalizeICSEvent(ev icsEvent, occStart, occEnd time.Time, externalID string) RemoteEvent {
	out := RemoteEvent{
		ExternalID:     externalID,
		Title:          ev.summary,
		Description:    ev.description,
		Location:       ev.location,
		Attendees:      ev.attendees,
		RecurrenceRule: ev.rrule,
		Status:         ev.status,
	}

	if ev.allDay {
		out.AllDay = true
		out.StartTime, out.EndTime = allDayFromDates(occStart, occEnd)
		return out
	}

	out.StartTime = canonicalUTC(occStart)
	out.EndTime = canonicalUTC(occEnd)
	return out
}
