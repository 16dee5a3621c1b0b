// Package icalendar renders event occurrences as an RFC 5545 feed.
package icalendar

import (
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
)

// DefaultProductID identifies the generator in PRODID.
const DefaultProductID = "-//staffboard//events//EN"

// Entry is one VEVENT of the feed.
type Entry struct {
	UID          string
	Summary      string
	Description  string
	DepartmentID string
	Start        time.Time
	End          time.Time
}

// Options tunes feed metadata.
type Options struct {
	ProductID string
	Name      string
	// Stamp fills DTSTAMP. Zero means time.Now.
	Stamp time.Time
}

// Build serializes entries into a PUBLISH calendar ordered by start then UID.
func Build(entries []Entry, opts Options) string {
	productID := opts.ProductID
	if productID == "" {
		productID = DefaultProductID
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}

	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].UID < ordered[j].UID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	for _, entry := range ordered {
		event := cal.AddEvent(entry.UID)
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(entry.Start.UTC())
		event.SetEndAt(entry.End.UTC())
		event.SetSummary(entry.Summary)
		if entry.Description != "" {
			event.SetDescription(entry.Description)
		}
		if entry.DepartmentID != "" {
			event.AddProperty(ics.ComponentPropertyCategories, entry.DepartmentID)
		}
	}
	return cal.Serialize()
}
