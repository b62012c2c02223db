package model

import "time"

// Occurrence represents a single concrete instance of a calendar event
// (after recurrence expansion and timezone normalization). Block sources
// turn occurrences into RawBlocks.
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// DayMeta carries per-day rotation information attached to a block.
// Schools on a lettered rotation ("A" day, "B" day, ...) put the letter here.
type DayMeta struct {
	Letter string `json:"letter"`
}

// RawBlock is one parsed class/activity period on a specific date.
//
// Start is always set but may be InvalidTime when the producing source could
// not determine a time of day. End is optional; an absent end is InvalidTime.
type RawBlock struct {
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Label    string    `json:"label,omitempty"`
	Date     Date      `json:"date"`
	Meta     DayMeta   `json:"meta"`
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
}

// HasEnd reports whether the block carries an end time.
func (b RawBlock) HasEnd() bool { return b.End.Valid() }
