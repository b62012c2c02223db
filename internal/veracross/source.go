// Package veracross turns a school's ICS class calendar into raw schedule
// blocks.
package veracross

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoolsched/internal/ics"
	appLog "schoolsched/internal/log"
	"schoolsched/internal/model"
)

// DefaultFeedURLTemplate is the subscribe URL for a student calendar. The
// "{uuid}" placeholder is replaced with the calendar UUID.
const DefaultFeedURLTemplate = "https://api.veracross.com/catlin/subscribe/{uuid}.ics"

var (
	// ErrCalendarNotFound is returned when the feed could not be fetched or
	// parsed. Its text is shown to end users as-is.
	ErrCalendarNotFound = errors.New("Calendar link returned 404! Make sure to copy your calendar link from the correct 'Subscribe' button in step 2!")

	// ErrNoBlocks is returned when the feed held no usable class blocks.
	ErrNoBlocks = errors.New("Found 0 class blocks from the provided calendar link! Make sure to copy your calendar link from the correct 'Subscribe' button in step 2!")
)

// Window is the date range a source expands recurring events into.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAround returns [now-backfill, now+horizon] in days.
func WindowAround(now time.Time, backfillDays, horizonDays int) Window {
	return Window{
		Start: now.AddDate(0, 0, -backfillDays),
		End:   now.AddDate(0, 0, horizonDays),
	}
}

// Options configures a Source.
type Options struct {
	Fetcher  *ics.Fetcher
	Location *time.Location
	Window   Window
	// Exclude drops events whose title matches any pattern.
	Exclude []*regexp.Regexp
}

// Source is a BlockSource for one calendar feed.
type Source struct {
	id   string
	url  string
	opts Options
}

// NewSource builds a Source for a calendar UUID, using urlTemplate to form
// the subscribe URL.
func NewSource(calendarUUID, urlTemplate string, opts Options) (*Source, error) {
	id, err := uuid.Parse(strings.TrimSpace(calendarUUID))
	if err != nil {
		return nil, fmt.Errorf("calendar id %q: %w", calendarUUID, err)
	}
	if urlTemplate == "" {
		urlTemplate = DefaultFeedURLTemplate
	}
	return newSource(id.String(), strings.ReplaceAll(urlTemplate, "{uuid}", id.String()), opts), nil
}

// NewURLSource builds a Source for a feed given by its full URL.
func NewURLSource(id, feedURL string, opts Options) *Source {
	return newSource(id, feedURL, opts)
}

func newSource(id, feedURL string, opts Options) *Source {
	if opts.Fetcher == nil {
		opts.Fetcher = ics.NewFetcher("", nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Source{id: id, url: feedURL, opts: opts}
}

func (s *Source) ID() string { return s.id }

// Blocks fetches the feed and returns its class blocks in feed order.
//
// Individual events that cannot be turned into a block are dropped. The
// whole call fails with ErrCalendarNotFound if the feed cannot be read, and
// with ErrNoBlocks if nothing usable remains.
func (s *Source) Blocks(ctx context.Context) ([]model.RawBlock, error) {
	src := ics.Source{ID: s.id, URL: s.url}

	res, err := s.opts.Fetcher.FetchOne(ctx, src)
	if err != nil {
		appLog.Error("calendar fetch failed", err, "id", s.id, "url", ics.RedactURL(s.url))
		return nil, fmt.Errorf("%w (%v)", ErrCalendarNotFound, err)
	}

	events, err := ics.ParseICS(src, res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrCalendarNotFound, err)
	}

	expanded, err := ics.ExpandOccurrences(events, ics.ExpandConfig{
		DisplayLocation: s.opts.Location,
		RangeStart:      s.opts.Window.Start,
		RangeEnd:        s.opts.Window.End,
	})
	if err != nil {
		return nil, err
	}

	blocks := make([]model.RawBlock, 0, len(expanded.Occurrences))
	dropped := 0
	for _, occ := range expanded.Occurrences {
		b, err := ParseBlock(occ, s.opts.Exclude)
		if err != nil {
			dropped++
			appLog.Debug("calendar event dropped", "id", s.id, "uid", occ.UID, "reason", err.Error())
			continue
		}
		blocks = append(blocks, b)
	}

	appLog.Info("calendar blocks parsed",
		"id", s.id,
		"events", len(expanded.Occurrences),
		"blocks", len(blocks),
		"dropped", dropped,
		"from_cache", res.FromCache,
	)

	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}
	return blocks, nil
}
