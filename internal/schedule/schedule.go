package schedule

import (
	"encoding/json"
	"fmt"
	"slices"

	"schoolsched/internal/model"
)

// Day is the deduplicated, bounds-filtered, start-ordered set of blocks for
// one date.
type Day struct {
	blocks []model.RawBlock
}

// NewDay wraps already filtered and sorted blocks. The slice is copied.
func NewDay(blocks []model.RawBlock) Day {
	return Day{blocks: slices.Clone(blocks)}
}

// Blocks returns a copy of the day's blocks in start-time order.
func (d Day) Blocks() []model.RawBlock {
	return slices.Clone(d.blocks)
}

func (d Day) Len() int { return len(d.blocks) }

func (d Day) MarshalJSON() ([]byte, error) {
	blocks := d.blocks
	if blocks == nil {
		blocks = []model.RawBlock{}
	}
	return json.Marshal(blocks)
}

// UnmarshalJSON restores a Day and rechecks its invariants, so a tampered or
// stale cache entry cannot smuggle in unsorted or duplicate blocks.
func (d *Day) UnmarshalJSON(data []byte) error {
	var blocks []model.RawBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	for i, b := range blocks {
		if !InSchoolHours(b.Start) {
			return fmt.Errorf("block %q starts outside school hours (%s)", b.Title, b.Start)
		}
		if i > 0 && !blocks[i-1].Start.Before(b.Start) {
			return fmt.Errorf("block %q is out of order or duplicated at %s", b.Title, b.Start)
		}
	}
	d.blocks = blocks
	return nil
}

// Schedule is the complete result of one build: every day that had at least
// one raw block, keyed by date.
type Schedule struct {
	ID       string                `json:"id"`
	Days     map[model.DateKey]Day `json:"days"`
	Division model.Division        `json:"division"`
}

// Day looks up the day for key.
func (s *Schedule) Day(key model.DateKey) (Day, bool) {
	d, ok := s.Days[key]
	return d, ok
}

// Dates returns the schedule's date keys in ascending order.
func (s *Schedule) Dates() []model.DateKey {
	keys := make([]model.DateKey, 0, len(s.Days))
	for k := range s.Days {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// UnmarshalJSON validates every date key on the way in, and that each block
// sits under its own date.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	type plain Schedule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Days == nil {
		p.Days = map[model.DateKey]Day{}
	}
	for k, day := range p.Days {
		if _, err := model.ParseDateKey(string(k)); err != nil {
			return fmt.Errorf("schedule %s: %w", p.ID, err)
		}
		for _, b := range day.blocks {
			if b.Date.Key() != k {
				return fmt.Errorf("schedule %s: block %q dated %s filed under %s", p.ID, b.Title, b.Date, k)
			}
		}
	}
	*s = Schedule(p)
	return nil
}
