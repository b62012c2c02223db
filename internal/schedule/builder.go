package schedule

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	appLog "schoolsched/internal/log"
	"schoolsched/internal/model"
)

// School-hours window on the start hour only: [DayStartHour, DayEndHour).
// Minutes are not considered, so a 14:59 block is kept and a 15:00 block is
// dropped.
// TODO: dismissal is 15:15, not 15:00; decide whether the end bound should
// compare minutes too.
const (
	DayStartHour = 8
	DayEndHour   = 12 + 3
)

// BlockSource produces the raw blocks of one calendar feed.
type BlockSource interface {
	Blocks(ctx context.Context) ([]model.RawBlock, error)
}

// SourceFunc adapts a plain function to BlockSource.
type SourceFunc func(ctx context.Context) ([]model.RawBlock, error)

func (f SourceFunc) Blocks(ctx context.Context) ([]model.RawBlock, error) { return f(ctx) }

// Build fetches every source concurrently and assembles the result into a
// Schedule.
//
// All sources must succeed: the first error cancels the others' context and
// is returned unchanged, and no partial schedule is produced. Zero sources,
// or sources that return no blocks, yield an empty but valid Schedule.
//
// Within a date, a block is dropped when its start time is invalid, its start
// hour falls outside [DayStartHour, DayEndHour), or a later block (in source
// order, then each source's own order) has the same start time. Survivors
// are sorted by start time.
func Build(ctx context.Context, id string, division model.Division, sources ...BlockSource) (*Schedule, error) {
	perSource := make([][]model.RawBlock, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			blocks, err := src.Blocks(gctx)
			if err != nil {
				return err
			}
			perSource[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups, order := groupByDate(slices.Concat(perSource...))

	days := make(map[model.DateKey]Day, len(groups))
	kept := 0
	for _, key := range order {
		blocks := filterAndSort(groups[key])
		kept += len(blocks)
		days[key] = NewDay(blocks)
	}

	appLog.Debug("schedule built",
		"id", id,
		"sources", len(sources),
		"days", len(days),
		"blocks_kept", kept,
	)

	return &Schedule{
		ID:       id,
		Days:     days,
		Division: division,
	}, nil
}

// groupByDate buckets blocks by date key, preserving input order inside each
// bucket. The second return value lists keys in first-seen order.
func groupByDate(blocks []model.RawBlock) (map[model.DateKey][]model.RawBlock, []model.DateKey) {
	groups := make(map[model.DateKey][]model.RawBlock)
	var order []model.DateKey
	for _, b := range blocks {
		key := b.Date.Key()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}
	return groups, order
}

// filterAndSort applies the bounds and duplicate rules to one date's blocks
// in a single pass and returns the survivors ordered by start time.
func filterAndSort(group []model.RawBlock) []model.RawBlock {
	out := make([]model.RawBlock, 0, len(group))
	for i, b := range group {
		if !InSchoolHours(b.Start) || supersededLater(group, i) {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b model.RawBlock) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

// supersededLater reports whether a block after index i shares its start time.
func supersededLater(group []model.RawBlock, i int) bool {
	for _, other := range group[i+1:] {
		if other.Start.Equal(group[i].Start) {
			return true
		}
	}
	return false
}

// InSchoolHours reports whether a block starting at t belongs on a schedule.
func InSchoolHours(t model.TimeOfDay) bool {
	if !t.Valid() {
		return false
	}
	h := t.Hours()
	return h >= DayStartHour && h < DayEndHour
}
