package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsched/internal/model"
)

var jan10 = model.Date{Year: 2024, Month: time.January, Day: 10}

func block(title string, d model.Date, h, m int) model.RawBlock {
	return model.RawBlock{
		Title: title,
		Date:  d,
		Start: model.NewTimeOfDay(h, m),
		End:   model.NewTimeOfDay(h+1, m),
	}
}

func static(blocks ...model.RawBlock) BlockSource {
	return SourceFunc(func(context.Context) ([]model.RawBlock, error) {
		return blocks, nil
	})
}

func failing(reason string) BlockSource {
	return SourceFunc(func(context.Context) ([]model.RawBlock, error) {
		return nil, errors.New(reason)
	})
}

func titles(d Day) []string {
	var out []string
	for _, b := range d.Blocks() {
		out = append(out, b.Title)
	}
	return out
}

func TestBuild_LastDuplicateWins(t *testing.T) {
	src := static(
		block("Math", jan10, 9, 0),
		block("Math-updated", jan10, 9, 0),
	)

	s, err := Build(context.Background(), "cal-1", model.DivisionUpper, src)
	require.NoError(t, err)

	day, ok := s.Day("2024-01-10")
	require.True(t, ok)
	assert.Equal(t, []string{"Math-updated"}, titles(day))
}

func TestBuild_DuplicateAcrossSourcesUsesSourceOrder(t *testing.T) {
	a := static(block("From A", jan10, 10, 0))
	b := static(block("From B", jan10, 10, 0))

	s, err := Build(context.Background(), "x", model.DivisionUpper, a, b)
	require.NoError(t, err)
	day, _ := s.Day(jan10.Key())
	assert.Equal(t, []string{"From B"}, titles(day))

	s, err = Build(context.Background(), "x", model.DivisionUpper, b, a)
	require.NoError(t, err)
	day, _ = s.Day(jan10.Key())
	assert.Equal(t, []string{"From A"}, titles(day))
}

func TestBuild_DuplicateKeyIgnoresEndTime(t *testing.T) {
	first := block("Short", jan10, 11, 0)
	second := block("Long", jan10, 11, 0)
	second.End = model.NewTimeOfDay(13, 30)

	s, err := Build(context.Background(), "x", model.DivisionUpper, static(first, second))
	require.NoError(t, err)
	day, _ := s.Day(jan10.Key())
	assert.Equal(t, []string{"Long"}, titles(day))
}

func TestBuild_BoundsFilter(t *testing.T) {
	src1 := static(block("Early", jan10, 7, 0), block("Mid", jan10, 10, 0))
	src2 := static(block("Late", jan10, 16, 0))

	s, err := Build(context.Background(), "x", model.DivisionUpper, src1, src2)
	require.NoError(t, err)
	day, ok := s.Day(jan10.Key())
	require.True(t, ok)
	assert.Equal(t, []string{"Mid"}, titles(day))
}

func TestBuild_BoundsAreHourOnly(t *testing.T) {
	tests := []struct {
		h, m int
		kept bool
	}{
		{7, 59, false},
		{8, 0, true},
		{14, 59, true},
		{15, 0, false},
		{15, 10, false},
		{0, 0, false},
		{23, 0, false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%02d:%02d", tc.h, tc.m), func(t *testing.T) {
			s, err := Build(context.Background(), "x", model.DivisionUpper, static(block("B", jan10, tc.h, tc.m)))
			require.NoError(t, err)
			day := s.Days[jan10.Key()]
			assert.Equal(t, tc.kept, day.Len() == 1)
		})
	}
}

func TestBuild_InvalidStartDropped(t *testing.T) {
	nan := model.RawBlock{Title: "All day", Date: jan10, Start: model.InvalidTime}
	nan2 := nan
	nan2.Title = "All day 2"

	s, err := Build(context.Background(), "x", model.DivisionUpper, static(nan, nan2, block("Kept", jan10, 9, 0)))
	require.NoError(t, err)
	day, _ := s.Day(jan10.Key())
	assert.Equal(t, []string{"Kept"}, titles(day))
}

func TestBuild_EmptyDateGroupStillPresent(t *testing.T) {
	s, err := Build(context.Background(), "x", model.DivisionUpper, static(block("Night", jan10, 20, 0)))
	require.NoError(t, err)
	day, ok := s.Day(jan10.Key())
	require.True(t, ok)
	assert.Equal(t, 0, day.Len())
}

func TestBuild_SortsByStartAndGroupsByDate(t *testing.T) {
	jan11 := model.Date{Year: 2024, Month: time.January, Day: 11}
	src := static(
		block("C", jan10, 13, 0),
		block("X", jan11, 9, 0),
		block("A", jan10, 8, 30),
		block("B", jan10, 8, 45),
	)

	s, err := Build(context.Background(), "x", model.DivisionMiddle, src)
	require.NoError(t, err)

	assert.Equal(t, []model.DateKey{"2024-01-10", "2024-01-11"}, s.Dates())
	d10, _ := s.Day(jan10.Key())
	d11, _ := s.Day(jan11.Key())
	assert.Equal(t, []string{"A", "B", "C"}, titles(d10))
	assert.Equal(t, []string{"X"}, titles(d11))
	assert.Equal(t, model.DivisionMiddle, s.Division)
}

func TestBuild_Invariants(t *testing.T) {
	var blocks []model.RawBlock
	for i := 0; i < 200; i++ {
		d := model.Date{Year: 2024, Month: time.March, Day: 1 + i%5}
		blocks = append(blocks, block(fmt.Sprintf("b%d", i), d, (i*7)%24, (i*13)%60))
	}

	first, err := Build(context.Background(), "x", model.DivisionUpper, static(blocks[:100]...), static(blocks[100:]...))
	require.NoError(t, err)

	for key, day := range first.Days {
		seen := map[string]bool{}
		prev := model.InvalidTime
		for _, b := range day.Blocks() {
			assert.Equal(t, key, b.Date.Key())
			assert.True(t, InSchoolHours(b.Start), "%s out of bounds", b.Start)
			assert.False(t, seen[b.Start.String()], "duplicate start %s", b.Start)
			seen[b.Start.String()] = true
			if prev.Valid() {
				assert.True(t, prev.Before(b.Start))
			}
			prev = b.Start
		}
	}

	again, err := Build(context.Background(), "x", model.DivisionUpper, static(blocks[:100]...), static(blocks[100:]...))
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestBuild_NoSources(t *testing.T) {
	s, err := Build(context.Background(), "empty", model.DivisionUpper)
	require.NoError(t, err)
	assert.Equal(t, "empty", s.ID)
	assert.NotNil(t, s.Days)
	assert.Empty(t, s.Days)
}

func TestBuild_SourceWithNoBlocks(t *testing.T) {
	s, err := Build(context.Background(), "x", model.DivisionUpper, static(), static())
	require.NoError(t, err)
	assert.Empty(t, s.Days)
}

func TestBuild_AnyFailureFailsAll(t *testing.T) {
	s, err := Build(context.Background(), "x", model.DivisionUpper,
		static(block("Math", jan10, 9, 0)),
		failing("404"),
	)
	require.Error(t, err)
	assert.Equal(t, "404", err.Error())
	assert.Nil(t, s)
}

func TestBuild_FetchesConcurrently(t *testing.T) {
	const n = 4
	var started atomic.Int32
	release := make(chan struct{})

	src := SourceFunc(func(ctx context.Context) ([]model.RawBlock, error) {
		if started.Add(1) == n {
			close(release)
		}
		select {
		case <-release:
			return []model.RawBlock{block("B", jan10, 9, 0)}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sources := make([]BlockSource, n)
	for i := range sources {
		sources[i] = src
	}
	s, err := Build(ctx, "x", model.DivisionUpper, sources...)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Days[jan10.Key()].Len())
}

func TestScheduleJSONRoundTrip(t *testing.T) {
	src := static(
		block("Math", jan10, 9, 0),
		block("Art", jan10, 13, 15),
	)
	s, err := Build(context.Background(), "cal-1", model.DivisionLower, src)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back Schedule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *s, back)
}

func TestScheduleUnmarshalRejectsBrokenInvariants(t *testing.T) {
	tests := map[string]string{
		"bad key":      `{"id":"x","days":{"10/01/2024":[]},"division":"upper"}`,
		"out of order": `{"id":"x","days":{"2024-01-10":[{"title":"B","date":"2024-01-10","meta":{"letter":""},"start":"10:00","end":null},{"title":"A","date":"2024-01-10","meta":{"letter":""},"start":"09:00","end":null}]},"division":"upper"}`,
		"duplicate":    `{"id":"x","days":{"2024-01-10":[{"title":"B","date":"2024-01-10","meta":{"letter":""},"start":"10:00","end":null},{"title":"A","date":"2024-01-10","meta":{"letter":""},"start":"10:00","end":null}]},"division":"upper"}`,
		"out of hours": `{"id":"x","days":{"2024-01-10":[{"title":"B","date":"2024-01-10","meta":{"letter":""},"start":"18:00","end":null}]},"division":"upper"}`,
		"wrong date":   `{"id":"x","days":{"2024-01-10":[{"title":"B","date":"2024-01-11","meta":{"letter":""},"start":"10:00","end":null}]},"division":"upper"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var s Schedule
			assert.Error(t, json.Unmarshal([]byte(raw), &s))
		})
	}
}
