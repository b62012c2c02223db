package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsched/internal/model"
	"schoolsched/internal/schedule"
)

func testSchedule(t *testing.T, id string) *schedule.Schedule {
	t.Helper()
	date, err := model.ParseDate("2024-01-10")
	require.NoError(t, err)
	return &schedule.Schedule{
		ID:       id,
		Division: model.DivisionUpper,
		Days: map[model.DateKey]schedule.Day{
			date.Key(): schedule.NewDay([]model.RawBlock{
				{Title: "Math", Label: "1", Date: date, Start: model.NewTimeOfDay(8, 30), End: model.NewTimeOfDay(9, 15)},
				{Title: "Lab", Date: date, Meta: model.DayMeta{Letter: "A"}, Start: model.NewTimeOfDay(10, 0), End: model.NewTimeOfDay(10, 45)},
			}),
		},
	}
}

func newTestStore(at time.Time) (*ScheduleStore, *MemoryClient) {
	client := NewMemoryClient()
	s := NewScheduleStore(client)
	s.now = func() time.Time { return at }
	return s, client
}

func TestScheduleStore_PutGet(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	s, client := newTestStore(at)

	want := testSchedule(t, "alex")
	_, err := s.Put(ctx, want)
	require.NoError(t, err)

	raw, err := client.Get(ctx, "schedule_v1:alex")
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.EqualValues(t, CurrentVersion, env["version"])

	got, err := s.Get(ctx, "alex")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at))
	assert.Equal(t, want, got.Schedule)
}

func TestScheduleStore_Miss(t *testing.T) {
	s, _ := newTestStore(time.Now())
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleStore_VersionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(time.Now())

	require.NoError(t, client.Set(ctx, "schedule_v1:old", `{"version":0,"created_at":"2024-01-01T00:00:00Z","schedule":{"id":"old","days":{}}}`))
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrVersionMismatch)

	require.NoError(t, client.Set(ctx, "schedule_v1:junk", `{"version":1,`))
	_, err = s.Get(ctx, "junk")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestScheduleStore_RejectsBrokenInvariants(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(time.Now())

	// Blocks out of order.
	body := `{"version":1,"created_at":"2024-01-01T00:00:00Z","schedule":{"id":"x","days":{"2024-01-10":[` +
		`{"title":"B","date":"2024-01-10","meta":{"letter":""},"start":"10:00","end":"10:45"},` +
		`{"title":"A","date":"2024-01-10","meta":{"letter":""},"start":"09:00","end":"09:45"}]}}}`
	require.NoError(t, client.Set(ctx, "schedule_v1:x", body))

	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestEntry_Stale(t *testing.T) {
	at := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	e := Entry{CreatedAt: at}
	assert.False(t, e.Stale(at.Add(time.Hour), 24*time.Hour))
	assert.False(t, e.Stale(at.Add(24*time.Hour), 24*time.Hour))
	assert.True(t, e.Stale(at.Add(25*time.Hour), 24*time.Hour))
}

func TestScheduleStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(time.Now())

	for _, id := range []string{"b", "a"} {
		_, err := s.Put(ctx, testSchedule(t, id))
		require.NoError(t, err)
	}
	require.NoError(t, client.Set(ctx, "unrelated", "x"))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingClient struct{ MemoryClient }

func (failingClient) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestScheduleStore_ClientErrorIsNotAMiss(t *testing.T) {
	s := NewScheduleStore(&failingClient{})
	_, err := s.Get(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "connection refused")
}
