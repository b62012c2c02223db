// Package store caches built schedules in Redis (or memory) so that requests
// do not refetch every calendar feed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	appLog "schoolsched/internal/log"
	"schoolsched/internal/schedule"
)

const (
	scheduleKeyPrefixV1 = "schedule_v1:"
	scheduleKeyFormatV1 = scheduleKeyPrefixV1 + "%s"

	// CurrentVersion is bumped whenever the cached schedule layout changes;
	// older entries are then ignored.
	CurrentVersion = 1
)

var (
	ErrNotFound        = errors.New("schedule not cached")
	ErrVersionMismatch = errors.New("cached schedule has an old version")
)

type envelope struct {
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Schedule  *schedule.Schedule `json:"schedule"`
}

// Entry is a cached schedule and when it was built.
type Entry struct {
	Schedule  *schedule.Schedule
	CreatedAt time.Time
}

// Stale reports whether the entry is older than ttl at now.
func (e Entry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// ScheduleStore reads and writes cached schedules.
type ScheduleStore struct {
	client RedisClient
	now    func() time.Time
}

func NewScheduleStore(client RedisClient) *ScheduleStore {
	return &ScheduleStore{client: client, now: time.Now}
}

func scheduleKey(id string) string {
	return fmt.Sprintf(scheduleKeyFormatV1, id)
}

// Get returns the cached schedule for id.
//
// A missing key yields ErrNotFound. An entry written with a different
// version, or one that no longer decodes, yields ErrVersionMismatch; callers
// treat both as a miss.
func (s *ScheduleStore) Get(ctx context.Context, id string) (Entry, error) {
	raw, err := s.client.Get(ctx, scheduleKey(id))
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get schedule %s: %w", id, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		appLog.Warn("discarding undecodable cached schedule", "id", id, "reason", err.Error())
		return Entry{}, fmt.Errorf("%w: %v", ErrVersionMismatch, err)
	}
	if env.Version != CurrentVersion || env.Schedule == nil {
		return Entry{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, env.Version, CurrentVersion)
	}
	return Entry{Schedule: env.Schedule, CreatedAt: env.CreatedAt}, nil
}

// Put stores sched under its ID, stamped with the current time.
func (s *ScheduleStore) Put(ctx context.Context, sched *schedule.Schedule) (Entry, error) {
	if sched == nil {
		return Entry{}, errors.New("nil schedule")
	}
	env := envelope{
		Version:   CurrentVersion,
		CreatedAt: s.now().UTC(),
		Schedule:  sched,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal schedule %s: %w", sched.ID, err)
	}
	if err := s.client.Set(ctx, scheduleKey(sched.ID), string(data)); err != nil {
		return Entry{}, fmt.Errorf("set schedule %s: %w", sched.ID, err)
	}
	return Entry{Schedule: sched, CreatedAt: env.CreatedAt}, nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, scheduleKey(id))
}

// List returns the ids of every cached schedule, sorted.
func (s *ScheduleStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, scheduleKeyPrefixV1+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, scheduleKeyPrefixV1))
	}
	sort.Strings(ids)
	return ids, nil
}
