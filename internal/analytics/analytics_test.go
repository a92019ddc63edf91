package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/waterhq/internal/model"
)

var now = time.Date(2026, time.February, 19, 20, 0, 0, 0, time.UTC) // Thursday

func entry(user string, start time.Time, secs int64) model.LogEntry {
	return model.LogEntry{User: user, StartedAt: start, EndedAt: start.Add(time.Duration(secs) * time.Second), DurationSeconds: secs}
}

func sample() []model.LogEntry {
	day := func(d, h, m int) time.Time { return time.Date(2026, time.February, d, h, m, 0, 0, time.UTC) }
	return []model.LogEntry{
		entry("Chase", day(16, 6, 30), 300),  // Monday
		entry("Chase", day(17, 6, 0), 420),   // Tuesday
		entry("Chase", day(18, 7, 30), 330),  // Wednesday
		entry("Livia", day(18, 22, 0), 900),  // Wednesday
		entry("Livia", day(19, 19, 0), 1200), // Thursday
		entry("Dad", day(19, 6, 0), 240),     // Thursday
		entry("Mom", time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC), 600),
	}
}

func TestWindow(t *testing.T) {
	in := Window(sample(), now, 30)
	assert.Len(t, in, 6, "December entry falls outside 30 days")

	in = Window(sample(), now, 1)
	assert.Len(t, in, 3)
}

func TestPeakHours(t *testing.T) {
	peaks := PeakHours(Window(sample(), now, 30), time.UTC)
	assert.Equal(t, map[int]int{6: 2, 7: 1}, peaks["Chase"])
	assert.Equal(t, map[int]int{19: 1, 22: 1}, peaks["Livia"])
	assert.NotContains(t, peaks, "Mom")
}

func TestPeakHoursUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	peaks := PeakHours([]model.LogEntry{entry("Dad", time.Date(2026, 2, 19, 11, 0, 0, 0, time.UTC), 60)}, ny)
	assert.Equal(t, map[int]int{6: 1}, peaks["Dad"])
}

func TestAvgDuration(t *testing.T) {
	avg := AvgDuration(Window(sample(), now, 30))
	assert.Equal(t, 6, avg["Chase"], "350s rounds to 6m")
	assert.Equal(t, 18, avg["Livia"], "1050s rounds to 18m")
	assert.Equal(t, 4, avg["Dad"])
}

func TestDayOfWeekFrequency(t *testing.T) {
	freq := DayOfWeekFrequency(Window(sample(), now, 30), time.UTC)
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, freq["Chase"])
	assert.Equal(t, map[int]int{3: 1, 4: 1}, freq["Livia"])
}

func TestLeaderboard(t *testing.T) {
	lb := ComputeLeaderboard(Window(sample(), now, 30), time.UTC)
	assert.Equal(t, UserCount{User: "Chase", Count: 3}, lb.MostShowers)
	assert.Equal(t, UserMinutes{User: "Livia", Minutes: 18}, lb.LongestAvg)
	assert.Equal(t, "Dad", lb.EarlyBird.User)
	assert.InDelta(t, 6.0, lb.EarlyBird.AvgHour, 0.001)
	assert.Equal(t, "Livia", lb.NightOwl.User)
	assert.InDelta(t, 20.5, lb.NightOwl.AvgHour, 0.001)
}

func TestLeaderboardTieGoesToRosterOrder(t *testing.T) {
	start := time.Date(2026, 2, 19, 7, 0, 0, 0, time.UTC)
	lb := ComputeLeaderboard([]model.LogEntry{
		entry("Mom", start, 600),
		entry("Chase", start, 600),
	}, time.UTC)
	assert.Equal(t, "Chase", lb.MostShowers.User)
	assert.Equal(t, "Chase", lb.LongestAvg.User)
}

func TestComputeEmpty(t *testing.T) {
	assert.Nil(t, Compute(nil, now, 30, time.UTC))

	old := []model.LogEntry{entry("Mom", now.AddDate(0, -3, 0), 300)}
	assert.Nil(t, Compute(old, now, 30, time.UTC))
}

func TestCompute(t *testing.T) {
	s := Compute(sample(), now, 0, time.UTC)
	require.NotNil(t, s)
	assert.Equal(t, DefaultDays, s.Days)
	assert.Equal(t, 6, s.TotalShowers)
	assert.Equal(t, "Chase", s.Leaderboard.MostShowers.User)
}

type fakeLog struct {
	entries []model.LogEntry
	since   time.Time
	err     error
}

func (f *fakeLog) Since(_ context.Context, since time.Time) ([]model.LogEntry, error) {
	f.since = since
	return f.entries, f.err
}

func TestServiceSummary(t *testing.T) {
	log := &fakeLog{entries: sample()}
	svc := NewService(log, time.UTC)
	svc.now = func() time.Time { return now }

	s, err := svc.Summary(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, now.AddDate(0, 0, -7), log.since)
	assert.Equal(t, 6, s.TotalShowers)

	log.err = errors.New("store down")
	_, err = svc.Summary(context.Background(), 7)
	assert.ErrorIs(t, err, log.err)
}
