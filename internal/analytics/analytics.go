// Package analytics aggregates the shower log into the stats shown on the
// dashboard. All functions are pure; callers choose the window.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dukerupert/waterhq/internal/household"
	"github.com/dukerupert/waterhq/internal/model"
)

const DefaultDays = 30

type UserCount struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

type UserMinutes struct {
	User    string `json:"user"`
	Minutes int    `json:"minutes"`
}

type UserHour struct {
	User    string  `json:"user"`
	AvgHour float64 `json:"avgHour"`
}

type Leaderboard struct {
	MostShowers UserCount   `json:"mostShowers"`
	LongestAvg  UserMinutes `json:"longestAvg"`
	EarlyBird   UserHour    `json:"earlyBird"`
	NightOwl    UserHour    `json:"nightOwl"`
}

// Summary is everything the analytics panel renders. Hour and weekday keys
// are 0-23 and 0 (Sunday) to 6.
type Summary struct {
	Days               int                    `json:"days"`
	TotalShowers       int                    `json:"totalShowers"`
	PeakHours          map[string]map[int]int `json:"peakHours"`
	AvgDuration        map[string]int         `json:"avgDuration"`
	DayOfWeekFrequency map[string]map[int]int `json:"dayOfWeekFrequency"`
	Leaderboard        Leaderboard            `json:"leaderboard"`
}

// Window keeps entries that started within the last days days of now.
func Window(entries []model.LogEntry, now time.Time, days int) []model.LogEntry {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]model.LogEntry, 0, len(entries))
	for _, e := range entries {
		if !e.StartedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// PeakHours counts showers per user per local start hour.
func PeakHours(entries []model.LogEntry, loc *time.Location) map[string]map[int]int {
	out := map[string]map[int]int{}
	for _, e := range entries {
		if out[e.User] == nil {
			out[e.User] = map[int]int{}
		}
		out[e.User][e.StartedAt.In(loc).Hour()]++
	}
	return out
}

// AvgDuration is each user's mean shower length in whole minutes, rounded.
func AvgDuration(entries []model.LogEntry) map[string]int {
	total := map[string]int64{}
	count := map[string]int64{}
	for _, e := range entries {
		total[e.User] += e.DurationSeconds
		count[e.User]++
	}
	out := make(map[string]int, len(total))
	for user, secs := range total {
		out[user] = int(math.Round(float64(secs) / float64(count[user]) / 60))
	}
	return out
}

// DayOfWeekFrequency counts showers per user per local weekday.
func DayOfWeekFrequency(entries []model.LogEntry, loc *time.Location) map[string]map[int]int {
	out := map[string]map[int]int{}
	for _, e := range entries {
		if out[e.User] == nil {
			out[e.User] = map[int]int{}
		}
		out[e.User][int(e.StartedAt.In(loc).Weekday())]++
	}
	return out
}

// ComputeLeaderboard picks the leader of each category. Ties go to the user
// who comes first in the household roster.
func ComputeLeaderboard(entries []model.LogEntry, loc *time.Location) Leaderboard {
	counts := map[string]int{}
	hourSum := map[string]float64{}
	for _, e := range entries {
		counts[e.User]++
		t := e.StartedAt.In(loc)
		hourSum[e.User] += float64(t.Hour()) + float64(t.Minute())/60
	}
	users := orderedUsers(counts)
	avg := AvgDuration(entries)

	var lb Leaderboard
	for i, u := range users {
		meanHour := hourSum[u] / float64(counts[u])
		if i == 0 || counts[u] > lb.MostShowers.Count {
			lb.MostShowers = UserCount{User: u, Count: counts[u]}
		}
		if i == 0 || avg[u] > lb.LongestAvg.Minutes {
			lb.LongestAvg = UserMinutes{User: u, Minutes: avg[u]}
		}
		if i == 0 || meanHour < lb.EarlyBird.AvgHour {
			lb.EarlyBird = UserHour{User: u, AvgHour: meanHour}
		}
		if i == 0 || meanHour > lb.NightOwl.AvgHour {
			lb.NightOwl = UserHour{User: u, AvgHour: meanHour}
		}
	}
	return lb
}

// Compute builds the summary for the last days days. It returns nil when no
// shower falls inside the window.
func Compute(entries []model.LogEntry, now time.Time, days int, loc *time.Location) *Summary {
	if days <= 0 {
		days = DefaultDays
	}
	in := Window(entries, now, days)
	if len(in) == 0 {
		return nil
	}
	return &Summary{
		Days:               days,
		TotalShowers:       len(in),
		PeakHours:          PeakHours(in, loc),
		AvgDuration:        AvgDuration(in),
		DayOfWeekFrequency: DayOfWeekFrequency(in, loc),
		Leaderboard:        ComputeLeaderboard(in, loc),
	}
}

// LogSource is the slice of the log store analytics reads.
type LogSource interface {
	Since(ctx context.Context, since time.Time) ([]model.LogEntry, error)
}

type Service struct {
	log LogSource
	loc *time.Location
	now func() time.Time
}

func NewService(log LogSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{log: log, loc: loc, now: time.Now}
}

// Summary loads the window from the store and aggregates it.
func (s *Service) Summary(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = DefaultDays
	}
	now := s.now()
	entries, err := s.log.Since(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("load shower log: %w", err)
	}
	return Compute(entries, now, days, s.loc), nil
}

// orderedUsers lists users with data, roster members first in roster order,
// then anyone else alphabetically.
func orderedUsers(counts map[string]int) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range household.Users {
		if counts[u] > 0 {
			out = append(out, u)
			seen[u] = true
		}
	}
	var rest []string
	for u := range counts {
		if !seen[u] {
			rest = append(rest, u)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
