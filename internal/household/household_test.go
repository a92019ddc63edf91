package household

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoster(t *testing.T) {
	assert.Len(t, Users, 5)
	for _, u := range Users {
		assert.True(t, IsMember(u), "expected %q on roster", u)
		assert.NotEqual(t, "bg-white", Color(u), "expected a color for %q", u)
	}
	assert.False(t, IsMember("Stranger"))
	assert.Equal(t, "bg-white", Color("Unknown"))
	assert.Equal(t, "bg-bubblegum", Color("Dad"))
}

func TestThresholds(t *testing.T) {
	assert.Equal(t, 45*time.Minute, AutoRelease)
	assert.Equal(t, 5*time.Second, MinShower)
	assert.Equal(t, 90*time.Second, SlotAlertWindow)
	assert.True(t, ValidDuration(30))
	assert.False(t, ValidDuration(25))
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int64]string{0: "00:00", 45: "00:45", 125: "02:05", 3661: "61:01"}
	for in, want := range tests {
		assert.Equal(t, want, FormatElapsed(in))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int64]string{30: "30s", 300: "5m", 125: "2m 5s", 0: "0s"}
	for in, want := range tests {
		assert.Equal(t, want, FormatDuration(in))
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "just now", TimeAgo(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", TimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h ago", TimeAgo(now.Add(-2*time.Hour), now))
}
