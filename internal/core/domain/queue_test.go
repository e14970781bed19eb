package domain

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestQueueItemClone(t *testing.T) {
	started := time.Now()
	item := QueueItem{
		ID:        7,
		Priority:  PriorityHigh,
		Status:    StatusRunning,
		StartedAt: &started,
		Result:    &Result{Kind: KindOK, Payload: json.RawMessage(`{"a":1}`)},
	}
	clone := item.Clone()

	*clone.StartedAt = started.Add(time.Hour)
	clone.Result.Payload[2] = 'x'
	if !item.StartedAt.Equal(started) {
		t.Error("clone shares StartedAt")
	}
	if string(item.Result.Payload) != `{"a":1}` {
		t.Error("clone shares result payload")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:     false,
		StatusRunning:     false,
		StatusOK:          true,
		StatusFailed:      true,
		StatusCancelled:   true,
		StatusRateLimited: true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%v.Terminal() = %v, want %v", status, !want, want)
		}
	}
}

func TestSettingsClamp(t *testing.T) {
	s := Settings{SyncIntervalMinutes: 0, RateLimit: 99, QueueHistoryLimit: -1}
	s.Clamp()
	if s.SyncIntervalMinutes != 15 {
		t.Errorf("sync interval = %d, want default 15", s.SyncIntervalMinutes)
	}
	if s.RateLimit != 10 {
		t.Errorf("rate limit = %v, want clamped 10", s.RateLimit)
	}
	if s.QueueHistoryLimit != 5000 {
		t.Errorf("history limit = %d, want default 5000", s.QueueHistoryLimit)
	}
	if s.APIURL == "" {
		t.Error("api url not defaulted")
	}

	s = Settings{SyncIntervalMinutes: 90, RateLimit: -1}
	s.Clamp()
	if s.SyncIntervalMinutes != 60 || s.RateLimit != 0 {
		t.Errorf("clamp high/low: %+v", s)
	}
}

func TestSortRRsets(t *testing.T) {
	sets := []RRset{
		{Subname: "www", Type: "AAAA"},
		{Subname: "", Type: "MX"},
		{Subname: "www", Type: "A"},
		{Subname: "", Type: "A"},
	}
	SortRRsets(sets)
	want := []RRsetKey{{"", "A"}, {"", "MX"}, {"www", "A"}, {"www", "AAAA"}}
	for i, k := range want {
		if sets[i].Key() != k {
			t.Fatalf("position %d = %v, want %v", i, sets[i].Key(), k)
		}
	}
}
