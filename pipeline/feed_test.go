package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/event"
)

var feedBase = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func feedEvent(source string, offset int) envelope {
	ev := event.NewTrade(source, "AAPL", decimal.NewFromInt(100), 10, feedBase.Add(time.Duration(offset)*time.Second))
	return envelope{Kind: kindEvent, Source: source, Event: &ev}
}

func feedOrders(source string, offset int) envelope {
	ev := event.NewOrders(source, feedBase.Add(time.Duration(offset)*time.Second), []event.Order{
		event.NewOrder("AAPL", 5, feedBase.Add(time.Duration(offset)*time.Second)),
	})
	return envelope{Kind: kindEvent, Source: source, Event: &ev}
}

func feedDone(source string) envelope {
	return envelope{Kind: kindDone, Source: source}
}

// releaseAll pushes a sequence through the merge and collects the output.
func releaseAll(t *testing.T, m *feedMerge, envs ...envelope) []envelope {
	t.Helper()
	var out []envelope
	for _, env := range envs {
		got, err := m.push(env)
		if err != nil {
			t.Fatalf("push(%s from %q) failed: %v", env.Kind, env.Source, err)
		}
		out = append(out, got...)
	}
	return out
}

func timestamps(out []envelope) []int {
	var offsets []int
	for _, env := range out {
		if env.Kind != kindEvent {
			continue
		}
		offsets = append(offsets, int(env.Event.Timestamp.Sub(feedBase)/time.Second))
	}
	return offsets
}

func TestFeedMergeGatesOnPrimaries(t *testing.T) {
	m := newFeedMerge([]string{"a", "b"}, "")

	// Only source a has data: nothing may be released yet.
	out := releaseAll(t, m, feedEvent("a", 1), feedEvent("a", 2))
	if len(out) != 0 {
		t.Fatalf("released %d envelopes while source b is silent, want 0", len(out))
	}

	// Source b's first event unblocks the merge up to b's head.
	out = releaseAll(t, m, feedEvent("b", 3))
	got := timestamps(out)
	want := []int{1, 2}
	if len(got) != len(want) {
		t.Fatalf("released offsets %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("released offsets %v, want %v", got, want)
		}
	}
}

func TestFeedMergeGlobalOrder(t *testing.T) {
	m := newFeedMerge([]string{"a", "b"}, "")

	out := releaseAll(t, m,
		feedEvent("a", 1), feedEvent("a", 4), feedEvent("a", 5), feedDone("a"),
		feedEvent("b", 2), feedEvent("b", 3), feedDone("b"),
	)

	got := timestamps(out)
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("released offsets %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("release %d has offset %d, want %d", i, got[i], want[i])
		}
	}

	last := out[len(out)-1]
	if last.Kind != kindDone {
		t.Errorf("final envelope kind = %q, want %q", last.Kind, kindDone)
	}
	if !m.Completed() {
		t.Error("merge not completed after all sources done")
	}

	// Feed sequence numbers are consecutive from 1.
	seq := uint64(0)
	for _, env := range out {
		if env.Kind != kindEvent {
			continue
		}
		seq++
		if env.Seq != seq {
			t.Errorf("feed seq = %d, want %d", env.Seq, seq)
		}
	}
}

func TestFeedMergeTimestampTieBreaksBySource(t *testing.T) {
	m := newFeedMerge([]string{"b", "a"}, "")

	out := releaseAll(t, m,
		feedEvent("b", 1), feedDone("b"),
		feedEvent("a", 1), feedDone("a"),
	)

	var sources []string
	for _, env := range out {
		if env.Kind == kindEvent {
			sources = append(sources, env.Source)
		}
	}
	if len(sources) != 2 || sources[0] != "a" || sources[1] != "b" {
		t.Errorf("tie-broken release order = %v, want [a b]", sources)
	}
}

func TestFeedMergeFeedbackSplicesWithoutGating(t *testing.T) {
	m := newFeedMerge([]string{"a"}, "orders")

	// The feedback source is silent, yet the primary releases freely.
	out := releaseAll(t, m, feedEvent("a", 1), feedEvent("a", 3))
	if got := timestamps(out); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("released offsets %v, want [1 3]", got)
	}

	// A buffered feedback event splices ahead of the next primary
	// release once its timestamp no longer exceeds it.
	out = releaseAll(t, m, feedOrders("orders", 2), feedEvent("a", 4))
	got := timestamps(out)
	want := []int{2, 4}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("released offsets %v, want %v", got, want)
	}
}

func TestFeedMergeFlushesFeedbackAtEnd(t *testing.T) {
	m := newFeedMerge([]string{"a"}, "orders")

	out := releaseAll(t, m,
		feedEvent("a", 1),
		feedOrders("orders", 5),
		feedDone("a"),
	)

	got := timestamps(out)
	want := []int{1, 5}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("released offsets %v, want %v", got, want)
	}
	if out[len(out)-1].Kind != kindDone {
		t.Error("feedback flush did not end with the done marker")
	}
}

func TestFeedMergeProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		prep []envelope
		env  envelope
	}{
		{
			name: "unknown source",
			env:  feedEvent("ghost", 1),
		},
		{
			name: "event after done",
			prep: []envelope{feedDone("a")},
			env:  feedEvent("a", 1),
		},
		{
			name: "duplicate done",
			prep: []envelope{feedDone("a")},
			env:  feedDone("a"),
		},
		{
			name: "event envelope without event",
			env:  envelope{Kind: kindEvent, Source: "a"},
		},
		{
			name: "unexpected kind",
			env:  envelope{Kind: kindFrame, Source: "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFeedMerge([]string{"a", "b"}, "")
			for _, env := range tt.prep {
				if _, err := m.push(env); err != nil {
					t.Fatalf("prep push failed: %v", err)
				}
			}
			if _, err := m.push(tt.env); err == nil {
				t.Error("push succeeded, want protocol error")
			}
		})
	}
}
