package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/event"
)

func joinEvent(seq uint64, offset int) envelope {
	ev := event.NewTrade("src", "AAPL", decimal.NewFromInt(10), 1, feedBase.Add(time.Duration(offset)*time.Second))
	return envelope{Kind: kindEvent, Seq: seq, Event: &ev}
}

func joinDerived(transform string, seq uint64) envelope {
	ev := event.Event{
		ID:        "derived",
		Source:    transform,
		Type:      event.TypeDerived,
		Timestamp: feedBase,
	}
	return envelope{Kind: kindDerived, Source: transform, Seq: seq, Event: &ev}
}

func joinSkip(transform string, seq uint64) envelope {
	return envelope{Kind: kindSkip, Source: transform, Seq: seq}
}

func frames(out []envelope) []envelope {
	var fs []envelope
	for _, env := range out {
		if env.Kind == kindFrame {
			fs = append(fs, env)
		}
	}
	return fs
}

func TestFrameJoinWaitsForAllVerdicts(t *testing.T) {
	j := newFrameJoin([]string{"ma", "tx"})

	out, err := j.pushFeed(joinEvent(1, 1))
	if err != nil {
		t.Fatalf("pushFeed failed: %v", err)
	}
	if len(frames(out)) != 0 {
		t.Fatal("frame released before any verdict")
	}

	out, err = j.pushMerge(joinDerived("ma", 1))
	if err != nil {
		t.Fatalf("pushMerge failed: %v", err)
	}
	if len(frames(out)) != 0 {
		t.Fatal("frame released with one verdict missing")
	}

	out, err = j.pushMerge(joinSkip("tx", 1))
	if err != nil {
		t.Fatalf("pushMerge failed: %v", err)
	}
	fs := frames(out)
	if len(fs) != 1 {
		t.Fatalf("got %d frames after final verdict, want 1", len(fs))
	}

	frame := fs[0].Frame
	if _, ok := frame.Derive("ma"); !ok {
		t.Error("frame missing derived event from ma")
	}
	if _, ok := frame.Derive("tx"); ok {
		t.Error("frame carries derived event for a skipped transform")
	}
}

func TestFrameJoinVerdictBeforeEvent(t *testing.T) {
	j := newFrameJoin([]string{"ma"})

	// The transform's verdict can outrun the feed event on a second
	// subscription. The join must hold it until the event arrives.
	if _, err := j.pushMerge(joinDerived("ma", 1)); err != nil {
		t.Fatalf("early verdict rejected: %v", err)
	}

	out, err := j.pushFeed(joinEvent(1, 1))
	if err != nil {
		t.Fatalf("pushFeed failed: %v", err)
	}
	if len(frames(out)) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames(out)))
	}
}

func TestFrameJoinPreservesFeedOrder(t *testing.T) {
	j := newFrameJoin([]string{"ma"})

	var out []envelope
	push := func(got []envelope, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
		out = append(out, got...)
	}

	push(j.pushFeed(joinEvent(1, 1)))
	push(j.pushFeed(joinEvent(2, 2)))
	// Verdict for seq 2 lands first; the head frame must still release
	// first.
	push(j.pushMerge(joinSkip("ma", 2)))
	push(j.pushMerge(joinSkip("ma", 1)))

	fs := frames(out)
	if len(fs) != 2 {
		t.Fatalf("got %d frames, want 2", len(fs))
	}
	if fs[0].Seq != 1 || fs[1].Seq != 2 {
		t.Errorf("frame order = [%d %d], want [1 2]", fs[0].Seq, fs[1].Seq)
	}
}

func TestFrameJoinNoTransforms(t *testing.T) {
	j := newFrameJoin(nil)

	out, err := j.pushFeed(joinEvent(1, 1))
	if err != nil {
		t.Fatalf("pushFeed failed: %v", err)
	}
	if len(frames(out)) != 1 {
		t.Fatalf("got %d frames, want immediate release with no transforms", len(frames(out)))
	}

	out, err = j.pushFeed(envelope{Kind: kindDone})
	if err != nil {
		t.Fatalf("feed done failed: %v", err)
	}
	if len(out) != 1 || out[0].Kind != kindDone {
		t.Fatalf("feed done released %v, want the result done marker", out)
	}
}

func TestFrameJoinDoneAfterLastFrame(t *testing.T) {
	j := newFrameJoin([]string{"ma"})

	var out []envelope
	collect := func(got []envelope, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
		out = append(out, got...)
	}

	collect(j.pushFeed(joinEvent(1, 1)))
	collect(j.pushFeed(envelope{Kind: kindDone}))
	if len(out) != 0 {
		t.Fatalf("released %v before the pending frame's verdict", out)
	}

	// The last verdict releases the frame and then the done marker.
	collect(j.pushMerge(joinSkip("ma", 1)))
	if len(out) != 2 {
		t.Fatalf("released %d envelopes, want frame then done", len(out))
	}
	if out[0].Kind != kindFrame || out[1].Kind != kindDone {
		t.Errorf("release kinds = [%s %s], want [frame done]", out[0].Kind, out[1].Kind)
	}

	// The transform's own done marker after completion is bookkeeping,
	// not another release.
	collect(j.pushMerge(envelope{Kind: kindDone, Source: "ma"}))
	if len(out) != 2 {
		t.Errorf("transform done marker released extra envelopes: %v", out[2:])
	}
}

func TestFrameJoinProtocolViolations(t *testing.T) {
	tests := []struct {
		name  string
		merge bool
		prep  func(j *frameJoin)
		env   envelope
	}{
		{
			name:  "unknown transform",
			merge: true,
			env:   joinSkip("ghost", 1),
		},
		{
			name:  "duplicate verdict",
			merge: true,
			prep: func(j *frameJoin) {
				_, _ = j.pushMerge(joinSkip("ma", 1))
			},
			env: joinSkip("ma", 1),
		},
		{
			name:  "derived without event",
			merge: true,
			env:   envelope{Kind: kindDerived, Source: "ma", Seq: 1},
		},
		{
			name: "duplicate feed done",
			prep: func(j *frameJoin) {
				_, _ = j.pushFeed(envelope{Kind: kindDone})
			},
			env: envelope{Kind: kindDone},
		},
		{
			name: "feed event without payload",
			env:  envelope{Kind: kindEvent, Seq: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newFrameJoin([]string{"ma"})
			if tt.prep != nil {
				tt.prep(j)
			}
			var err error
			if tt.merge {
				_, err = j.pushMerge(tt.env)
			} else {
				_, err = j.pushFeed(tt.env)
			}
			if err == nil {
				t.Error("push succeeded, want protocol error")
			}
		})
	}
}
