package pipeline

import (
	"fmt"

	"github.com/c360/tradeline/event"
)

// pendingFrame is a feed event waiting for its transform verdicts.
type pendingFrame struct {
	seq uint64
	ev  event.Event
}

// frameJoin assembles frames: one per feed event, in feed order, each
// carrying the verdict of every transform for that event. A verdict is
// either a derived event or an explicit skip; frames release only when all
// verdicts are in, and verdicts may arrive before their feed event.
type frameJoin struct {
	transforms map[string]bool
	need       int

	pending  []pendingFrame
	verdicts map[uint64]map[string]*event.Event
	tdone    map[string]bool

	feedDone  bool
	completed bool
}

func newFrameJoin(transformIDs []string) *frameJoin {
	j := &frameJoin{
		transforms: make(map[string]bool, len(transformIDs)),
		need:       len(transformIDs),
		verdicts:   make(map[uint64]map[string]*event.Event),
		tdone:      make(map[string]bool, len(transformIDs)),
	}
	for _, id := range transformIDs {
		j.transforms[id] = true
	}
	return j
}

// pushFeed accepts one feed-subject envelope and returns the result-subject
// envelopes it releases.
func (j *frameJoin) pushFeed(env envelope) ([]envelope, error) {
	switch env.Kind {
	case kindEvent:
		if env.Event == nil {
			return nil, fmt.Errorf("feed envelope seq %d has no event", env.Seq)
		}
		j.pending = append(j.pending, pendingFrame{seq: env.Seq, ev: *env.Event})
	case kindDone:
		if j.feedDone {
			return nil, fmt.Errorf("duplicate feed done marker")
		}
		j.feedDone = true
	default:
		return nil, fmt.Errorf("unexpected envelope kind %q on feed subject", env.Kind)
	}
	return j.assemble(), nil
}

// pushMerge accepts one merge-subject envelope (a transform verdict or done
// marker) and returns the result-subject envelopes it releases.
func (j *frameJoin) pushMerge(env envelope) ([]envelope, error) {
	if !j.transforms[env.Source] {
		return nil, fmt.Errorf("verdict from unknown transform %q", env.Source)
	}

	switch env.Kind {
	case kindDerived, kindSkip:
		vs := j.verdicts[env.Seq]
		if vs == nil {
			vs = make(map[string]*event.Event, j.need)
			j.verdicts[env.Seq] = vs
		}
		if _, dup := vs[env.Source]; dup {
			return nil, fmt.Errorf("duplicate verdict from transform %q for seq %d", env.Source, env.Seq)
		}
		if env.Kind == kindDerived {
			if env.Event == nil {
				return nil, fmt.Errorf("derived envelope from %q seq %d has no event", env.Source, env.Seq)
			}
			vs[env.Source] = env.Event
		} else {
			vs[env.Source] = nil
		}
	case kindDone:
		if j.tdone[env.Source] {
			return nil, fmt.Errorf("duplicate done marker from transform %q", env.Source)
		}
		j.tdone[env.Source] = true
	default:
		return nil, fmt.Errorf("unexpected envelope kind %q on merge subject", env.Kind)
	}
	return j.assemble(), nil
}

// assemble releases every frame whose verdicts are complete, head first so
// result order is feed order, then the result-done marker once the feed is
// exhausted.
func (j *frameJoin) assemble() []envelope {
	var out []envelope
	for len(j.pending) > 0 {
		head := j.pending[0]
		vs := j.verdicts[head.seq]
		if len(vs) < j.need {
			break
		}

		frame := event.Frame{Event: head.ev}
		for id, ev := range vs {
			if ev == nil {
				continue
			}
			if frame.Derived == nil {
				frame.Derived = make(map[string]event.Event, len(vs))
			}
			frame.Derived[id] = *ev
		}
		f := frame
		out = append(out, envelope{Kind: kindFrame, Seq: head.seq, Frame: &f})

		delete(j.verdicts, head.seq)
		j.pending = j.pending[1:]
	}

	if j.feedDone && len(j.pending) == 0 && !j.completed {
		out = append(out, envelope{Kind: kindDone})
		j.completed = true
	}
	return out
}
