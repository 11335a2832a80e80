package pipeline

import (
	"fmt"
	"sort"

	"github.com/c360/tradeline/event"
)

// sourceQueue buffers one source's pending events in arrival order. Arrival
// order is timestamp order because the pumps enforce non-decreasing
// timestamps per source.
type sourceQueue struct {
	events []event.Event
	done   bool
}

// feedMerge is the k-way merge behind the feed stage. Primary sources gate
// releases: an event leaves only when every unfinished primary has a
// buffered head, so the output is globally non-decreasing across primaries.
// The feedback source never gates. Its events are spliced in as soon as
// their timestamp no longer exceeds the next primary release, and whatever
// remains is flushed when the primaries finish.
type feedMerge struct {
	order      []string
	primaries  map[string]*sourceQueue
	feedback   *sourceQueue
	feedbackID string

	seq       uint64
	completed bool
}

func newFeedMerge(primaryIDs []string, feedbackID string) *feedMerge {
	order := make([]string, len(primaryIDs))
	copy(order, primaryIDs)
	sort.Strings(order)

	m := &feedMerge{
		order:      order,
		primaries:  make(map[string]*sourceQueue, len(order)),
		feedbackID: feedbackID,
	}
	for _, id := range order {
		m.primaries[id] = &sourceQueue{}
	}
	if feedbackID != "" {
		m.feedback = &sourceQueue{}
	}
	return m
}

// Completed reports whether the feed-done marker has been emitted. After
// completion only late feedback traffic is legal, and the caller drops it.
func (m *feedMerge) Completed() bool {
	return m.completed
}

// FromFeedback reports whether an envelope originates from the feedback
// source.
func (m *feedMerge) FromFeedback(env envelope) bool {
	return m.feedbackID != "" && env.Source == m.feedbackID
}

// push accepts one data-subject envelope and returns the feed-subject
// envelopes it releases, in order. Errors are protocol violations.
func (m *feedMerge) push(env envelope) ([]envelope, error) {
	q, err := m.queue(env.Source)
	if err != nil {
		return nil, err
	}

	switch env.Kind {
	case kindDone:
		if q.done {
			return nil, fmt.Errorf("duplicate done marker from source %q", env.Source)
		}
		q.done = true
	case kindEvent:
		if env.Event == nil {
			return nil, fmt.Errorf("event envelope from source %q has no event", env.Source)
		}
		if q.done {
			return nil, fmt.Errorf("event from source %q after its done marker", env.Source)
		}
		q.events = append(q.events, *env.Event)
	default:
		return nil, fmt.Errorf("unexpected envelope kind %q on data subject", env.Kind)
	}

	return m.release(), nil
}

// release drains everything currently releasable.
func (m *feedMerge) release() []envelope {
	var out []envelope
	for !m.completed {
		chosen, gated := m.pick()
		if gated {
			return out
		}
		if chosen == "" {
			// Primaries exhausted: flush the feedback tail and close
			// the feed.
			if m.feedback != nil {
				for len(m.feedback.events) > 0 {
					out = append(out, m.emit(m.feedbackID, m.popFeedback()))
				}
			}
			out = append(out, envelope{Kind: kindDone})
			m.completed = true
			return out
		}

		head := m.primaries[chosen].events[0]
		if m.feedback != nil {
			for len(m.feedback.events) > 0 && !m.feedback.events[0].Timestamp.After(head.Timestamp) {
				out = append(out, m.emit(m.feedbackID, m.popFeedback()))
			}
		}
		m.primaries[chosen].events = m.primaries[chosen].events[1:]
		out = append(out, m.emit(chosen, head))
	}
	return out
}

// pick selects the primary with the earliest head. gated means some
// unfinished primary has nothing buffered yet, so no release is safe. An
// empty id with gated false means every primary is done and drained.
// Timestamp ties break by source id, which keeps the merge deterministic.
func (m *feedMerge) pick() (id string, gated bool) {
	for _, candidate := range m.order {
		q := m.primaries[candidate]
		if len(q.events) == 0 {
			if !q.done {
				return "", true
			}
			continue
		}
		if id == "" || q.events[0].Timestamp.Before(m.primaries[id].events[0].Timestamp) {
			id = candidate
		}
	}
	return id, false
}

func (m *feedMerge) popFeedback() event.Event {
	ev := m.feedback.events[0]
	m.feedback.events = m.feedback.events[1:]
	return ev
}

func (m *feedMerge) emit(source string, ev event.Event) envelope {
	m.seq++
	e := ev
	return envelope{Kind: kindEvent, Source: source, Seq: m.seq, Event: &e}
}

func (m *feedMerge) queue(source string) (*sourceQueue, error) {
	if q, ok := m.primaries[source]; ok {
		return q, nil
	}
	if m.feedback != nil && source == m.feedbackID {
		return m.feedback, nil
	}
	return nil, fmt.Errorf("envelope from unknown source %q", source)
}
