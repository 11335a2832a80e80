package pipeline

import "github.com/c360/tradeline/event"

// envelope is the engine's framing for everything on the data, feed, merge,
// and result subjects. Kind discriminates the payload; Source carries the
// producing component for data-plane events and transform verdicts.
type envelope struct {
	Kind   string       `json:"kind"`
	Source string       `json:"source,omitempty"`
	Seq    uint64       `json:"seq,omitempty"`
	Event  *event.Event `json:"event,omitempty"`
	Frame  *event.Frame `json:"frame,omitempty"`
}

const (
	// kindEvent carries one event. On the data subject Seq is the
	// per-source sequence; on the feed subject it is the global feed
	// sequence the join keys frames by.
	kindEvent = "event"

	// kindDone is a completion marker: per source on the data subject,
	// per transform on the merge subject, unqualified on the feed and
	// result subjects.
	kindDone = "done"

	// kindDerived is a transform's output for one feed sequence.
	kindDerived = "derived"

	// kindSkip is a transform's explicit decline for one feed sequence,
	// so the join never waits on a verdict that is not coming.
	kindSkip = "skip"

	// kindFrame carries one assembled frame on the result subject.
	kindFrame = "frame"
)
