// Package pipeline executes one trading pipeline run over a bus transport.
//
// # Overview
//
// A run is planned by the topology and executed by the Engine. The plan
// names a frozen component set, the six role endpoints, and the supervising
// controller; the engine turns it into stage goroutines wired through the
// transport:
//
//	sources ──► data ──► feed merge ──► feed ──┬──► transforms ──► merge ─┐
//	   ▲                                       │                         ▼
//	   │                                       └────────────────────► join
//	   │                                                                  │
//	 order ◄── client ◄─────────────────────── result ◄──────────────────┘
//
// Sources pump events onto the data subject. The feed stage merges them
// into one globally-ordered stream gated on the primary sources; the order
// feedback source is spliced in without gating so the loop cannot deadlock
// the merge. Transforms produce a verdict per feed event, the join stage
// assembles frames in feed order, and the client consumes them, feeding
// orders back around through the order subject.
//
// # Run discipline
//
// Every stage inbox is subscribed and flushed before anything is published,
// so no event outruns its consumer. Inboxes are bounded and overflow is a
// fault rather than a silent drop. Every stage heartbeats the controller
// while it lives and reports done when it finishes; panics are contained
// and tripped. The controller's single-fire fault is the only way a run
// dies early, whether the cause is a stage failure, a missed heartbeat
// deadline, or an external stop.
//
// A run ends one of three ways: the client finishes (nil error), the
// controller trips (*FaultError), or the caller's context ends (wrapped
// context error). The handle's Done channel closes only after all stages
// exited, subscriptions are removed, and the run-end announcement is out.
package pipeline
