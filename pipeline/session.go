package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/endpoint"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
	"github.com/c360/tradeline/monitor"
)

// session is the engine's per-run state: one inbox per stage, the stage
// goroutines, and the conductor that tears everything down exactly once.
type session struct {
	engine  *Engine
	plan    Plan
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	handle  *Run
	logger  *slog.Logger
	metrics engineMetrics

	wg         sync.WaitGroup
	subs       []bus.Subscription
	clientDone chan struct{}

	feedIn      chan envelope
	joinFeed    chan envelope
	joinMerge   chan envelope
	clientIn    chan envelope
	transformIn map[string]chan envelope
}

func newSession(engine *Engine, parent context.Context, plan Plan) *session {
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		engine:      engine,
		plan:        plan,
		parent:      parent,
		ctx:         ctx,
		cancel:      cancel,
		logger:      engine.logger.With("run_id", plan.RunID),
		metrics:     engineMetrics{core: engine.metrics},
		clientDone:  make(chan struct{}),
		feedIn:      make(chan envelope, engine.inboxSize),
		joinFeed:    make(chan envelope, engine.inboxSize),
		joinMerge:   make(chan envelope, engine.inboxSize),
		clientIn:    make(chan envelope, engine.inboxSize),
		transformIn: make(map[string]chan envelope),
	}
	s.handle = NewRun(plan.RunID, func() {
		plan.Controller.Trip("control", "run stop requested")
	})
	return s
}

// trip routes every stage failure through the controller, the run's single
// cancellation authority.
func (s *session) trip(stage, reason string) {
	s.plan.Controller.Trip(stage, reason)
}

// subscribeAll attaches every engine inbox to its subject. Nothing may be
// published before this returns and the transport is flushed, so no event
// outruns its consumer.
func (s *session) subscribeAll() error {
	if err := s.subscribe(s.plan.Roles.Subject(endpoint.RoleData), "feed", s.feedIn); err != nil {
		return err
	}

	feedSubject := s.plan.Roles.Subject(endpoint.RoleFeed)
	if err := s.subscribe(feedSubject, "join", s.joinFeed); err != nil {
		return err
	}
	for _, tf := range s.plan.Components.Transforms() {
		ch := make(chan envelope, s.engine.inboxSize)
		s.transformIn[tf.ID()] = ch
		if err := s.subscribe(feedSubject, tf.ID(), ch); err != nil {
			return err
		}
	}

	if err := s.subscribe(s.plan.Roles.Subject(endpoint.RoleMerge), "join", s.joinMerge); err != nil {
		return err
	}
	if err := s.subscribe(s.plan.Roles.Subject(endpoint.RoleResult), "client", s.clientIn); err != nil {
		return err
	}

	if s.plan.OrderSourceID != "" {
		if err := s.subscribeOrders(); err != nil {
			return err
		}
	}
	return nil
}

// subscribe attaches one bounded inbox. The handler never blocks: a full
// inbox is a fault, not backpressure, so a slow stage can never silently
// stall or shed pipeline traffic.
func (s *session) subscribe(subject, stage string, ch chan envelope) error {
	sub, err := s.engine.transport.Subscribe(subject, func(_ string, data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.trip(stage, fmt.Sprintf("malformed envelope: %v", err))
			return
		}
		select {
		case ch <- env:
		default:
			s.metrics.recordOverflow(stage)
			s.trip(stage, "inbox overflow")
		}
	})
	if err != nil {
		return errors.Wrap(err, "session", "subscribe", fmt.Sprintf("subscribe %s failed", subject))
	}
	s.subs = append(s.subs, sub)
	return nil
}

// subscribeOrders wires the order feedback loop: batches published by the
// client land in the feedback source through its BatchReceiver capability.
func (s *session) subscribeOrders() error {
	var receiver component.BatchReceiver
	for _, src := range s.plan.Components.Sources() {
		if src.ID() == s.plan.OrderSourceID {
			receiver = src.(component.BatchReceiver)
			break
		}
	}

	id := s.plan.OrderSourceID
	sub, err := s.engine.transport.Subscribe(s.plan.Roles.Subject(endpoint.RoleOrder), func(_ string, data []byte) {
		var batch event.OrderBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			s.trip(id, fmt.Sprintf("malformed order batch: %v", err))
			return
		}
		if err := receiver.ReceiveBatch(batch); err != nil {
			s.trip(id, fmt.Sprintf("order batch rejected: %v", err))
		}
	})
	if err != nil {
		return errors.Wrap(err, "session", "subscribe", "subscribe order subject failed")
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *session) unsubscribeAll() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	s.subs = nil
}

// start launches the stage goroutines: consumers first, source pumps last,
// so the plumbing is draining before the first event is pumped.
func (s *session) start() {
	s.goStage("feed", s.feedStage)
	s.goStage("join", s.joinStage)
	for _, tf := range s.plan.Components.Transforms() {
		tf := tf
		s.goStage(tf.ID(), func() { s.transformStage(tf) })
	}
	client := s.plan.Components.Clients()[0]
	s.goStage(client.ID(), func() { s.clientStage(client) })
	for _, src := range s.plan.Components.Sources() {
		src := src
		s.goStage(src.ID(), func() { s.sourcePump(src) })
	}
}

// goStage runs one stage goroutine with panic containment. A panicking
// stage trips the controller instead of taking the process down.
func (s *session) goStage(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.trip(name, fmt.Sprintf("panic: %v", r))
			}
			s.wg.Done()
		}()
		fn()
	}()
}

// reporter starts the heartbeat loop for one stage. The stage marks it done
// on exit; until then the watchdog holds the stage to its deadline.
func (s *session) reporter(name string) *monitor.Reporter {
	rep := s.plan.Controller.Reporter(name, s.plan.RunID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rep.Run(s.ctx)
	}()
	return rep
}

// publish sends one envelope. A publish failure is a stage fault.
func (s *session) publish(subject string, env envelope, stage string) bool {
	data, err := event.Marshal(env)
	if err != nil {
		s.trip(stage, fmt.Sprintf("envelope encoding failed: %v", err))
		return false
	}
	if err := s.engine.transport.Publish(subject, data); err != nil {
		s.trip(stage, fmt.Sprintf("publish failed: %v", err))
		return false
	}
	return true
}

func (s *session) announce(op, status, reason string) {
	ann := Announcement{Op: op, RunID: s.plan.RunID, Status: status, Reason: reason}
	data, err := event.Marshal(ann)
	if err != nil {
		s.logger.Warn("announcement encoding failed", "op", op, "error", err)
		return
	}
	if err := s.engine.transport.Publish(s.plan.Roles.Subject(endpoint.RoleSync), data); err != nil {
		s.logger.Warn("announcement publish failed", "op", op, "error", err)
	}
}

// sourcePump drives one source: it stamps sequence numbers, enforces
// non-decreasing timestamps, and publishes to the data subject, then a done
// marker however the stream ends, so the feed merge never waits on a dead
// source while its fault is in flight.
func (s *session) sourcePump(src component.Source) {
	id := src.ID()
	rep := s.reporter(id)
	defer rep.MarkDone()
	defer s.publish(s.plan.Roles.Subject(endpoint.RoleData), envelope{Kind: kindDone, Source: id}, id)

	var (
		seq    uint64
		lastTS time.Time
	)
	dataSubject := s.plan.Roles.Subject(endpoint.RoleData)

	emit := func(ev event.Event) error {
		if err := s.ctx.Err(); err != nil {
			return errors.WrapTransient(err, id, "emit", "run is over")
		}
		if err := ev.Validate(); err != nil {
			s.trip(id, fmt.Sprintf("invalid event: %v", err))
			return err
		}
		if ev.Timestamp.Before(lastTS) {
			err := fmt.Errorf("timestamp %s regresses behind %s", ev.Timestamp.Format(time.RFC3339Nano), lastTS.Format(time.RFC3339Nano))
			s.trip(id, err.Error())
			return errors.WrapInvalid(err, id, "emit", "timestamp order violated")
		}
		lastTS = ev.Timestamp
		if ev.Source == "" {
			ev.Source = id
		}

		seq++
		if !s.publish(dataSubject, envelope{Kind: kindEvent, Source: id, Seq: seq, Event: &ev}, id) {
			return errors.WrapTransient(errors.New("publish failed"), id, "emit", "event delivery failed")
		}
		s.metrics.recordEvent(id, ev.Type)
		return nil
	}

	if err := src.Stream(s.ctx, emit); err != nil && s.ctx.Err() == nil {
		s.trip(id, fmt.Sprintf("stream failed: %v", err))
	}
}

// feedStage runs the k-way merge between the data and feed subjects. After
// the feed closes, late feedback traffic is dropped with a debug line; late
// primary traffic is a protocol violation.
func (s *session) feedStage() {
	rep := s.reporter("feed")
	defer rep.MarkDone()

	var primaries []string
	for _, src := range s.plan.Components.Sources() {
		if src.ID() != s.plan.OrderSourceID {
			primaries = append(primaries, src.ID())
		}
	}
	merge := newFeedMerge(primaries, s.plan.OrderSourceID)
	feedSubject := s.plan.Roles.Subject(endpoint.RoleFeed)

	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.feedIn:
			if merge.Completed() {
				switch {
				case env.Kind == kindDone:
					// The feedback source's own done marker.
				case merge.FromFeedback(env):
					s.logger.Debug("late order event dropped", "source", env.Source, "seq", env.Seq)
				default:
					s.trip("feed", fmt.Sprintf("event from source %q after feed completion", env.Source))
					return
				}
				continue
			}

			out, err := merge.push(env)
			if err != nil {
				s.trip("feed", err.Error())
				return
			}
			for _, o := range out {
				if !s.publish(feedSubject, o, "feed") {
					return
				}
			}
		}
	}
}

// transformStage pumps one transform: every feed event yields a derived
// event or an explicit skip on the merge subject, then a done marker when
// the feed closes.
func (s *session) transformStage(tf component.Transform) {
	id := tf.ID()
	rep := s.reporter(id)
	defer rep.MarkDone()

	inbox := s.transformIn[id]
	mergeSubject := s.plan.Roles.Subject(endpoint.RoleMerge)

	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-inbox:
			switch env.Kind {
			case kindDone:
				s.publish(mergeSubject, envelope{Kind: kindDone, Source: id}, id)
				return
			case kindEvent:
				if env.Event == nil {
					s.trip(id, fmt.Sprintf("feed envelope seq %d has no event", env.Seq))
					return
				}
				start := time.Now()
				derived, ok, err := tf.Apply(*env.Event)
				s.metrics.recordDuration(id, time.Since(start))
				if err != nil {
					s.trip(id, fmt.Sprintf("apply failed: %v", err))
					return
				}

				out := envelope{Kind: kindSkip, Source: id, Seq: env.Seq}
				if ok {
					out = envelope{Kind: kindDerived, Source: id, Seq: env.Seq, Event: &derived}
					s.metrics.recordEvent(id, derived.Type)
				}
				if !s.publish(mergeSubject, out, id) {
					return
				}
			default:
				s.trip(id, fmt.Sprintf("unexpected envelope kind %q on feed subject", env.Kind))
				return
			}
		}
	}
}

// joinStage assembles frames from the feed stream and the transform
// verdicts and publishes them to the result subject in feed order. It keeps
// draining after the result closes so straggling transform done markers do
// not overflow its inbox.
func (s *session) joinStage() {
	rep := s.reporter("join")
	defer rep.MarkDone()

	var transformIDs []string
	for _, tf := range s.plan.Components.Transforms() {
		transformIDs = append(transformIDs, tf.ID())
	}
	join := newFrameJoin(transformIDs)
	resultSubject := s.plan.Roles.Subject(endpoint.RoleResult)

	flush := func(out []envelope, err error) bool {
		if err != nil {
			s.trip("join", err.Error())
			return false
		}
		for _, o := range out {
			if !s.publish(resultSubject, o, "join") {
				return false
			}
			if o.Kind == kindFrame {
				s.metrics.recordFrame(s.plan.RunID)
			}
		}
		return true
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.joinFeed:
			if !flush(join.pushFeed(env)) {
				return
			}
		case env := <-s.joinMerge:
			if !flush(join.pushMerge(env)) {
				return
			}
		}
	}
}

// clientStage feeds assembled frames to the client and finishes it when the
// result stream closes. Client completion is the run's success signal.
func (s *session) clientStage(client component.Client) {
	id := client.ID()
	rep := s.reporter(id)
	defer rep.MarkDone()

	failed := false
	for {
		select {
		case <-s.ctx.Done():
			return
		case env := <-s.clientIn:
			switch env.Kind {
			case kindFrame:
				if failed {
					continue
				}
				if env.Frame == nil {
					s.trip(id, fmt.Sprintf("result envelope seq %d has no frame", env.Seq))
					failed = true
					continue
				}
				start := time.Now()
				err := client.HandleFrame(*env.Frame)
				s.metrics.recordDuration("client", time.Since(start))
				if err != nil {
					s.trip(id, fmt.Sprintf("frame handling failed: %v", err))
					failed = true
				}
			case kindDone:
				if failed {
					return
				}
				if err := client.Finish(); err != nil {
					s.trip(id, fmt.Sprintf("finish failed: %v", err))
					return
				}
				close(s.clientDone)
				return
			default:
				s.trip(id, fmt.Sprintf("unexpected envelope kind %q on result subject", env.Kind))
				failed = true
			}
		}
	}
}

// conduct waits for the run's outcome, then tears the session down: cancel
// the stages, wait them out, drop the subscriptions, and announce the end.
// The handle completes only after all of it.
func (s *session) conduct() {
	var runErr error
	status, reason := StatusCompleted, ""

	select {
	case f := <-s.plan.Controller.Fault():
		runErr = &FaultError{Component: f.Component, Reason: f.Reason}
		status, reason = StatusFaulted, f.Reason
	case <-s.clientDone:
	case <-s.parent.Done():
		runErr = errors.Wrap(s.parent.Err(), "engine", "run", "context ended")
		status, reason = StatusCanceled, s.parent.Err().Error()
	}

	s.cancel()
	s.wg.Wait()
	s.unsubscribeAll()

	s.announce(OpRunEnd, status, reason)
	if err := s.engine.transport.Flush(); err != nil {
		s.logger.Debug("final flush failed", "error", err)
	}

	s.logger.Info("run finished", "status", status, "reason", reason)
	s.handle.complete(runErr)
}
