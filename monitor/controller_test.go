package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/endpoint"
)

func testEndpoints(t *testing.T) (endpoint.Endpoint, endpoint.Endpoint) {
	t.Helper()
	pool, err := endpoint.NewPool(8, endpoint.WithPrefix("test"))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	eps, err := pool.Lease(2)
	if err != nil {
		t.Fatalf("Lease(2) failed: %v", err)
	}
	return eps[0], eps[1]
}

func newTestController(t *testing.T, opts ...Option) (*Controller, bus.Transport) {
	t.Helper()
	transport := bus.NewInProc()
	t.Cleanup(func() { transport.Close() })

	control, beat := testEndpoints(t)
	base := []Option{
		WithInterval(10 * time.Millisecond),
		WithMissLimit(3),
	}
	ctrl, err := NewController(control, beat, transport, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return ctrl, transport
}

func waitFault(t *testing.T, ctrl *Controller, timeout time.Duration) Fault {
	t.Helper()
	select {
	case f := <-ctrl.Fault():
		return f
	case <-time.After(timeout):
		t.Fatalf("no fault within %s", timeout)
		return Fault{}
	}
}

func assertNoFault(t *testing.T, ctrl *Controller, window time.Duration) {
	t.Helper()
	select {
	case f := <-ctrl.Fault():
		t.Fatalf("unexpected fault: %+v", f)
	case <-time.After(window):
	}
}

func TestControllerTripsOnSilence(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.RegisterComponents("feed", "client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	ctrl.Arm()

	fault := waitFault(t, ctrl, time.Second)
	if fault.Component != "feed" && fault.Component != "client" {
		t.Errorf("fault component = %q, want a registered component", fault.Component)
	}
	if fault.Reason == "" {
		t.Error("fault reason is empty")
	}
}

func TestControllerDormantUntilArmed(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.RegisterComponents("feed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	// Well past the deadline, but never armed.
	assertNoFault(t, ctrl, 100*time.Millisecond)
}

func TestControllerBeatsHoldOffTrip(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.RegisterComponents("feed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	reporterCtx, stopReporter := context.WithCancel(context.Background())
	rep := ctrl.Reporter("feed", "run-1")
	go rep.Run(reporterCtx)

	ctrl.Arm()

	// Several deadlines pass while the reporter beats.
	assertNoFault(t, ctrl, 150*time.Millisecond)

	// Silence the reporter; now the watchdog must fire.
	stopReporter()
	fault := waitFault(t, ctrl, time.Second)
	if fault.Component != "feed" {
		t.Errorf("fault component = %q, want %q", fault.Component, "feed")
	}
}

func TestControllerDoneComponentExempt(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.RegisterComponents("feed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	rep := ctrl.Reporter("feed", "run-1")
	go rep.Run(context.Background())
	ctrl.Arm()

	rep.MarkDone()
	rep.MarkDone() // idempotent

	assertNoFault(t, ctrl, 150*time.Millisecond)
}

func TestControllerSingleFire(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctrl.Trip("feed", "first")
	ctrl.Trip("client", "second")

	fault := waitFault(t, ctrl, time.Second)
	if fault.Component != "feed" || fault.Reason != "first" {
		t.Errorf("fault = %+v, want the first trip", fault)
	}

	select {
	case f := <-ctrl.Fault():
		t.Fatalf("second fault delivered: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}

	got, tripped := ctrl.Tripped()
	if !tripped {
		t.Fatal("Tripped() = false after Trip")
	}
	if got.Component != "feed" {
		t.Errorf("Tripped component = %q, want %q", got.Component, "feed")
	}
}

func TestControllerExternalStop(t *testing.T) {
	ctrl, transport := newTestController(t)
	ctrl.RegisterComponents("feed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	if err := ctrl.RequestStop("operator shutdown"); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if err := transport.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	fault := waitFault(t, ctrl, time.Second)
	if fault.Component != "control" {
		t.Errorf("fault component = %q, want %q", fault.Component, "control")
	}
	if fault.Reason != "operator shutdown" {
		t.Errorf("fault reason = %q, want %q", fault.Reason, "operator shutdown")
	}
}

func TestControllerStartTwice(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	if err := ctrl.Start(ctx); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}

func TestControllerStopBeforeStart(t *testing.T) {
	ctrl, _ := newTestController(t)
	if err := ctrl.Stop(time.Second); err != nil {
		t.Fatalf("Stop on unstarted controller failed: %v", err)
	}
}

func TestControllerLateRegistrationGetsDeadline(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ctrl.Stop(time.Second)

	ctrl.RegisterComponents("feed")
	ctrl.Arm()

	// Armed with a fresh deadline, then silence: the trip must still
	// arrive, proving registration before Arm is fully supervised.
	fault := waitFault(t, ctrl, time.Second)
	if fault.Component != "feed" {
		t.Errorf("fault component = %q, want %q", fault.Component, "feed")
	}
}
