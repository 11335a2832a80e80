// Package monitor implements the supervisory controller for a pipeline run.
//
// # Overview
//
// A run's failure policy lives in exactly one place: the Controller. It owns
// two dedicated endpoints, a control endpoint carrying Commands and a beat
// endpoint carrying Beats. Pipeline stages report liveness through Reporters;
// external actors request shutdown through RequestStop. Whatever goes wrong,
// the controller converts it into a single Fault delivered once on the Fault
// channel, and the runtime cancels the run in response.
//
// # Watchdog
//
// The watchdog stays dormant until Arm. Once armed, a registered component
// that neither beats nor finishes for MissLimit consecutive intervals trips
// the controller. Components that publish a done beat are exempt, so a
// finished stage never counts as dead.
//
// Only the first fault wins. Later trips, whatever their source, are logged
// and dropped, which keeps shutdown idempotent when several stages fail at
// once.
package monitor
