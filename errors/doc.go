// Package errors provides standardized error handling patterns for tradeline components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or caller misuse,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// The classification integrates with Go's standard error handling patterns,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // Retryable
//	errors.WrapInvalid(err, "Component", "Method", "action")    // Caller misuse
//	errors.WrapFatal(err, "Component", "Method", "action")      // Unrecoverable
//
// The generic Wrap() adds context without changing classification.
//
// # Standard Error Variables
//
// Pre-defined error variables cover the orchestration error taxonomy:
//
//   - Endpoint allocation: ErrPoolExhausted, ErrInvalidLease, ErrNotLeased
//   - Topology lifecycle: ErrAlreadyStarted, ErrNotStarted
//   - Registration: ErrDuplicateComponent, ErrInvalidComponent
//   - Transport: ErrTransportClosed, ErrNotConnected
//
// Allocation failures (ErrPoolExhausted) and reclamation misuse
// (ErrNotLeased) classify as fatal; lifecycle and registration errors
// classify as invalid and are surfaced synchronously to the caller,
// never retried.
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrPoolExhausted) {
//	    // construction is fatal, do not retry
//	}
//
// The package re-exports New, Errorf, Is, As and Join so call sites need a
// single errors import.
package errors
