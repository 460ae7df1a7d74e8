// Package apperr defines the error taxonomy of spec §7 as typed errors, so
// HTTP handlers can map a kind to a status code with errors.As instead of
// string-sniffing. Grounded in the teacher's sentinel-error style in
// pkg/whatsapp/client.go (ErrInvalidAPIKey, ErrRateLimitExceeded, ...),
// generalized into one taxonomy shared by every component.
package apperr

import "fmt"

// Validation indicates the caller's input failed schema validation (400).
type Validation struct{ Msg string }

func (e Validation) Error() string { return e.Msg }

// NotFound indicates an entity id is unknown (404).
type NotFound struct {
	Entity string
	ID     string
}

func (e NotFound) Error() string { return fmt.Sprintf("%s %q not found", e.Entity, e.ID) }

// RateLimited indicates human-behavior or provider throttling (429 for
// HTTP, retried for sends per spec §4.3).
type RateLimited struct{ Reason string }

func (e RateLimited) Error() string { return fmt.Sprintf("rate limited: %s", e.Reason) }

// TransientClient indicates a recoverable client-side failure, retried per
// spec §4.3 (detached frame, context destroyed, timeout, not-ready).
type TransientClient struct{ Cause error }

func (e TransientClient) Error() string { return fmt.Sprintf("transient client error: %v", e.Cause) }
func (e TransientClient) Unwrap() error { return e.Cause }

// TerminalClient indicates an unrecoverable client-side failure (invalid
// chat id, permanent media failure, auth failure).
type TerminalClient struct{ Cause error }

func (e TerminalClient) Error() string { return fmt.Sprintf("terminal client error: %v", e.Cause) }
func (e TerminalClient) Unwrap() error { return e.Cause }

// Store indicates a persistence-layer failure (connectivity, constraint
// violation, timeout). Callers that want idempotent-success-on-duplicate
// semantics (spec §7.6) check for a unique-violation cause themselves.
type Store struct{ Cause error }

func (e Store) Error() string { return fmt.Sprintf("store error: %v", e.Cause) }
func (e Store) Unwrap() error { return e.Cause }

// Shutdown indicates in-flight work was cancelled by graceful shutdown.
type Shutdown struct{ Reason string }

func (e Shutdown) Error() string { return fmt.Sprintf("shutdown: %s", e.Reason) }
