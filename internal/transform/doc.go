// Package transform defines the two-phase client used to request renditions.
// CheckSupported negotiates with a back-end synchronously and returns a
// Negotiation; Transform consumes it and hands the work to the async
// executor. Local, legacy and remote engines plug in as Backends, and
// SwitchingClient composes two clients with fallback on unsupported.
package transform
