package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Backend adapters return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states reported by the backend, not validation failures:
// - ErrNotFound: row or object does not exist
// - ErrConflict: row or object already exists (e.g. storage path taken)
// - ErrExpired: session token is no longer valid
// - ErrRejected: backend refused the request (bad credentials, quota, constraint)
// - ErrUnavailable: backend unreachable or answered with a transport-level failure
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrRejected    = errors.New("rejected")
	ErrUnavailable = errors.New("unavailable")
)
