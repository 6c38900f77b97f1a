package domain

import "errors"

var (
	// ErrNotFound is returned when an entity is not found in the database.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateActive is returned when the content already has an active publication for the platform.
	ErrDuplicateActive = errors.New("content already published or queued for platform")
	// ErrIdempotencyConflict is returned when an idempotency key is already taken.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	// ErrNotPending is returned when evaluating a draft that was already evaluated.
	ErrNotPending = errors.New("draft is not pending evaluation")

	ErrDraftPending  = errors.New("draft is pending evaluation")
	ErrDraftRejected = errors.New("draft was rejected")
)
