// Package core defines the fundamental types and errors for Animus.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Lifecycle errors
	ErrTerminated        = errors.New("agent is terminated")
	ErrPaused            = errors.New("heartbeat is paused")
	ErrNotInitialized    = errors.New("agent is not initialized")
	ErrEpochInFlight     = errors.New("an epoch is already in flight")
	ErrNoActiveEpoch     = errors.New("no active epoch")
	ErrEpochMismatch     = errors.New("epoch id does not match the active epoch")
	ErrReasonRequired    = errors.New("a non-empty reason is required")
	ErrNotDue            = errors.New("heartbeat is not due")

	// Action economy errors
	ErrUnknownAction      = errors.New("unknown action")
	ErrActionNotAllowed   = errors.New("action is not on the allow-list")
	ErrInsufficientEnergy = errors.New("insufficient energy")
	ErrBoundaryRefused    = errors.New("boundary refused the action")
	ErrMissingParam       = errors.New("missing required parameter")

	// Transformation gate errors
	ErrNotDeliberate      = errors.New("belief does not require deliberate transformation")
	ErrAlreadyExploring   = errors.New("belief is already being explored")
	ErrNotExploring       = errors.New("belief is not being explored")
	ErrGateNotSatisfied   = errors.New("transformation criteria not satisfied")

	// Continuation errors
	ErrNoPendingCall    = errors.New("no pending external call")
	ErrCallOutstanding  = errors.New("an external call is awaiting resolution")
	ErrCallMismatch     = errors.New("call id does not match the pending call")
	ErrUnknownCallKind  = errors.New("unknown external call kind")
	ErrMalformedOutput  = errors.New("malformed external call output")

	// Storage errors
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrMigrationFailed = errors.New("migration failed")

	// Collaborator errors
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
	ErrRetrievalFailed = errors.New("memory retrieval failed")

	// Identity errors
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrIdentityExists      = errors.New("identity already exists")
	ErrKeyGenerationFailed = errors.New("key generation failed")
	ErrDecryptionFailed    = errors.New("decryption failed")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
