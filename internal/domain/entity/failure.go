package entity

// FailureKind categorises a raw backend failure.
type FailureKind string

const (
	FailureRateLimited        FailureKind = "rate_limited"
	FailureTimeout            FailureKind = "timeout"
	FailurePayloadTooLarge    FailureKind = "payload_too_large"
	FailureBackendUnavailable FailureKind = "backend_unavailable"
	FailureUnrecognized       FailureKind = "unrecognized"
)

var FailureKinds = []FailureKind{
	FailureRateLimited,
	FailureTimeout,
	FailurePayloadTooLarge,
	FailureBackendUnavailable,
	FailureUnrecognized,
}
