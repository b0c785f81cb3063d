package services

import "fmt"

// ClaimErrorKind is the closed failure taxonomy of the claim pipeline.
type ClaimErrorKind string

const (
	ErrKindUnauthenticated     ClaimErrorKind = "unauthenticated"
	ErrKindNotFound            ClaimErrorKind = "not_found"
	ErrKindExpired             ClaimErrorKind = "expired"
	ErrKindDisabled            ClaimErrorKind = "disabled"
	ErrKindQuotaExceeded       ClaimErrorKind = "quota_exceeded"
	ErrKindInvalidProof        ClaimErrorKind = "invalid_proof"
	ErrKindAlreadyClaimed      ClaimErrorKind = "already_claimed"
	ErrKindSelfReference       ClaimErrorKind = "self_reference"
	ErrKindUpstreamUnavailable ClaimErrorKind = "upstream_unavailable"
	ErrKindStoreFailure        ClaimErrorKind = "store_failure"
)

// QuotaScope narrows a QuotaExceeded failure to the cap that tripped.
type QuotaScope string

const (
	QuotaScopeGlobal        QuotaScope = "global"
	QuotaScopePerUser       QuotaScope = "per_user"
	QuotaScopeScanAllotment QuotaScope = "scan_allotment"
)

// proofRejectedMessage is deliberately the same for every proof-failure
// cause (wrong OTP, wrong flag, malformed input) so the endpoint can't
// be used as an oracle to probe which part was wrong.
const proofRejectedMessage = "That didn't check out. Double-check your code and try again."

// ClaimError is the pipeline's failure value. Message is safe to show
// to the caller; cause, when set, is the internal error for logs.
type ClaimError struct {
	Kind    ClaimErrorKind
	Scope   QuotaScope // set for quota failures
	Limit   int        // the limit that tripped, for quota failures
	Message string
	cause   error
}

func (e *ClaimError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClaimError) Unwrap() error { return e.cause }

func errUnauthenticated() *ClaimError {
	return &ClaimError{Kind: ErrKindUnauthenticated, Message: "You need to be signed in for that."}
}

func errNotFound(what string) *ClaimError {
	return &ClaimError{Kind: ErrKindNotFound, Message: fmt.Sprintf("Unknown %s.", what)}
}

func errExpired() *ClaimError {
	return &ClaimError{Kind: ErrKindExpired, Message: "This code has expired."}
}

func errDisabled() *ClaimError {
	return &ClaimError{Kind: ErrKindDisabled, Message: "This code is not active right now."}
}

func errQuotaExceeded(scope QuotaScope, limit int) *ClaimError {
	return &ClaimError{
		Kind:    ErrKindQuotaExceeded,
		Scope:   scope,
		Limit:   limit,
		Message: "You've hit the limit for this action.",
	}
}

func errInvalidProof() *ClaimError {
	return &ClaimError{Kind: ErrKindInvalidProof, Message: proofRejectedMessage}
}

func errAlreadyClaimed() *ClaimError {
	return &ClaimError{Kind: ErrKindAlreadyClaimed, Message: "You've already earned this one."}
}

func errSelfReference() *ClaimError {
	return &ClaimError{Kind: ErrKindSelfReference, Message: "You can't connect with yourself."}
}

func errUpstreamUnavailable(cause error) *ClaimError {
	return &ClaimError{
		Kind:    ErrKindUpstreamUnavailable,
		Message: "Service temporarily unavailable, please try again.",
		cause:   cause,
	}
}

func errStoreFailure(cause error) *ClaimError {
	return &ClaimError{
		Kind:    ErrKindStoreFailure,
		Message: "Something went wrong on our side.",
		cause:   cause,
	}
}
