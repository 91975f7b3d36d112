// Package faults defines the typed error taxonomy shared across the
// retrieval pipeline. API handlers map fault kinds to HTTP status codes;
// everything below the API layer works with these types directly.
package faults

import "errors"

// Kind classifies a fault. Kinds are stable identifiers recorded on failed
// turns and audit events.
type Kind string

const (
	// KindExtraction marks an unparseable or empty document. The owning
	// document transitions to failed.
	KindExtraction Kind = "extraction_error"
	// KindClassificationAmbiguous is non-fatal; the classifier falls back
	// to the group-wide vertical and logs it.
	KindClassificationAmbiguous Kind = "classification_ambiguous"
	// KindEmbeddingUnavailable signals embedding provider failure.
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	// KindRetrievalUnavailable signals vector store unavailability.
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	// KindGenerationTimeout signals a transient LLM failure that persisted
	// through the single allowed retry.
	KindGenerationTimeout Kind = "generation_timeout"
	// KindGenerationError signals a non-retryable LLM rejection.
	KindGenerationError Kind = "generation_error"
	// KindAccessDenied signals zero allowed verticals for the query scope.
	KindAccessDenied Kind = "access_denied"
	// KindSessionClosed signals a message submitted to a closed session.
	KindSessionClosed Kind = "session_closed"
	// KindSessionBusy signals a second concurrent message on a session
	// that already has a turn in flight.
	KindSessionBusy Kind = "session_busy"
	// KindPayloadTooLarge signals an upload exceeding the configured size.
	KindPayloadTooLarge Kind = "payload_too_large"
	// KindUnsupportedMedia signals a non-PDF upload content type.
	KindUnsupportedMedia Kind = "unsupported_media"
	// KindNotFound signals a missing or foreign-owned resource.
	KindNotFound Kind = "not_found"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Fault is a typed application error with an optional cause.
type Fault struct {
	Kind    Kind
	Message string
	Cause   error
}

func (f *Fault) Error() string {
	if f.Cause != nil {
		return f.Message + ": " + f.Cause.Error()
	}
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// New creates a fault without a cause.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Wrap creates a fault carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Fault {
	return &Fault{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the outermost fault in err's chain, or
// KindInternal when err carries no fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsKind reports whether err's chain contains a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}
