package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	InvalidInput                 Kind = "invalid_input"
	SecurityViolation            Kind = "security_violation"
	MissingConfiguration         Kind = "missing_configuration"
	UpstreamEmbeddingFailure     Kind = "upstream_embedding_failure"
	UpstreamRetrievalFailure     Kind = "upstream_retrieval_failure"
	UpstreamGenerationFailure    Kind = "upstream_generation_failure"
	UpstreamVisionFailure        Kind = "upstream_vision_failure"
	UpstreamSummarizationFailure Kind = "upstream_summarization_failure"
	UpstreamDatabaseFailure      Kind = "upstream_database_failure"
	ExtractionFailure            Kind = "extraction_failure"
	Internal                     Kind = "internal"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err as kind unless it already carries a Kind.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return New(kind, err)
}

// KindOf returns the outermost Kind in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

const (
	genericMessage  = "I apologise, but I encountered an error processing your request. Please try again."
	databaseMessage = "I apologise, but there was an issue connecting to the Building Regulations database. Please try again in a moment."
	serviceMessage  = "I apologise, but there was an issue with the service. Please try again in a moment."
	configMessage   = "I apologise, but the system configuration is incomplete. Please contact support."
	securityMessage = "I apologise, but this request could not be completed. Please contact support if the problem persists."
	inputMessage    = "Please enter a question about the UK Building Regulations."
)

// UserMessage is the text shown to end users for a failure of the given kind.
// It never contains upstream diagnostics.
func UserMessage(kind Kind) string {
	switch kind {
	case InvalidInput:
		return inputMessage
	case SecurityViolation:
		return securityMessage
	case MissingConfiguration:
		return configMessage
	case UpstreamRetrievalFailure, UpstreamDatabaseFailure:
		return databaseMessage
	case UpstreamEmbeddingFailure, UpstreamGenerationFailure:
		return serviceMessage
	default:
		return genericMessage
	}
}

func HTTPStatus(kind Kind) int {
	if kind == InvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
