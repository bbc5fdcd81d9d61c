package papergraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/brunobiangulo/papergraph/graph"
)

var (
	// ErrMissingPDF is returned when a request carries no document bytes.
	ErrMissingPDF = errors.New("papergraph: no PDF uploaded")

	// ErrMissingAPIKey is returned when a request carries no API key.
	ErrMissingAPIKey = errors.New("papergraph: API key is required")

	// ErrUnsupportedModel is returned for a model outside the configured list.
	ErrUnsupportedModel = errors.New("papergraph: unsupported model")

	// ErrUnsupportedFormat is returned for input formats no parser handles.
	ErrUnsupportedFormat = errors.New("papergraph: unsupported document format")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("papergraph: run not found")

	// ErrHistoryDisabled is returned by history lookups when no store is open.
	ErrHistoryDisabled = errors.New("papergraph: run history is disabled")

	// ErrEmbeddingDisabled is returned by similarity search when no
	// embedding provider is configured.
	ErrEmbeddingDisabled = errors.New("papergraph: embedding provider not configured")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("papergraph: invalid configuration")
)

// ParseError reports a model answer that is not a method graph. Raw holds the
// answer as received.
type ParseError = graph.ParseError

// ValidationError reports dangling edge references or duplicate node ids.
type ValidationError = graph.ValidationError

// ExtractionError reports a document whose text could not be extracted.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("papergraph: extracting text: %v", e.Err)
	}
	return fmt.Sprintf("papergraph: extracting text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ModelCallError reports a failed chat completion: transport, HTTP status
// or an answer without choices.
type ModelCallError struct {
	Model string
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("papergraph: calling model %s: %v", e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// OutputError reports an artifact that could not be rendered or written.
type OutputError struct {
	Op  string
	Err error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("papergraph: %s: %v", e.Op, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// Error kinds reported by ErrorKind.
const (
	KindInput      = "input"
	KindExtraction = "extraction"
	KindModelCall  = "model_call"
	KindParse      = "parse"
	KindValidation = "validation"
	KindOutput     = "output"
	KindCanceled   = "canceled"
	KindInternal   = "internal"
)

// ErrorKind classifies err for logs, metrics and the run history. It
// returns "" for a nil error.
func ErrorKind(err error) string {
	var (
		extractErr *ExtractionError
		modelErr   *ModelCallError
		parseErr   *ParseError
		validErr   *ValidationError
		outErr     *OutputError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingPDF), errors.Is(err, ErrMissingAPIKey),
		errors.Is(err, ErrUnsupportedModel), errors.Is(err, ErrUnsupportedFormat):
		return KindInput
	// A stage error caused by the caller's context is a cancellation, not a
	// failure of that stage.
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &extractErr):
		return KindExtraction
	case errors.As(err, &modelErr):
		return KindModelCall
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &outErr):
		return KindOutput
	default:
		return KindInternal
	}
}
