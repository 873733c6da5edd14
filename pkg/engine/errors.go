package engine

import "errors"

// Engine error taxonomy. Callers branch with errors.Is; the surrounding web
// layer is expected to collapse anything other than ErrUnsupportedInput into
// a generic internal error before it reaches end users.
var (
	ErrUnsupportedInput = errors.New("analysis type incompatible with input file")
	ErrInvalidImage     = errors.New("invalid or undecodable image")
	ErrInvalidPDF       = errors.New("invalid or unreadable pdf")
	ErrTooLarge         = errors.New("input exceeds configured size limits")
	ErrInference        = errors.New("model inference failed")
	ErrArtifactWrite    = errors.New("artifact could not be written")
	ErrAllPagesFailed   = errors.New("every page failed analysis")
)

// Kind names the taxonomy bucket an error belongs to, for structured logging
// and transport mapping by the caller.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedInput):
		return "input"
	case errors.Is(err, ErrInvalidImage), errors.Is(err, ErrInvalidPDF):
		return "decode"
	case errors.Is(err, ErrTooLarge):
		return "limit"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrArtifactWrite):
		return "io"
	case errors.Is(err, ErrAllPagesFailed):
		return "analysis"
	default:
		return "internal"
	}
}
