package media

import "fmt"

// MediaErrorCode mirrors the standard media error codes
type MediaErrorCode int

const (
	ErrCodeAborted         MediaErrorCode = 1
	ErrCodeNetwork         MediaErrorCode = 2
	ErrCodeDecode          MediaErrorCode = 3
	ErrCodeSrcNotSupported MediaErrorCode = 4
)

// MediaError is the error a media element reports for its current source
type MediaError struct {
	Code    MediaErrorCode
	Message string
}

// Classify returns a human-readable classification of the error
func (e *MediaError) Classify() string {
	if e == nil {
		return "no error"
	}
	switch e.Code {
	case ErrCodeAborted:
		return "loading aborted"
	case ErrCodeNetwork:
		return "network error while loading"
	case ErrCodeDecode:
		return "decode error"
	case ErrCodeSrcNotSupported:
		return "format not supported"
	default:
		return "unknown media error"
	}
}

func (e *MediaError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("media error %d: %s", e.Code, e.Classify())
	}
	return fmt.Sprintf("media error %d: %s (%s)", e.Code, e.Classify(), e.Message)
}
