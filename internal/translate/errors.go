package translate

import (
	"errors"
	"fmt"
)

// Kind classifies a translation failure.
type Kind string

const (
	KindInvalidImage    Kind = "invalid_image"
	KindInvalidEndpoint Kind = "invalid_endpoint_config"
	KindNetwork         Kind = "network_failure"
	KindDecode          Kind = "decode_failure"
)

var (
	ErrInvalidImage    = errors.New("image cannot be encoded")
	ErrInvalidEndpoint = errors.New("translation endpoint misconfigured")
	ErrNetwork         = errors.New("translation request failed")
	ErrDecode          = errors.New("translation response malformed")
)

var sentinels = map[Kind]error{
	KindInvalidImage:    ErrInvalidImage,
	KindInvalidEndpoint: ErrInvalidEndpoint,
	KindNetwork:         ErrNetwork,
	KindDecode:          ErrDecode,
}

// Error is the typed failure returned by Client.Translate. It matches the
// package sentinels with errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind Kind
	// Status is the HTTP status for non-2xx responses, 0 otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf reports the Kind of err, or "" when err is not a translation failure.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return ""
}
