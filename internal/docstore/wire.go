package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxMessageBytes bounds one hub protocol message. Plan documents carry
// their undo history, so the websocket default of 32 KiB is too small.
const MaxMessageBytes = 16 << 20

// Hub protocol operations. Clients send get, set, delete, list, subscribe
// and unsubscribe; the hub answers with result or error and pushes snapshot
// messages tagged with the subscribe request's ID.
const (
	OpGet         = "get"
	OpSet         = "set"
	OpDelete      = "delete"
	OpList        = "list"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpResult      = "result"
	OpSnapshot    = "snapshot"
	OpError       = "error"
)

// Hub protocol error codes.
const (
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodeBadRequest  = "bad_request"
	CodeUnavailable = "unavailable"
)

var (
	// ErrRateLimited is returned when the hub rejects a write for exceeding
	// the connection's write rate.
	ErrRateLimited = errors.New("docstore: write rate exceeded")

	// ErrBadRequest is returned for malformed protocol requests.
	ErrBadRequest = errors.New("docstore: bad request")
)

// Message is one hub protocol frame.
type Message struct {
	ID     uint64          `json:"id,omitempty"`
	Op     string          `json:"op"`
	Path   string          `json:"path,omitempty"`
	Doc    json.RawMessage `json:"doc,omitempty"`
	Exists bool            `json:"exists,omitempty"`
	Paths  []string        `json:"paths,omitempty"`
	Code   string          `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ErrorMessage builds the error reply to request id for err.
func ErrorMessage(id uint64, err error) Message {
	code := CodeUnavailable

	switch {
	case errors.Is(err, ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, ErrRateLimited):
		code = CodeRateLimited
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrBadRequest):
		code = CodeBadRequest
	}

	return Message{ID: id, Op: OpError, Code: code, Error: err.Error()}
}

// wireError maps an error reply back to the store's sentinel errors.
func wireError(m Message) error {
	switch m.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeRateLimited:
		return fmt.Errorf("%w: %w", ErrUnavailable, ErrRateLimited)
	case CodeBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, m.Error)
	default:
		return fmt.Errorf("%w: hub: %s", ErrUnavailable, m.Error)
	}
}
