package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed request.
type Kind string

const (
	KindNetwork         Kind = "NetworkError"
	KindUnauthenticated Kind = "Unauthenticated"
	KindForbidden       Kind = "Forbidden"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindValidation      Kind = "ValidationError"
	KindServer          Kind = "ServerError"
)

// Sentinel errors for matching with errors.Is. Any *Error of the same Kind matches.
var (
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrServer          = &Error{Kind: KindServer}
)

// Error is the normalized failure returned by the gateway. Raw transport
// errors are only ever reachable through Unwrap.
type Error struct {
	Kind      Kind              `json:"kind"`
	Status    int               `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Err       error             `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err, or "" if err is not a gateway error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// IsUnauthenticated reports whether err ended the session; the consumer
// is expected to send the user back to login.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// kindForStatus maps a non-2xx status to a Kind.
// Client errors outside the taxonomy (e.g. 429) are reported as ServerError.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindServer
	}
}

// errorBody covers the error shapes returned by the API.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Errors  json.RawMessage `json:"errors"`
	Fields  json.RawMessage `json:"fields"`
}

func errorFromResponse(status int, raw []byte, requestID string) *Error {
	e := &Error{
		Kind:      kindForStatus(status),
		Status:    status,
		RequestID: requestID,
	}

	var body errorBody
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		e.Message = body.Message
		if e.Message == "" {
			e.Message = errorMessage(body.Error)
		}
		e.Fields = parseFields(body.Errors)
		if e.Fields == nil {
			e.Fields = parseFields(body.Fields)
		}
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	return e
}

// errorMessage reads "error" as either a string or an object with a message.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

// parseFields accepts {"field": "msg"}, {"field": ["msg", ...]} and
// [{"field"|"path"|"param": ..., "message"|"msg": ...}].
func parseFields(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var flat map[string]string
	if json.Unmarshal(raw, &flat) == nil && len(flat) > 0 {
		return flat
	}

	var multi map[string][]string
	if json.Unmarshal(raw, &multi) == nil && len(multi) > 0 {
		fields := make(map[string]string, len(multi))
		for k, msgs := range multi {
			fields[k] = strings.Join(msgs, "; ")
		}
		return fields
	}

	var list []struct {
		Field   string `json:"field"`
		Path    string `json:"path"`
		Param   string `json:"param"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		fields := make(map[string]string, len(list))
		for _, item := range list {
			name := firstNonEmpty(item.Field, item.Path, item.Param)
			if name == "" {
				continue
			}
			fields[name] = firstNonEmpty(item.Message, item.Msg)
		}
		if len(fields) > 0 {
			return fields
		}
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
