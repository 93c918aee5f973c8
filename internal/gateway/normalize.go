package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// envelopeKeys are the keys allowed next to "data" in a response envelope.
var envelopeKeys = map[string]bool{
	"data":       true,
	"success":    true,
	"status":     true,
	"message":    true,
	"meta":       true,
	"pagination": true,
	"count":      true,
	"total":      true,
}

// listKeys are the fields a list payload may be wrapped in.
var listKeys = []string{"items", "results", "favorites", "places", "messages", "docs"}

// Result is the canonical success payload.
type Result struct {
	Status    int
	Data      json.RawMessage
	Message   string
	Meta      json.RawMessage
	RequestID string
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r *Result) Decode(v any) error {
	if r == nil || isEmptyJSON(r.Data) {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return malformed(r, err)
	}
	return nil
}

// DecodeList unmarshals a list payload into v, which must point to a slice.
// The list may be the payload itself or wrapped in an object under one of
// listKeys.
func (r *Result) DecodeList(v any) error {
	if r == nil || isEmptyJSON(r.Data) {
		return nil
	}

	data := bytes.TrimSpace(r.Data)
	if len(data) > 0 && data[0] == '[' {
		return r.Decode(v)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return malformed(r, err)
	}

	for _, key := range listKeys {
		if raw, ok := obj[key]; ok {
			if isEmptyJSON(raw) {
				return nil
			}
			if err := json.Unmarshal(raw, v); err != nil {
				return malformed(r, err)
			}
			return nil
		}
	}

	return malformed(r, nil)
}

// normalize is the single place where response shapes are sniffed. The API
// returns either a bare payload, an envelope {"data": payload, ...} with only
// envelopeKeys at the top level, or no body at all.
func normalize(status int, raw []byte, requestID string) (*Result, error) {
	res := &Result{Status: status, RequestID: requestID}

	raw = bytes.TrimSpace(raw)
	if status == http.StatusNoContent || len(raw) == 0 {
		return res, nil
	}

	if !json.Valid(raw) {
		return nil, malformed(res, nil)
	}

	if raw[0] != '{' {
		res.Data = raw
		return res, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, malformed(res, err)
	}

	if !isEnvelope(obj) {
		res.Data = raw
		return res, nil
	}

	res.Data = obj["data"]
	res.Meta = obj["meta"]
	if msg, ok := obj["message"]; ok {
		_ = json.Unmarshal(msg, &res.Message)
	}

	return res, nil
}

func isEnvelope(obj map[string]json.RawMessage) bool {
	if _, ok := obj["data"]; !ok {
		return false
	}
	for k := range obj {
		if !envelopeKeys[k] {
			return false
		}
	}
	return true
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func malformed(r *Result, err error) *Error {
	return &Error{
		Kind:      KindServer,
		Status:    r.Status,
		Message:   "malformed response",
		RequestID: r.RequestID,
		Err:       err,
	}
}
