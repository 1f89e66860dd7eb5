package cfapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// APIError is one entry of the provider's errors array
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result is the decoded provider envelope. The body is kept as a raw object
// so callers can read fields the envelope does not model.
type Result struct {
	StatusCode int

	// SuccessPresent reports whether the body has a success key at all.
	SuccessPresent bool
	// Success reports whether the success value converts to the integer 1.
	Success bool

	// Message is msg when present, else the joined errors[].message values.
	Message string
	Errors  []APIError
	Payload json.RawMessage
	Raw     map[string]json.RawMessage
}

// Succeeded is the strict success check: the key must exist and equal 1.
func (r *Result) Succeeded() bool {
	return r != nil && r.SuccessPresent && r.Success
}

// DecodePayload unmarshals the result member into v.
func (r *Result) DecodePayload(v interface{}) error {
	if r == nil || len(r.Payload) == 0 || string(r.Payload) == "null" {
		return fmt.Errorf("response has no result")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func parseResult(statusCode int, body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedResponse
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	res := &Result{
		StatusCode: statusCode,
		Raw:        raw,
		Payload:    raw["result"],
	}

	if v, ok := raw["success"]; ok {
		res.SuccessPresent = true
		res.Success = intValue(v) == 1
	}

	if v, ok := raw["errors"]; ok {
		// non-array errors members are ignored
		_ = json.Unmarshal(v, &res.Errors)
	}

	if v, ok := raw["msg"]; ok {
		res.Message = scalarString(v)
	} else if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		res.Message = strings.Join(msgs, "; ")
	}

	return res, nil
}

// intValue converts a JSON value to an integer the way a scripting intval
// does: true is 1, numbers truncate toward zero, strings use their leading
// numeric prefix, non-empty arrays and objects are 1, everything else is 0.
func intValue(v json.RawMessage) int64 {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return 0
	}
	switch t := decoded.(type) {
	case bool:
		if t {
			return 1
		}
	case json.Number:
		return numericPrefix(t.String())
	case string:
		return numericPrefix(t)
	case []interface{}:
		if len(t) > 0 {
			return 1
		}
	case map[string]interface{}:
		if len(t) > 0 {
			return 1
		}
	}
	return 0
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// numericPrefix parses the leading number of s and truncates it. Out of range
// values saturate.
func numericPrefix(s string) int64 {
	m := leadingNumber.FindString(strings.TrimLeft(s, " \t\n\r\v\f"))
	if m == "" {
		return 0
	}
	if n, err := strconv.ParseInt(m, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Trunc(f))
}

func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if string(v) == "null" {
		return ""
	}
	return string(v)
}
