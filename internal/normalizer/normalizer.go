// Package normalizer recovers structured values from free-form model output.
//
// Models are asked for JSON but routinely wrap it in markdown fences, and some
// answer with Python-style dict text instead. Normalize never fails: it either
// returns the parsed value or an ErrorResult that keeps the raw text verbatim.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind is the diagnostic kind carried by an ErrorResult.
type Kind string

const KindInvalidStructuredOutput Kind = "InvalidStructuredOutput"

// Method records how a value was recovered.
type Method string

const (
	MethodJSON          Method = "json"
	MethodJSONFenced    Method = "json_fenced"
	MethodLiteral       Method = "literal"
	MethodLiteralFenced Method = "literal_fenced"
)

// ErrorResult is a recoverable normalization failure. RawText is the exact
// input that could not be parsed.
type ErrorResult struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
	RawText string `json:"raw_text"`
}

func (e *ErrorResult) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result is the outcome of one normalization. Exactly one of Value and Err is
// meaningful: when Err is nil, Value holds the parsed value (which may itself
// be nil for a JSON null).
type Result struct {
	Value  any
	Err    *ErrorResult
	Method Method
}

// OK reports whether the result carries a parsed value.
func (r Result) OK() bool {
	return r.Err == nil
}

// MarshalJSON writes the value for successful results and the ErrorResult
// otherwise, so results serialize losslessly into artifacts and responses.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	return json.Marshal(r.Value)
}

// Failure builds an ErrorResult-carrying Result.
func Failure(raw, message string) Result {
	return Result{Err: &ErrorResult{
		Kind:    KindInvalidStructuredOutput,
		Message: message,
		RawText: raw,
	}}
}

// Normalizer turns model text into Results.
type Normalizer struct {
	relaxed bool
}

type Option func(*Normalizer)

// WithRelaxedLiterals enables the Python-literal fallback grammar. It accepts
// single-quoted strings, True/False/None, tuples and trailing commas after a
// strict JSON parse has failed. Off by default: text that is malformed JSON
// may be read as valid relaxed syntax.
func WithRelaxedLiterals(enabled bool) Option {
	return func(n *Normalizer) {
		n.relaxed = enabled
	}
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Relaxed reports whether the literal fallback is enabled.
func (n *Normalizer) Relaxed() bool {
	return n.relaxed
}

// Normalize recovers a structured value from raw. It is total.
func (n *Normalizer) Normalize(raw string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Failure(raw, fmt.Sprintf("parser panic: %v", p))
		}
	}()

	payload, fenced := StripFences(raw)
	if payload == "" {
		return Failure(raw, "empty response")
	}

	value, jsonErr := ParseJSON(payload)
	if jsonErr == nil {
		return Result{Value: value, Method: pick(fenced, MethodJSONFenced, MethodJSON)}
	}

	if n.relaxed {
		value, litErr := ParseLiteral(payload)
		if litErr == nil {
			return Result{Value: value, Method: pick(fenced, MethodLiteralFenced, MethodLiteral)}
		}
		return Failure(raw, fmt.Sprintf("not valid JSON (%v) or literal syntax (%v)", jsonErr, litErr))
	}

	return Failure(raw, fmt.Sprintf("not valid JSON: %v", jsonErr))
}

// ParseJSON decodes a single JSON value. Numbers are kept as json.Number and
// anything after the first value is an error.
func ParseJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return v, nil
}

// Canonical re-encodes a value as compact JSON. It is used for the round
// trip check and for rendering values into prompts.
func Canonical(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func pick(cond bool, a, b Method) Method {
	if cond {
		return a
	}
	return b
}
