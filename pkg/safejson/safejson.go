// Package safejson decodes untrusted stream payloads into generic JSON values,
// rejecting documents shaped to pollute object prototypes in downstream
// JavaScript consumers of the reconstructed messages.
package safejson

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/papercomputeco/uistream/pkg/utils"
)

// Done is the stream terminator payload. It is not JSON and must be dropped
// before Parse is called.
const Done = "[DONE]"

const maxQuotedTextLen = 64

var (
	// ErrForbiddenPrototype is returned for documents containing a
	// "__proto__" key, or a "constructor" object owning a "prototype" key.
	ErrForbiddenPrototype = errors.New("object contains forbidden prototype property")

	suspectProto       = regexp.MustCompile(`"__proto__"\s*:`)
	suspectConstructor = regexp.MustCompile(`"constructor"\s*:`)
)

// ParseError reports a payload that could not be decoded.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing %q into JSON: %v", utils.Truncate(e.Text, maxQuotedTextLen), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Result is the outcome of decoding one payload: either Value is set and Err
// is nil, or Err is a *ParseError.
type Result struct {
	Value any
	Raw   string
	Err   error
}

// OK reports whether the payload decoded successfully.
func (r Result) OK() bool {
	return r.Err == nil
}

// Parse decodes text into maps, slices, strings, float64s, bools and nils.
// It never panics; every failure is reported through Result.Err.
func Parse(text string) Result {
	value, err := decode(text)
	if err != nil {
		return Result{Raw: text, Err: &ParseError{Text: text, Err: err}}
	}

	return Result{Value: value, Raw: text}
}

func decode(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}

	switch value.(type) {
	case map[string]any, []any:
	default:
		return value, nil
	}

	if !suspectProto.MatchString(text) && !suspectConstructor.MatchString(text) {
		return value, nil
	}

	if err := filter(value); err != nil {
		return nil, err
	}

	return value, nil
}

// filter walks the decoded graph breadth-first looking for forbidden shapes.
func filter(root any) error {
	next := []any{root}

	for len(next) > 0 {
		nodes := next
		next = nil

		for _, node := range nodes {
			switch n := node.(type) {
			case map[string]any:
				if _, ok := n["__proto__"]; ok {
					return ErrForbiddenPrototype
				}

				if ctor, ok := n["constructor"].(map[string]any); ok {
					if _, ok := ctor["prototype"]; ok {
						return ErrForbiddenPrototype
					}
				}

				for _, v := range n {
					next = appendContainer(next, v)
				}

			case []any:
				for _, v := range n {
					next = appendContainer(next, v)
				}
			}
		}
	}

	return nil
}

func appendContainer(next []any, v any) []any {
	switch v.(type) {
	case map[string]any, []any:
		return append(next, v)
	default:
		return next
	}
}
