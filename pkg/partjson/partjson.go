// Package partjson parses tool-call argument text that is still streaming in,
// completing truncated JSON documents so a provisional value can be shown
// before the producing stream finishes.
package partjson

import (
	"github.com/papercomputeco/uistream/pkg/safejson"
)

// State tags how a value was obtained.
type State string

const (
	// StateExact means the text was already a complete JSON document.
	StateExact State = "exact"

	// StateRepaired means the text only parsed after structural repair.
	StateRepaired State = "repaired"

	// StateFailed means no value could be produced yet.
	StateFailed State = "failed"
)

// Result is the outcome of a partial parse. Value is nil when State is
// StateFailed.
type Result struct {
	Value any
	State State
}

// Repairer completes a truncated JSON document. Implementations return their
// best attempt; the result is re-validated by the Parser.
type Repairer interface {
	Repair(text string) string
}

// RepairFunc adapts a plain function to the Repairer interface.
type RepairFunc func(text string) string

func (f RepairFunc) Repair(text string) string {
	return f(text)
}

// DefaultRepairer closes unterminated strings, arrays and objects.
var DefaultRepairer Repairer = RepairFunc(CompleteJSON)

// Parser parses partial JSON with a pluggable repair strategy.
type Parser struct {
	repairer Repairer
}

// NewParser returns a Parser using r, or DefaultRepairer when r is nil.
func NewParser(r Repairer) *Parser {
	if r == nil {
		r = DefaultRepairer
	}

	return &Parser{repairer: r}
}

// Parse attempts an exact parse first and falls back to repairing the text.
// It never panics: a misbehaving Repairer degrades to StateFailed.
func (p *Parser) Parse(text string) (result Result) {
	if res := safejson.Parse(text); res.OK() {
		return Result{Value: res.Value, State: StateExact}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{State: StateFailed}
		}
	}()

	if res := safejson.Parse(p.repairer.Repair(text)); res.OK() {
		return Result{Value: res.Value, State: StateRepaired}
	}

	return Result{State: StateFailed}
}

var defaultParser = NewParser(nil)

// Parse parses text with the DefaultRepairer.
func Parse(text string) Result {
	return defaultParser.Parse(text)
}
