// Package tools maps tool names to typed input and output payloads so that
// tool parts of a reconstructed message carry concrete values instead of
// opaque JSON. A tool part's ToolName is the tag selecting its variant.
package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/papercomputeco/uistream/pkg/llm"
)

// Tool decodes the payloads of one named tool.
type Tool interface {
	Name() string
	Description() string

	// DecodeInput converts a generic JSON value into the tool's input type.
	// Partial inputs (final == false) are decoded leniently and not
	// validated, since required fields may not have streamed in yet.
	DecodeInput(raw any, final bool) (any, error)

	// DecodeOutput converts a generic JSON value into the tool's output type.
	DecodeOutput(raw any) (any, error)

	Schema() Schema
}

// Schema describes a tool's payloads as JSON schema documents.
type Schema struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Input       *jsonschema.Schema `json:"input"`
	Output      *jsonschema.Schema `json:"output"`
}

var validate = validator.New()

// definition is a Tool backed by Go types I (input) and O (output).
type definition[I, O any] struct {
	name        string
	description string
}

func (d definition[I, O]) Name() string        { return d.name }
func (d definition[I, O]) Description() string { return d.description }

func (d definition[I, O]) DecodeInput(raw any, final bool) (any, error) {
	var in I
	if err := llm.DecodeJSONTagged(&in, raw); err != nil {
		return nil, fmt.Errorf("decoding %s input: %w", d.name, err)
	}

	if final {
		// Non-struct inputs have nothing to validate.
		var invalid *validator.InvalidValidationError
		if err := validate.Struct(&in); err != nil && !errors.As(err, &invalid) {
			return nil, fmt.Errorf("validating %s input: %w", d.name, err)
		}
	}

	return in, nil
}

func (d definition[I, O]) DecodeOutput(raw any) (any, error) {
	var out O
	if err := llm.DecodeJSONTagged(&out, raw); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", d.name, err)
	}

	return out, nil
}

func (d definition[I, O]) Schema() Schema {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	return Schema{
		Name:        d.name,
		Description: d.description,
		Input:       r.Reflect(new(I)),
		Output:      r.Reflect(new(O)),
	}
}

// Registry holds the known tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: map[string]Tool{},
	}
}

// Register adds a tool whose input decodes into I and output into O.
func Register[I, O any](r *Registry, name, description string) {
	r.Add(definition[I, O]{name: name, description: description})
}

// Add registers t, replacing any tool with the same name.
func (r *Registry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// DecodeInput decodes raw with the named tool. Unknown tools, and nil raw
// values, pass through unchanged.
func (r *Registry) DecodeInput(name string, raw any, final bool) (any, error) {
	t, ok := r.Lookup(name)
	if !ok || raw == nil {
		return raw, nil
	}

	return t.DecodeInput(raw, final)
}

// DecodeOutput decodes raw with the named tool. Unknown tools, and nil raw
// values, pass through unchanged.
func (r *Registry) DecodeOutput(name string, raw any) (any, error) {
	t, ok := r.Lookup(name)
	if !ok || raw == nil {
		return raw, nil
	}

	return t.DecodeOutput(raw)
}

// Schemas returns the schema of every registered tool in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}
