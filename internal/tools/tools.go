// Package tools defines the catalog of functions the model may call
// and the dispatcher that routes model-requested invocations to their
// handlers. The registry is built once at startup and never mutated.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cinematic-bot/cinematic/internal/llm"
)

// ErrNotFound is returned when the model requests an unregistered
// function. Its text is fed back to the model verbatim so it can
// recover by choosing another function.
var ErrNotFound = errors.New("Function not found")

// UserNameArg is the reserved argument key carrying the requester's
// identity. It is merged into every dispatch, overriding any value the
// model supplied.
const UserNameArg = "user_name"

// Handler executes one function call. Arguments arrive as a flat
// string map; the returned string is fed back to the model.
type Handler func(ctx context.Context, args map[string]string) (string, error)

// Param describes one function parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
	// Enum, when non-empty, restricts the parameter to a closed set of
	// string values.
	Enum []string
}

// Tool is one registered function: its model-facing contract plus the
// handler that executes it.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Registry is an immutable, ordered function catalog. Safe for
// concurrent use once constructed.
type Registry struct {
	order  []Tool
	byName map[string]*Tool
}

// NewRegistry builds a registry from the given tools, preserving
// declaration order. Duplicate names are rejected.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{
		order:  make([]Tool, 0, len(ts)),
		byName: make(map[string]*Tool, len(ts)),
	}
	for _, t := range ts {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		r.order = append(r.order, t)
		r.byName[t.Name] = &r.order[len(r.order)-1]
	}
	return r, nil
}

// List returns the registered tools in declaration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions projects the registry into the wire-format function
// declarations sent with every completion request.
func (r *Registry) Definitions() []llm.FunctionDef {
	defs := make([]llm.FunctionDef, 0, len(r.order))
	for _, t := range r.order {
		defs = append(defs, llm.FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  Schema(t),
		})
	}
	return defs
}

type paramSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type objectSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]paramSchema `json:"properties"`
	Required   []string               `json:"required"`
}

// Schema derives the JSON-schema parameter object for a tool. Pure
// projection: the required list holds required-flagged parameter names
// in declaration order.
func Schema(t Tool) json.RawMessage {
	s := objectSchema{
		Type:       "object",
		Properties: make(map[string]paramSchema, len(t.Params)),
		Required:   []string{},
	}
	for _, p := range t.Params {
		s.Properties[p.Name] = paramSchema{
			Type:        "string",
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	// Marshal of a fixed struct with string-keyed maps cannot fail.
	b, _ := json.Marshal(s)
	return b
}

// Dispatch resolves name to a handler and invokes it with args plus
// the requester's identity merged under UserNameArg. The input map is
// not mutated. Unknown names return ErrNotFound; handler failures are
// returned as-is. Callers feed any error's text back to the model as
// the function result.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]string, userName string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", ErrNotFound
	}

	merged := make(map[string]string, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged[UserNameArg] = userName

	return t.Handler(ctx, merged)
}
