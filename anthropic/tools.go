package anthropic

import (
	"encoding/json"
	"fmt"
)

// InputSchema is the JSON Schema describing a tool's input. The root type is
// always "object".
type InputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// Tool describes a function the model can call. Name must be unique among the
// tools attached to a single request; duplicates are a caller error the API
// will reject.
type Tool struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	InputSchema  InputSchema   `json:"input_schema"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`

	params []Param // retained from NewTool for runtime validation
}

// WithCacheControl returns a copy of the tool with a cache breakpoint set.
func (t Tool) WithCacheControl(cc *CacheControl) Tool {
	t.CacheControl = cc
	return t
}

// ParseArgs unmarshals a tool use's JSON input and validates it against the
// parameter definitions (required checks, type checks).
func (t Tool) ParseArgs(use PendingToolUse) (ToolArgs, error) {
	args := make(ToolArgs)
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &args); err != nil {
			return nil, err
		}
	}
	for _, p := range t.params {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		switch p.Type {
		case "string":
			if _, ok := v.(string); !ok {
				return nil, fmt.Errorf("parameter %q: expected string, got %T", p.Name, v)
			}
		case "number", "integer":
			if _, ok := v.(float64); !ok {
				return nil, fmt.Errorf("parameter %q: expected number, got %T", p.Name, v)
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				return nil, fmt.Errorf("parameter %q: expected boolean, got %T", p.Name, v)
			}
		}
	}
	return args, nil
}

// ToolArgs provides typed access to parsed tool input.
type ToolArgs map[string]any

// String returns the string value for the given key.
func (a ToolArgs) String(name string) (string, bool) {
	v, ok := a[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float64 returns the float64 value for the given key.
func (a ToolArgs) Float64(name string) (float64, bool) {
	v, ok := a[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Int returns the value for the given key as an int (truncating any decimal).
func (a ToolArgs) Int(name string) (int, bool) {
	f, ok := a.Float64(name)
	if !ok {
		return 0, false
	}
	return int(f), ok
}

// Bool returns the boolean value for the given key.
func (a ToolArgs) Bool(name string) (bool, bool) {
	v, ok := a[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Param describes a single tool input parameter.
type Param struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
}

func newParam(name, typ string, required bool, desc []string) Param {
	p := Param{Name: name, Type: typ, Required: required}
	if len(desc) > 0 {
		p.Description = desc[0]
	}
	return p
}

// StringParam creates a required string parameter.
func StringParam(name string, desc ...string) Param { return newParam(name, "string", true, desc) }

// OptionalStringParam creates an optional string parameter.
func OptionalStringParam(name string, desc ...string) Param {
	return newParam(name, "string", false, desc)
}

// NumberParam creates a required number parameter.
func NumberParam(name string, desc ...string) Param { return newParam(name, "number", true, desc) }

// OptionalNumberParam creates an optional number parameter.
func OptionalNumberParam(name string, desc ...string) Param {
	return newParam(name, "number", false, desc)
}

// IntegerParam creates a required integer parameter.
func IntegerParam(name string, desc ...string) Param { return newParam(name, "integer", true, desc) }

// OptionalIntegerParam creates an optional integer parameter.
func OptionalIntegerParam(name string, desc ...string) Param {
	return newParam(name, "integer", false, desc)
}

// BoolParam creates a required boolean parameter.
func BoolParam(name string, desc ...string) Param { return newParam(name, "boolean", true, desc) }

// OptionalBoolParam creates an optional boolean parameter.
func OptionalBoolParam(name string, desc ...string) Param {
	return newParam(name, "boolean", false, desc)
}

// NewTool creates a Tool with an input schema built from params.
func NewTool(name, description string, params ...Param) Tool {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]string{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: InputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
		params: params,
	}
}

// ToolChoice controls how the model selects tools.
type ToolChoice struct {
	Type                   string `json:"type"` // "auto", "any", "tool", "none"
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

// ToolChoiceAuto lets the model decide whether to call a tool.
func ToolChoiceAuto() *ToolChoice { return &ToolChoice{Type: "auto"} }

// ToolChoiceAny forces the model to call some tool.
func ToolChoiceAny() *ToolChoice { return &ToolChoice{Type: "any"} }

// ToolChoiceTool forces the model to call the named tool.
func ToolChoiceTool(name string) *ToolChoice { return &ToolChoice{Type: "tool", Name: name} }

// ToolChoiceNone prevents the model from calling tools.
func ToolChoiceNone() *ToolChoice { return &ToolChoice{Type: "none"} }

// Serial returns a copy that forbids parallel tool calls within one turn.
func (tc *ToolChoice) Serial() *ToolChoice {
	out := *tc
	out.DisableParallelToolUse = true
	return &out
}
