// Package envelope renders tool results in the uniform response shape:
//
//	{"success": true,  "data": ...}
//	{"success": false, "error": {"message": "...", "context": {...}}}
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Envelope is the JSON body of every tool result.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the failure half of an Envelope.
type Error struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Contexter is implemented by errors that carry caller-safe details.
type Contexter interface {
	Context() map[string]any
}

// OK wraps data in a success envelope.
func OK(data any) *mcp.CallToolResult {
	return render(Envelope{Success: true, Data: data}, false)
}

// Fail wraps err in a failure envelope. Context from err (if it is a
// Contexter anywhere in its chain) is merged under extra.
func Fail(err error, extra map[string]any) *mcp.CallToolResult {
	e := &Error{Message: err.Error()}
	var cx Contexter
	if errors.As(err, &cx) {
		e.Context = make(map[string]any)
		for k, v := range cx.Context() {
			e.Context[k] = v
		}
	}
	if len(extra) > 0 {
		if e.Context == nil {
			e.Context = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			e.Context[k] = v
		}
	}
	return render(Envelope{Success: false, Error: e}, true)
}

// Result picks OK or Fail depending on err.
func Result(data any, err error) *mcp.CallToolResult {
	if err != nil {
		return Fail(err, nil)
	}
	return OK(data)
}

func render(env Envelope, isError bool) *mcp.CallToolResult {
	body, err := json.Marshal(env)
	if err != nil {
		env = Envelope{Error: &Error{Message: fmt.Sprintf("encode result: %v", err)}}
		body, _ = json.Marshal(env)
		isError = true
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(string(body))},
		StructuredContent: env,
		IsError:           isError,
	}
}

// Decode parses the envelope out of a tool result's first text block.
func Decode(res *mcp.CallToolResult) (Envelope, error) {
	var env Envelope
	if res == nil || len(res.Content) == 0 {
		return env, errors.New("empty tool result")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		return env, fmt.Errorf("unexpected content type %T", res.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
