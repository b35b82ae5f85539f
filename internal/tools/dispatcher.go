// Package tools implements the assistant's tool catalog: a fixed, closed set
// of handlers the model can invoke during a turn. Each tool validates its raw
// arguments, executes against its collaborator, and reports either a result
// payload or a failure string that is handed back into the model's context.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/store"
)

// Attachment is a typed structured payload returned to the caller alongside
// the assistant's answer, one per successful tool execution.
type Attachment struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Outcome is the dispatcher's verdict on one requested tool call. Failed
// calls (validation or execution) still produce a Response for the model but
// carry no attachment and no persistable record.
type Outcome struct {
	Tool       string
	Response   map[string]interface{}
	Attachment *Attachment
	// RecordInput/RecordOutput are set only when the call executed
	// successfully; exactly those calls are logged.
	RecordInput  json.RawMessage
	RecordOutput json.RawMessage
	OK           bool
}

// Dispatcher resolves tool calls against the closed tool set. The set is
// fixed, so resolution is a compile-time-checked switch rather than an open
// registry.
type Dispatcher struct {
	providerSearch *ProviderSearchTool
	addressSearch  *AddressSearchTool
	providerInfo   *ProviderInfoTool
	webSearch      *WebSearchTool
}

func NewDispatcher(ps *ProviderSearchTool, as *AddressSearchTool, pi *ProviderInfoTool, ws *WebSearchTool) *Dispatcher {
	return &Dispatcher{
		providerSearch: ps,
		addressSearch:  as,
		providerInfo:   pi,
		webSearch:      ws,
	}
}

// Declarations returns the fixed tool-schema catalog sent with every model
// invocation.
func (d *Dispatcher) Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		d.providerSearch.Declaration(),
		d.addressSearch.Declaration(),
		d.providerInfo.Declaration(),
		d.webSearch.Declaration(),
	}
}

// Dispatch validates and executes one requested tool call. Business-logic
// failures are never raised as errors; they come back as a failure Response
// so the conversation can continue gracefully.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) Outcome {
	var (
		output     map[string]interface{}
		attachment interface{}
		err        error
	)

	switch name {
	case store.ToolProviderSearch:
		output, attachment, err = d.providerSearch.Run(ctx, args)
	case store.ToolAddressSearch:
		output, attachment, err = d.addressSearch.Run(ctx, args)
	case store.ToolProviderInfo:
		output, attachment, err = d.providerInfo.Run(ctx, args)
	case store.ToolWebSearch:
		output, attachment, err = d.webSearch.Run(ctx, args)
	default:
		err = fmt.Errorf("unknown tool %q", name)
	}

	if err != nil {
		log.Printf("tool %s failed: %v", name, err)
		return Outcome{
			Tool:     name,
			Response: map[string]interface{}{"error": err.Error()},
		}
	}

	inputJSON, err := json.Marshal(args)
	if err != nil {
		inputJSON = []byte("{}")
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		log.Printf("tool %s: failed to encode output: %v", name, err)
		return Outcome{
			Tool:     name,
			Response: map[string]interface{}{"error": "internal error encoding tool output"},
		}
	}

	return Outcome{
		Tool:         name,
		Response:     output,
		Attachment:   &Attachment{Type: name, Data: attachment},
		RecordInput:  inputJSON,
		RecordOutput: outputJSON,
		OK:           true,
	}
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// requireString extracts a mandatory, non-empty string argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

// toMap round-trips a struct through JSON into a generic map, the shape the
// model's function-response part expects.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
