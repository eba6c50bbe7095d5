package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// SecretRequirement declares a secret key a tool needs at runtime
type SecretRequirement struct {
	Key string `json:"key"`
}

// AuthRequirement declares the authorization a tool needs at runtime
type AuthRequirement struct {
	ProviderID   string   `json:"provider_id"`
	ProviderType string   `json:"provider_type"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Requirements groups the runtime requirements of a tool
type Requirements struct {
	Secrets       []SecretRequirement `json:"secrets,omitempty"`
	Authorization *AuthRequirement    `json:"authorization,omitempty"`
}

// InputSchema describes the object schema for tool arguments
type InputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

// Definition is the immutable specification of a tool. The fully-qualified
// name is "toolkit.tool" and is unique within a catalog.
type Definition struct {
	Name               string                 `json:"name"`
	Toolkit            string                 `json:"toolkit"`
	ToolkitVersion     string                 `json:"toolkit_version,omitempty"`
	Description        string                 `json:"description,omitempty"`
	Input              InputSchema            `json:"input"`
	Output             map[string]interface{} `json:"output,omitempty"`
	Requirements       Requirements           `json:"requirements,omitempty"`
	Annotations        *mcp.ToolAnnotations   `json:"annotations,omitempty"`
	DeprecationMessage string                 `json:"deprecation_message,omitempty"`
}

// FullyQualifiedName returns the "toolkit.tool" name for the definition
func (d *Definition) FullyQualifiedName() string {
	if d.Toolkit == "" {
		return d.Name
	}
	return d.Toolkit + "." + d.Name
}

// Equal compares definitions by FQN and input/output schemas. Updates that
// leave these unchanged are treated as no-ops by the managers.
func (d *Definition) Equal(other *Definition) bool {
	if other == nil {
		return false
	}
	if d.FullyQualifiedName() != other.FullyQualifiedName() {
		return false
	}
	a, err := json.Marshal(struct {
		In  InputSchema            `json:"in"`
		Out map[string]interface{} `json:"out"`
	}{d.Input, d.Output})
	if err != nil {
		return false
	}
	b, err := json.Marshal(struct {
		In  InputSchema            `json:"in"`
		Out map[string]interface{} `json:"out"`
	}{other.Input, other.Output})
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Handler executes a tool invocation. The ToolContext carries secrets,
// authorization, and the session-bound logging and progress capabilities.
// The context is canceled when the client cancels the request or the
// transport shuts down.
type Handler func(ctx context.Context, tctx *ToolContext, args map[string]interface{}) (interface{}, error)

// MaterializedTool is a definition paired with its callable and a compiled
// argument validator.
type MaterializedTool struct {
	Definition  *Definition
	Handler     Handler
	inputSchema *jsonschema.Schema
}

// NewMaterializedTool builds a materialized tool, compiling the definition's
// input schema for argument validation.
func NewMaterializedTool(def *Definition, handler Handler) (*MaterializedTool, error) {
	if def.Name == "" {
		return nil, mcp.ValidationError("tool definition has empty name")
	}
	if handler == nil {
		return nil, mcp.ValidationError("tool %q has no handler", def.FullyQualifiedName())
	}

	properties := def.Input.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(def.Input.Required) > 0 {
		schema["required"] = def.Input.Required
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindValidation, err, "tool %q has an unserializable input schema", def.FullyQualifiedName())
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, mcp.WrapError(mcp.KindValidation, err, "tool %q input schema", def.FullyQualifiedName())
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, mcp.WrapError(mcp.KindValidation, err, "tool %q input schema", def.FullyQualifiedName())
	}

	return &MaterializedTool{
		Definition:  def,
		Handler:     handler,
		inputSchema: compiled,
	}, nil
}

// ValidateArguments checks call arguments against the tool's input schema
func (t *MaterializedTool) ValidateArguments(args map[string]interface{}) error {
	if t.inputSchema == nil {
		return nil
	}
	// jsonschema validates against decoded JSON values, so round-trip the
	// arguments to normalize Go numeric types.
	raw, err := json.Marshal(args)
	if err != nil {
		return mcp.WrapError(mcp.KindValidation, err, "arguments are not serializable")
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return mcp.WrapError(mcp.KindValidation, err, "arguments are not serializable")
	}
	if err := t.inputSchema.Validate(doc); err != nil {
		return mcp.WrapError(mcp.KindValidation, err, "invalid arguments for tool %q", t.Definition.FullyQualifiedName())
	}
	return nil
}

// Catalog is an ordered set of materialized tools keyed by fully-qualified
// name. Iteration order is stable for the lifetime of the process.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*MaterializedTool
	order []string
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		tools: make(map[string]*MaterializedTool),
	}
}

// Add registers a tool under the given toolkit name, overwriting any
// existing tool with the same fully-qualified name.
func (c *Catalog) Add(tool *MaterializedTool, toolkitName string) {
	if toolkitName != "" {
		tool.Definition.Toolkit = toolkitName
	}
	fqn := tool.Definition.FullyQualifiedName()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[fqn]; !exists {
		c.order = append(c.order, fqn)
	}
	c.tools[fqn] = tool
}

// Get looks up a tool by fully-qualified name. Both "toolkit.tool" and
// "toolkit_tool" spellings are accepted.
func (c *Catalog) Get(name string) (*MaterializedTool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tool, ok := c.tools[name]; ok {
		return tool, nil
	}
	if strings.Contains(name, "_") {
		if tool, ok := c.tools[strings.Replace(name, "_", ".", 1)]; ok {
			return tool, nil
		}
	}
	return nil, mcp.NotFoundError("tool %q not found", name)
}

// Has reports whether the catalog contains the fully-qualified name
func (c *Catalog) Has(name string) bool {
	_, err := c.Get(name)
	return err == nil
}

// List returns the tools in insertion order
func (c *Catalog) List() []*MaterializedTool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*MaterializedTool, 0, len(c.order))
	for _, fqn := range c.order {
		out = append(out, c.tools[fqn])
	}
	return out
}

// Len returns the number of tools in the catalog
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// MustAdd registers a tool built from the definition and handler, panicking
// on a malformed definition. Intended for startup-time catalog population.
func (c *Catalog) MustAdd(def *Definition, handler Handler, toolkitName string) {
	tool, err := NewMaterializedTool(def, handler)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	c.Add(tool, toolkitName)
}
