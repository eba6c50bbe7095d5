package managers

import (
	"fmt"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

// ToolManager manages tools for the MCP server, keyed by fully-qualified
// name. The manager is seeded from the catalog at construction time and
// kept in sync on add/update.
type ToolManager struct {
	catalog  *tools.Catalog
	reg      *registry[*tools.MaterializedTool]
	onUpdate UpdateHook
}

// NewToolManager creates a tool manager backed by the catalog
func NewToolManager(catalog *tools.Catalog, onUpdate UpdateHook) *ToolManager {
	m := &ToolManager{
		catalog:  catalog,
		onUpdate: onUpdate,
	}
	m.reg = newRegistry("tool", func(a, b *tools.MaterializedTool) bool {
		return a.Definition.Equal(b.Definition)
	}, onUpdate)

	for _, tool := range catalog.List() {
		m.reg.add(tool.Definition.FullyQualifiedName(), tool)
	}
	logger.Info("Tool manager initialized with %d tools", m.reg.len())
	return m
}

// GetTool returns a tool by fully-qualified name. Both "toolkit.tool" and
// "toolkit_tool" spellings are accepted.
func (m *ToolManager) GetTool(name string) (*tools.MaterializedTool, error) {
	return m.catalog.Get(name)
}

// AddTool adds a tool. If an equal tool is already registered under the
// same name, the call is a no-op; otherwise the tool is replaced and the
// update hook fires.
func (m *ToolManager) AddTool(tool *tools.MaterializedTool) {
	fqn := tool.Definition.FullyQualifiedName()
	if m.reg.add(fqn, tool) {
		m.catalog.Add(tool, tool.Definition.Toolkit)
	}
}

// RemoveTool removes a tool by fully-qualified name
func (m *ToolManager) RemoveTool(name string) (*tools.MaterializedTool, error) {
	return m.reg.remove(name)
}

// HasTool reports whether a tool is registered under the name
func (m *ToolManager) HasTool(name string) bool {
	return m.reg.has(name)
}

// ListTools returns MCP tool descriptions for every registered tool
func (m *ToolManager) ListTools() []mcp.Tool {
	materialized := m.reg.list()
	out := make([]mcp.Tool, 0, len(materialized))
	for _, tool := range materialized {
		out = append(out, ToMCPTool(tool))
	}
	return out
}

// Clear removes all tools from the manager
func (m *ToolManager) Clear() {
	m.reg.clear()
}

// Len returns the number of registered tools
func (m *ToolManager) Len() int {
	return m.reg.len()
}

// ToMCPTool converts a materialized tool into its wire representation.
// Annotations not set explicitly are derived from the tool's requirements:
// a tool with no requirements is hinted read-only, and a tool that needs
// authorization is hinted open-world.
func ToMCPTool(tool *tools.MaterializedTool) mcp.Tool {
	def := tool.Definition

	description := def.Description
	if def.DeprecationMessage != "" {
		description = fmt.Sprintf("[DEPRECATED: %s] %s", def.DeprecationMessage, description)
	}
	if def.Toolkit != "" {
		if def.ToolkitVersion != "" {
			description = fmt.Sprintf("%s (from %s v%s)", description, def.Toolkit, def.ToolkitVersion)
		} else {
			description = fmt.Sprintf("%s (from %s)", description, def.Toolkit)
		}
	}

	inputSchema := map[string]interface{}{
		"type":       "object",
		"properties": def.Input.Properties,
	}
	if def.Input.Properties == nil {
		inputSchema["properties"] = map[string]interface{}{}
	}
	if len(def.Input.Required) > 0 {
		inputSchema["required"] = def.Input.Required
	}

	annotations := def.Annotations
	if annotations == nil {
		annotations = &mcp.ToolAnnotations{}
	} else {
		clone := *annotations
		annotations = &clone
	}
	if annotations.Title == "" {
		annotations.Title = def.Name
	}
	if annotations.ReadOnlyHint == nil {
		hasRequirements := len(def.Requirements.Secrets) > 0 || def.Requirements.Authorization != nil
		readOnly := !hasRequirements
		annotations.ReadOnlyHint = &readOnly
	}
	if annotations.OpenWorldHint == nil && def.Requirements.Authorization != nil {
		openWorld := true
		annotations.OpenWorldHint = &openWorld
	}

	return mcp.Tool{
		Name:         def.FullyQualifiedName(),
		Title:        def.Name,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: def.Output,
		Annotations:  annotations,
	}
}
