package managers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

func newTool(t *testing.T, toolkit, name string) *tools.MaterializedTool {
	t.Helper()
	def := &tools.Definition{
		Name:    name,
		Toolkit: toolkit,
		Input: tools.InputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"x": map[string]interface{}{"type": "string"},
			},
		},
	}
	tool, err := tools.NewMaterializedTool(def, func(_ context.Context, _ *tools.ToolContext, _ map[string]interface{}) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	return tool
}

func TestToolManagerSeededFromCatalog(t *testing.T) {
	catalog := tools.NewCatalog()
	catalog.Add(newTool(t, "notes", "create"), "notes")
	catalog.Add(newTool(t, "notes", "delete"), "notes")

	m := NewToolManager(catalog, nil)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.HasTool("notes.create"))
}

func TestToolManagerEqualityGatedAdd(t *testing.T) {
	catalog := tools.NewCatalog()
	updates := 0
	m := NewToolManager(catalog, func(string) { updates++ })

	tool := newTool(t, "notes", "create")
	m.AddTool(tool)
	assert.Equal(t, 0, updates, "first add is not an update")

	// Equal definition: no-op
	m.AddTool(newTool(t, "notes", "create"))
	assert.Equal(t, 0, updates)

	// Different input schema: replace and fire hook
	changed := newTool(t, "notes", "create")
	changed.Definition.Input.Required = []string{"x"}
	m.AddTool(changed)
	assert.Equal(t, 1, updates)
}

func TestToolManagerListTools(t *testing.T) {
	catalog := tools.NewCatalog()
	tool := newTool(t, "gmail", "send")
	tool.Definition.Description = "Send an email"
	tool.Definition.Requirements.Authorization = &tools.AuthRequirement{
		ProviderID: "google", ProviderType: "oauth2", Scopes: []string{"gmail.send"},
	}
	catalog.Add(tool, "gmail")

	m := NewToolManager(catalog, nil)
	listed := m.ListTools()
	require.Len(t, listed, 1)

	got := listed[0]
	assert.Equal(t, "gmail.send", got.Name)
	assert.Equal(t, "send", got.Title)
	assert.Contains(t, got.Description, "Send an email")
	assert.Contains(t, got.Description, "from gmail")
	assert.Equal(t, "object", got.InputSchema["type"])

	require.NotNil(t, got.Annotations)
	require.NotNil(t, got.Annotations.ReadOnlyHint)
	assert.False(t, *got.Annotations.ReadOnlyHint, "auth requirement implies not read-only")
	require.NotNil(t, got.Annotations.OpenWorldHint)
	assert.True(t, *got.Annotations.OpenWorldHint)
}

func TestToMCPToolDeprecation(t *testing.T) {
	tool := newTool(t, "legacy", "old")
	tool.Definition.Description = "Old tool"
	tool.Definition.DeprecationMessage = "use legacy.new"

	got := ToMCPTool(tool)
	assert.Contains(t, got.Description, "[DEPRECATED: use legacy.new]")
}

func TestResourceManagerCRUD(t *testing.T) {
	updates := 0
	m := NewResourceManager(func(string) { updates++ })

	res := mcp.Resource{URI: "file://a", Name: "a"}
	m.AddResource(res, nil)
	assert.True(t, m.HasResource("file://a"))
	assert.Equal(t, 0, updates)

	// Equal resource: no-op
	m.AddResource(res, nil)
	assert.Equal(t, 0, updates)

	// Changed resource: hook fires
	m.AddResource(mcp.Resource{URI: "file://a", Name: "renamed"}, nil)
	assert.Equal(t, 1, updates)

	removed, err := m.RemoveResource("file://a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", removed.Name)

	_, err = m.RemoveResource("file://a")
	require.Error(t, err)
	assert.True(t, mcp.IsKind(err, mcp.KindNotFound))
}

func TestResourceManagerReadWithHandler(t *testing.T) {
	m := NewResourceManager(nil)
	m.AddResource(mcp.Resource{URI: "file://notes", Name: "notes"}, func(_ context.Context, uri string) (interface{}, error) {
		return "hello", nil
	})

	contents, err := m.ReadResource(context.Background(), "file://notes")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "file://notes", contents[0].URI)
	assert.Equal(t, "hello", contents[0].Text)

	_, err = m.ReadResource(context.Background(), "file://missing")
	require.Error(t, err)
	assert.True(t, mcp.IsKind(err, mcp.KindNotFound))
}

func TestResourceTemplates(t *testing.T) {
	m := NewResourceManager(nil)
	m.AddTemplate(mcp.ResourceTemplate{URITemplate: "file://{name}", Name: "files"})

	templates := m.ListTemplates()
	require.Len(t, templates, 1)
	assert.Equal(t, "file://{name}", templates[0].URITemplate)

	_, err := m.RemoveTemplate("file://{other}")
	assert.Error(t, err)
}

func TestPromptManagerRequiredArguments(t *testing.T) {
	m := NewPromptManager(nil)
	m.AddPrompt(mcp.Prompt{
		Name:        "summarize",
		Description: "Summarize a document",
		Arguments: []mcp.PromptArgument{
			{Name: "doc", Required: true},
		},
	}, func(args map[string]string) ([]mcp.PromptMessage, error) {
		return []mcp.PromptMessage{{
			Role:    "user",
			Content: mcp.NewTextContent("Summarize: " + args["doc"]),
		}}, nil
	})

	result, err := m.GetPrompt("summarize", map[string]string{"doc": "report.txt"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Summarize: report.txt", result.Messages[0].Content.Text)

	_, err = m.GetPrompt("summarize", nil)
	require.Error(t, err)
	assert.True(t, mcp.IsKind(err, mcp.KindPrompt))

	_, err = m.GetPrompt("missing", nil)
	require.Error(t, err)
	assert.True(t, mcp.IsKind(err, mcp.KindNotFound))
}

func TestPromptManagerDefaultHandler(t *testing.T) {
	m := NewPromptManager(nil)
	m.AddPrompt(mcp.Prompt{Name: "greet", Description: "Say hello"}, nil)

	result, err := m.GetPrompt("greet", nil)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Say hello", result.Messages[0].Content.Text)
}

func TestPromptManagerEqualityGate(t *testing.T) {
	updates := 0
	m := NewPromptManager(func(string) { updates++ })

	prompt := mcp.Prompt{Name: "greet", Description: "Say hello"}
	m.AddPrompt(prompt, nil)
	m.AddPrompt(prompt, nil)
	assert.Equal(t, 0, updates)

	prompt.Description = "Wave instead"
	m.AddPrompt(prompt, nil)
	assert.Equal(t, 1, updates)
}
