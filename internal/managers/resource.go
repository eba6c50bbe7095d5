package managers

import (
	"context"
	"fmt"

	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// ResourceHandler generates the contents for a resource URI on demand
type ResourceHandler func(ctx context.Context, uri string) (interface{}, error)

// ResourceManager manages resources and resource templates, keyed by URI
// and URI template respectively.
type ResourceManager struct {
	resources *registry[mcp.Resource]
	templates *registry[mcp.ResourceTemplate]
	handlers  map[string]ResourceHandler
}

// NewResourceManager creates a resource manager
func NewResourceManager(onUpdate UpdateHook) *ResourceManager {
	equalResource := func(a, b mcp.Resource) bool { return a == b }
	equalTemplate := func(a, b mcp.ResourceTemplate) bool { return a == b }
	return &ResourceManager{
		resources: newRegistry("resource", equalResource, onUpdate),
		templates: newRegistry("resource template", equalTemplate, onUpdate),
		handlers:  make(map[string]ResourceHandler),
	}
}

// ListResources returns all resources in insertion order
func (m *ResourceManager) ListResources() []mcp.Resource {
	return m.resources.list()
}

// ListTemplates returns all resource templates in insertion order
func (m *ResourceManager) ListTemplates() []mcp.ResourceTemplate {
	return m.templates.list()
}

// AddResource adds a resource with an optional content handler. Equal
// replacements are no-ops.
func (m *ResourceManager) AddResource(resource mcp.Resource, handler ResourceHandler) {
	m.resources.add(resource.URI, resource)
	if handler != nil {
		m.handlers[resource.URI] = handler
	}
}

// RemoveResource removes a resource by URI
func (m *ResourceManager) RemoveResource(uri string) (mcp.Resource, error) {
	resource, err := m.resources.remove(uri)
	if err != nil {
		return mcp.Resource{}, err
	}
	delete(m.handlers, uri)
	return resource, nil
}

// HasResource reports whether a resource is registered under the URI
func (m *ResourceManager) HasResource(uri string) bool {
	return m.resources.has(uri)
}

// AddTemplate adds a resource template. Equal replacements are no-ops.
func (m *ResourceManager) AddTemplate(template mcp.ResourceTemplate) {
	m.templates.add(template.URITemplate, template)
}

// RemoveTemplate removes a resource template by URI template
func (m *ResourceManager) RemoveTemplate(uriTemplate string) (mcp.ResourceTemplate, error) {
	return m.templates.remove(uriTemplate)
}

// ReadResource reads a resource by URI. A registered handler takes
// precedence over static contents.
func (m *ResourceManager) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	if handler, ok := m.handlers[uri]; ok {
		result, err := handler(ctx, uri)
		if err != nil {
			return nil, mcp.WrapError(mcp.KindResource, err, "failed to read resource %q", uri)
		}
		return convertHandlerResult(uri, result), nil
	}

	if !m.resources.has(uri) {
		return nil, mcp.NotFoundError("resource %q not found", uri)
	}

	return []mcp.ResourceContents{{URI: uri}}, nil
}

// Clear removes all resources, templates, and handlers
func (m *ResourceManager) Clear() {
	m.resources.clear()
	m.templates.clear()
	m.handlers = make(map[string]ResourceHandler)
}

// Len returns the number of registered resources
func (m *ResourceManager) Len() int {
	return m.resources.len()
}

// convertHandlerResult normalizes handler return values into contents
func convertHandlerResult(uri string, result interface{}) []mcp.ResourceContents {
	switch v := result.(type) {
	case string:
		return []mcp.ResourceContents{{URI: uri, Text: v}}
	case mcp.ResourceContents:
		if v.URI == "" {
			v.URI = uri
		}
		return []mcp.ResourceContents{v}
	case []mcp.ResourceContents:
		return v
	default:
		return []mcp.ResourceContents{{URI: uri, Text: fmt.Sprintf("%v", v)}}
	}
}
