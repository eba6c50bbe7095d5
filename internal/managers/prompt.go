package managers

import (
	"fmt"
	"reflect"

	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// PromptFunc generates prompt messages from validated arguments
type PromptFunc func(arguments map[string]string) ([]mcp.PromptMessage, error)

// PromptHandler couples a prompt definition with its message generator and
// validates required arguments before invoking it.
type PromptHandler struct {
	Prompt  mcp.Prompt
	Handler PromptFunc
}

// NewPromptHandler creates a handler. When fn is nil, a default handler
// returning the prompt description as a single user message is used.
func NewPromptHandler(prompt mcp.Prompt, fn PromptFunc) *PromptHandler {
	if fn == nil {
		fn = func(map[string]string) ([]mcp.PromptMessage, error) {
			text := prompt.Description
			if text == "" {
				text = fmt.Sprintf("Prompt: %s", prompt.Name)
			}
			return []mcp.PromptMessage{{
				Role:    "user",
				Content: mcp.NewTextContent(text),
			}}, nil
		}
	}
	return &PromptHandler{Prompt: prompt, Handler: fn}
}

// GetMessages validates required arguments and produces the prompt messages
func (h *PromptHandler) GetMessages(arguments map[string]string) ([]mcp.PromptMessage, error) {
	if arguments == nil {
		arguments = map[string]string{}
	}
	for _, arg := range h.Prompt.Arguments {
		if arg.Required {
			if _, ok := arguments[arg.Name]; !ok {
				return nil, mcp.PromptError("required argument %q not provided", arg.Name)
			}
		}
	}
	return h.Handler(arguments)
}

// PromptManager manages prompts for the MCP server, keyed by prompt name
type PromptManager struct {
	reg *registry[*PromptHandler]
}

// NewPromptManager creates a prompt manager
func NewPromptManager(onUpdate UpdateHook) *PromptManager {
	equal := func(a, b *PromptHandler) bool {
		return reflect.DeepEqual(a.Prompt, b.Prompt)
	}
	return &PromptManager{
		reg: newRegistry("prompt", equal, onUpdate),
	}
}

// ListPrompts returns all prompt definitions in insertion order
func (m *PromptManager) ListPrompts() []mcp.Prompt {
	handlers := m.reg.list()
	out := make([]mcp.Prompt, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h.Prompt)
	}
	return out
}

// AddPrompt adds a prompt with an optional handler. Equal replacements are
// no-ops.
func (m *PromptManager) AddPrompt(prompt mcp.Prompt, fn PromptFunc) {
	m.reg.add(prompt.Name, NewPromptHandler(prompt, fn))
}

// RemovePrompt removes a prompt by name
func (m *PromptManager) RemovePrompt(name string) (mcp.Prompt, error) {
	handler, err := m.reg.remove(name)
	if err != nil {
		return mcp.Prompt{}, err
	}
	return handler.Prompt, nil
}

// HasPrompt reports whether a prompt is registered under the name
func (m *PromptManager) HasPrompt(name string) bool {
	return m.reg.has(name)
}

// GetPrompt generates the prompt result for the given arguments
func (m *PromptManager) GetPrompt(name string, arguments map[string]string) (*mcp.GetPromptResult, error) {
	handler, err := m.reg.get(name)
	if err != nil {
		return nil, err
	}

	messages, err := handler.GetMessages(arguments)
	if err != nil {
		if mcp.IsKind(err, mcp.KindPrompt) {
			return nil, err
		}
		return nil, mcp.WrapError(mcp.KindPrompt, err, "error generating prompt %q", name)
	}

	return &mcp.GetPromptResult{
		Description: handler.Prompt.Description,
		Messages:    messages,
	}, nil
}

// Clear removes all prompts
func (m *PromptManager) Clear() {
	m.reg.clear()
}

// Len returns the number of registered prompts
func (m *PromptManager) Len() int {
	return m.reg.len()
}
