// Package adapter maps vendor platforms to command templates and
// output parsers. Adapters are stateless and shared across all
// connections; the registry is built once at engine start and
// resolution of an unknown platform fails rather than substituting a
// different vendor's commands.
package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Params carries named arguments for command rendering.
type Params map[string]string

// ParseResult is the outcome of parsing vendor output. Parsing never
// fails hard: when structured parsing is impossible the raw text is
// preserved and ParseErr carries the reason, so callers can always
// fall back to raw display.
type ParseResult struct {
	Raw      string      `json:"raw"`
	Parsed   interface{} `json:"parsed,omitempty"`
	ParseErr string      `json:"parsing_error,omitempty"`
}

// Adapter is one vendor's capability: command templates plus output
// parsers plus connection setup commands.
type Adapter interface {
	// Platform returns the platform tag this adapter serves.
	Platform() string

	// CommandFor renders the device command for an action. Fails with
	// ErrUnknownAction when the action is not defined for this vendor.
	CommandFor(action string, params Params) (string, error)

	// Parse converts raw command output into structured data. It never
	// returns an error; malformed input degrades to raw text.
	Parse(action, raw string) ParseResult

	// ConnectCommands returns the commands run right after connecting,
	// before the connection is handed out (pagination off, etc).
	ConnectCommands() []string

	// SupportedActions lists the action names this adapter defines.
	SupportedActions() []string
}

// Registry resolves platform tags to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters. Duplicate
// platform tags are an error: a tag must resolve to exactly one vendor.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("adapter registry must not be empty")
	}
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		tag := a.Platform()
		if _, dup := r.adapters[tag]; dup {
			return nil, fmt.Errorf("duplicate adapter for platform %q", tag)
		}
		r.adapters[tag] = a
	}
	return r, nil
}

// DefaultRegistry returns a registry with all built-in vendor adapters.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(NewH3C(), NewHuawei(), NewCisco(), NewGeneric())
	if err != nil {
		// Built-in adapters have distinct platform tags.
		panic(err)
	}
	return r
}

// Resolve returns the adapter for a platform tag.
func (r *Registry) Resolve(platform string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return nil, util.NewPlatformError(platform)
	}
	return a, nil
}

// Platforms lists the registered platform tags, sorted.
func (r *Registry) Platforms() []string {
	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// commandSet is the shared template-map machinery behind the vendor
// adapters: a map of action -> template with {param} placeholders and
// per-action required parameters.
type commandSet struct {
	platform string
	commands map[string]string
	required map[string][]string
}

func (c *commandSet) render(action string, params Params) (string, error) {
	tmpl, ok := c.commands[action]
	if !ok {
		return "", util.NewActionError(c.platform, action, "")
	}
	for _, p := range c.required[action] {
		if params[p] == "" {
			return "", util.NewActionError(c.platform, action,
				fmt.Sprintf("missing required parameter %q", p))
		}
	}
	cmd := tmpl
	for k, v := range params {
		cmd = strings.ReplaceAll(cmd, "{"+k+"}", v)
	}
	if i := strings.Index(cmd, "{"); i >= 0 {
		if j := strings.Index(cmd[i:], "}"); j > 0 {
			return "", util.NewActionError(c.platform, action,
				fmt.Sprintf("unbound parameter %s", cmd[i:i+j+1]))
		}
	}
	return cmd, nil
}

func (c *commandSet) actions() []string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rawResult tags output that could not be parsed structurally.
func rawResult(raw, reason string) ParseResult {
	return ParseResult{Raw: raw, ParseErr: reason}
}

// parsedResult wraps successfully parsed output, keeping the raw text.
func parsedResult(raw string, parsed interface{}) ParseResult {
	return ParseResult{Raw: raw, Parsed: parsed}
}
