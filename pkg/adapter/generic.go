package adapter

// Generic is the passthrough adapter for platforms without a dedicated
// vendor implementation. Commands are the action string itself and
// output is never parsed, only passed through raw.
type Generic struct{}

// NewGeneric creates the passthrough adapter.
func NewGeneric() *Generic { return &Generic{} }

// Platform returns the generic platform tag.
func (a *Generic) Platform() string { return "generic" }

// SupportedActions returns nil: the generic adapter accepts any action
// whose params carry the literal command.
func (a *Generic) SupportedActions() []string { return nil }

// ConnectCommands returns nothing; unknown platforms get no setup.
func (a *Generic) ConnectCommands() []string { return nil }

// CommandFor passes the "command" parameter through verbatim, or the
// action name itself when no explicit command is given.
func (a *Generic) CommandFor(action string, params Params) (string, error) {
	if cmd := params["command"]; cmd != "" {
		return cmd, nil
	}
	return action, nil
}

// Parse returns the output untouched.
func (a *Generic) Parse(action, raw string) ParseResult {
	return ParseResult{Raw: raw}
}
