package tui

import "strings"

// commandNames lists the slash commands the command bar accepts.
var commandNames = []string{"/restart", "/reinstall", "/sync", "/diff", "/help", "/quit"}

// Command represents a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command. Names are
// matched case-insensitively. Returns nil if the input is not a command.
func ParseCommand(input string) *Command {
	input = strings.TrimSpace(input)
	if input == "" || input[0] != '/' {
		return nil
	}

	parts := strings.Fields(input)
	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// Complete returns the known commands that start with prefix.
func Complete(prefix string) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	var out []string
	for _, name := range commandNames {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}
