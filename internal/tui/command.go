package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"f": "filter",
	"p": "platform",
	"r": "refresh",
	"h": "help",
	"?": "help",
	"q": "quit",
}

// ParseCommand parses a command string (without the leading ':'). Short
// aliases resolve to their full name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// ParsePlatform maps a user-typed platform name to a crm.Platform. "all"
// and the empty string mean no platform restriction.
func ParsePlatform(s string) (crm.Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "*":
		return "", nil
	case "whatsapp", "wa":
		return crm.PlatformWhatsApp, nil
	case "instagram", "ig":
		return crm.PlatformInstagram, nil
	case "email", "mail":
		return crm.PlatformEmail, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ParseFilter reads the filter prompt: free text plus an optional
// "p:<platform>" (or "platform:<platform>") token anywhere in it.
func ParseFilter(input string) (inbox.Filter, error) {
	var f inbox.Filter
	var words []string
	for _, w := range strings.Fields(input) {
		lower := strings.ToLower(w)
		if v, ok := strings.CutPrefix(lower, "p:"); ok {
			p, err := ParsePlatform(v)
			if err != nil {
				return inbox.Filter{}, err
			}
			f.Platform = p
			continue
		}
		if v, ok := strings.CutPrefix(lower, "platform:"); ok {
			p, err := ParsePlatform(v)
			if err != nil {
				return inbox.Filter{}, err
			}
			f.Platform = p
			continue
		}
		words = append(words, w)
	}
	f.Query = strings.Join(words, " ")
	return f, nil
}

// FormatFilter is the inverse of ParseFilter, used to prefill the prompt.
func FormatFilter(f inbox.Filter) string {
	parts := make([]string, 0, 2)
	if f.Query != "" {
		parts = append(parts, f.Query)
	}
	if f.Platform != "" {
		parts = append(parts, "p:"+string(f.Platform))
	}
	return strings.Join(parts, " ")
}
