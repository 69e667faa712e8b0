package router

import (
	"html"
	"strings"
)

// HelpText lists the commands available to the caller, admin commands
// only for admins. The result is HTML.
func (m *CommandManager) HelpText(admin bool, title string) string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessAdmin && !admin) {
			continue
		}
		b.WriteString("/")
		b.WriteString(c.Name)
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(" — ")
			b.WriteString(html.EscapeString(d))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
