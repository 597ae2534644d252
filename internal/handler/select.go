package handler

import (
	"fmt"

	"github.com/vigil-sh/vigil/internal/config"
)

// New builds the handler variant an interface is configured with.
// Variant selection happens here once, never by conditionals inside the
// monitor loop.
func New(name string, ic config.InterfaceConfig) (Handler, error) {
	templates, err := LoadTemplates(config.ExpandPath(ic.TemplatesFile))
	if err != nil {
		return nil, err
	}

	switch ic.Handler {
	case "tmux":
		target := ic.Target
		if target == "" {
			return nil, fmt.Errorf("interface %s: tmux handler requires a target", name)
		}
		return NewTmuxHandler(name, target, ic.AgentType, templates), nil
	case "desktop":
		if ic.WindowTitle == "" {
			return nil, fmt.Errorf("interface %s: desktop handler requires a window title", name)
		}
		return NewDesktopHandler(name, ic.WindowTitle, templates), nil
	default:
		return nil, fmt.Errorf("interface %s: unknown handler %q", name, ic.Handler)
	}
}
