package handler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ControlTemplate describes where a control lives and how to activate it.
// Terminal variants use Label (text to find) and Keys (sequence to send);
// desktop variants use Offset relative to the window origin.
type ControlTemplate struct {
	// Label is the visible text identifying the control.
	Label string `yaml:"label"`
	// Keys is the key sequence terminal handlers send to activate it.
	Keys string `yaml:"keys"`
	// Offset is the click point relative to the window's top-left corner.
	Offset struct {
		X int `yaml:"x"`
		Y int `yaml:"y"`
	} `yaml:"offset"`
	// Size is the approximate control extent (optional).
	Size struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"size"`
}

// Templates holds the control definitions for one interface.
type Templates struct {
	Controls map[ControlKind]ControlTemplate `yaml:"controls"`
}

// DefaultTemplates returns built-in control definitions that work for the
// common LLM interfaces without a templates file.
func DefaultTemplates() *Templates {
	t := &Templates{Controls: map[ControlKind]ControlTemplate{}}

	cont := ControlTemplate{Label: "Continue", Keys: "Enter"}
	cont.Offset.X, cont.Offset.Y = 400, 500
	t.Controls[ControlContinue] = cont

	ns := ControlTemplate{Label: "New conversation", Keys: ""}
	ns.Offset.X, ns.Offset.Y = 100, 100
	t.Controls[ControlNewSession] = ns

	input := ControlTemplate{Label: "", Keys: ""}
	input.Offset.X, input.Offset.Y = 400, 600
	t.Controls[ControlInput] = input

	return t
}

// LoadTemplates reads control definitions from a YAML file, layering them
// over the defaults. An empty path returns the defaults.
func LoadTemplates(path string) (*Templates, error) {
	t := DefaultTemplates()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates %s: %w", path, err)
	}

	var loaded Templates
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing templates %s: %w", path, err)
	}
	for kind, tmpl := range loaded.Controls {
		t.Controls[kind] = tmpl
	}
	return t, nil
}

// Lookup returns the template for a control kind.
func (t *Templates) Lookup(kind ControlKind) (ControlTemplate, bool) {
	tmpl, ok := t.Controls[kind]
	return tmpl, ok
}
