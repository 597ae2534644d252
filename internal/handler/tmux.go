package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vigil-sh/vigil/internal/state"
)

// captureScrollback is how many lines of pane history each frame includes.
const captureScrollback = 200

// activityDiffThreshold is the minimum number of changed characters between
// consecutive frames to count as generation activity.
const activityDiffThreshold = 20

// TmuxHandler drives a terminal LLM CLI running inside a tmux pane.
// Frames are pane text captures; clicks become key sequences.
type TmuxHandler struct {
	name      string
	target    string // tmux target, e.g. "vigil:0"
	agentType string
	templates *Templates
	runner    commandRunner

	mu       sync.Mutex
	lastText string // previous frame text, for the diff activity signal
}

// NewTmuxHandler creates a handler bound to a tmux target.
func NewTmuxHandler(name, target, agentType string, templates *Templates) *TmuxHandler {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &TmuxHandler{
		name:      name,
		target:    target,
		agentType: agentType,
		templates: templates,
		runner:    execRunner{},
	}
}

// Name returns the bound interface name.
func (h *TmuxHandler) Name() string { return h.name }

// LocateWindow resolves the tmux pane. A missing session or pane maps to
// ErrWindowNotFound so the classifier can treat it as ended-session evidence.
func (h *TmuxHandler) LocateWindow(ctx context.Context) (WindowHandle, error) {
	out, err := h.runner.run(ctx, "tmux", "display-message", "-p", "-t", h.target,
		"#{pane_id} #{pane_width} #{pane_height} #{pane_title}")
	if err != nil {
		if strings.Contains(err.Error(), "can't find") || strings.Contains(err.Error(), "no server") {
			return WindowHandle{}, ErrWindowNotFound
		}
		return WindowHandle{}, err
	}

	fields := strings.SplitN(strings.TrimSpace(out), " ", 4)
	if len(fields) < 3 {
		return WindowHandle{}, fmt.Errorf("unexpected tmux output %q", out)
	}
	w, _ := strconv.Atoi(fields[1])
	ht, _ := strconv.Atoi(fields[2])
	handle := WindowHandle{
		ID:     fields[0],
		Region: Region{Width: w, Height: ht},
	}
	if len(fields) == 4 {
		handle.Title = fields[3]
	}
	return handle, nil
}

// CaptureRegion captures the pane contents including recent scrollback.
func (h *TmuxHandler) CaptureRegion(ctx context.Context, w WindowHandle) (Frame, error) {
	out, err := h.runner.run(ctx, "tmux", "capture-pane", "-p", "-t", w.ID,
		"-S", fmt.Sprintf("-%d", captureScrollback))
	if err != nil {
		return Frame{}, fmt.Errorf("capturing pane %s: %w", w.ID, err)
	}
	return Frame{
		Text:       out,
		Region:     w.Region,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// FindControl searches the current pane text for the control's label.
// Controls with empty labels (like the input area) always resolve: a
// terminal pane is its own input area.
func (h *TmuxHandler) FindControl(ctx context.Context, w WindowHandle, kind ControlKind) (Control, error) {
	tmpl, ok := h.templates.Lookup(kind)
	if !ok {
		return Control{}, ErrControlNotFound
	}

	if tmpl.Label == "" {
		return Control{Kind: kind, Keys: tmpl.Keys, Region: w.Region}, nil
	}

	frame, err := h.CaptureRegion(ctx, w)
	if err != nil {
		return Control{}, err
	}
	if !strings.Contains(StripANSI(frame.Text), tmpl.Label) {
		return Control{}, ErrControlNotFound
	}
	return Control{Kind: kind, Label: tmpl.Label, Keys: tmpl.Keys, Region: w.Region}, nil
}

// Click sends the control's key sequence. A control without keys is a no-op,
// which keeps repeated continue clicks harmless.
func (h *TmuxHandler) Click(ctx context.Context, c Control) error {
	if c.Keys == "" {
		return nil
	}
	_, err := h.runner.run(ctx, "tmux", "send-keys", "-t", h.target, c.Keys)
	return err
}

// TypeText sends literal text to the pane followed by Enter.
func (h *TmuxHandler) TypeText(ctx context.Context, w WindowHandle, text string) error {
	if _, err := h.runner.run(ctx, "tmux", "send-keys", "-t", h.target, "-l", text); err != nil {
		return fmt.Errorf("typing into %s: %w", h.target, err)
	}
	_, err := h.runner.run(ctx, "tmux", "send-keys", "-t", h.target, "Enter")
	return err
}

// Hints combines pattern heuristics over the pane text with a frame-to-frame
// diff signal: materially changed output means generation is in progress.
func (h *TmuxHandler) Hints(f Frame) []Hint {
	hints := DetectHints(f.Text, h.agentType)

	h.mu.Lock()
	prev := h.lastText
	h.lastText = f.Text
	h.mu.Unlock()

	if prev != "" {
		changed := diffSize(prev, f.Text)
		if changed >= activityDiffThreshold {
			hints = append(hints, Hint{
				State:      state.StateActive,
				Confidence: 0.75,
				Evidence:   fmt.Sprintf("output advanced by %d chars since last frame", changed),
			})
		}
	}
	return hints
}

// diffSize returns the number of inserted/deleted characters between two
// pane captures.
func diffSize(a, b string) int {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	changed := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed += len(d.Text)
		}
	}
	return changed
}
