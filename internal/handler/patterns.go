package handler

import (
	"regexp"
	"strings"

	"github.com/vigil-sh/vigil/internal/state"
)

// ansiEscapeRegex matches ANSI escape sequences for stripping.
// Includes CSI sequences (with private mode ?) and OSC sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a\x1b]*(\a|\x1b\\)`)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// statePattern maps a textual indicator in captured output to a session
// state with a heuristic confidence.
type statePattern struct {
	State state.SessionState
	// Regex is a compiled regular expression for matching (optional)
	Regex *regexp.Regexp
	// Literal is a simple substring to search for (optional, faster than regex)
	Literal string
	// Confidence is the heuristic certainty when this pattern matches
	Confidence float64
	// Description explains what this pattern matches (surfaced as evidence)
	Description string
	// Systemic marks error patterns that indicate a failure beyond the
	// interface itself; these are never auto-recovered.
	Systemic bool
}

// statePatterns contains all known indicators, ordered by priority.
// First match per state wins; states are evaluated in the order
// rate_limited > error > paused > ended > active > ready.
var statePatterns = []statePattern{
	// Rate limiting (transient, drives loop backoff)
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)rate[\s._-]?limit`), Confidence: 0.95, Description: "rate limit message"},
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)(http|status|error|code).{0,10}\b429\b`), Confidence: 0.9, Description: "HTTP 429 status"},
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)too many requests`), Confidence: 0.9, Description: "too many requests"},
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)quota exceeded`), Confidence: 0.9, Description: "quota exceeded"},
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)you('ve| have) reached your (usage |rate )?limit`), Confidence: 0.95, Description: "usage limit reached"},
	{State: state.StateRateLimited, Regex: regexp.MustCompile(`(?i)try again (later|in)`), Confidence: 0.7, Description: "retry-later message"},

	// Errors. Auth problems are systemic: relaunching won't fix credentials.
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)(invalid|expired|missing)[\s._-]?(api[\s._-]?)?(key|token|credential)`), Confidence: 0.9, Description: "invalid credentials", Systemic: true},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)authentication (failed|error|required)`), Confidence: 0.9, Description: "authentication failure", Systemic: true},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)\bunauthorized\b`), Confidence: 0.8, Description: "unauthorized", Systemic: true},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)no space left on device`), Confidence: 0.9, Description: "disk full", Systemic: true},
	{State: state.StateError, Literal: "panic:", Confidence: 0.9, Description: "panic in output"},
	{State: state.StateError, Literal: "Segmentation fault", Confidence: 0.9, Description: "segfault"},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)something went wrong`), Confidence: 0.85, Description: "generic interface error"},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)connection (refused|reset|closed|timed?\s*out)`), Confidence: 0.8, Description: "connection issue"},
	{State: state.StateError, Literal: "ECONNREFUSED", Confidence: 0.8, Description: "ECONNREFUSED"},
	{State: state.StateError, Regex: regexp.MustCompile(`(?i)network (error|unreachable)`), Confidence: 0.8, Description: "network error"},

	// Paused: a continue control is being offered
	{State: state.StatePaused, Regex: regexp.MustCompile(`(?i)\bcontinue\b.{0,30}(button|\?|generating)`), Confidence: 0.85, Description: "continue offer"},
	{State: state.StatePaused, Regex: regexp.MustCompile(`(?i)response (was )?(truncated|cut off)`), Confidence: 0.9, Description: "truncated response"},
	{State: state.StatePaused, Regex: regexp.MustCompile(`(?i)hit the max(imum)? (length|output)`), Confidence: 0.9, Description: "max length reached"},
	{State: state.StatePaused, Regex: regexp.MustCompile(`(?i)press (enter|return) to continue`), Confidence: 0.95, Description: "press-enter prompt"},

	// Ended: conversation over, new session needed
	{State: state.StateEnded, Regex: regexp.MustCompile(`(?i)start a new (conversation|chat|session)`), Confidence: 0.9, Description: "new conversation prompt"},
	{State: state.StateEnded, Regex: regexp.MustCompile(`(?i)conversation (is too long|limit reached|has ended)`), Confidence: 0.9, Description: "conversation limit"},
	{State: state.StateEnded, Regex: regexp.MustCompile(`(?i)session (has )?(ended|expired)`), Confidence: 0.9, Description: "session ended message"},

	// Active: the model is generating
	{State: state.StateActive, Regex: regexp.MustCompile(`(?i)esc to interrupt`), Confidence: 0.9, Description: "interrupt hint visible"},
	{State: state.StateActive, Regex: regexp.MustCompile(`(?i)\b(thinking|pondering|working|generating)(\.{3}|…)`), Confidence: 0.85, Description: "thinking indicator"},
	{State: state.StateActive, Regex: regexp.MustCompile(`[✻✽✢·✳]\s+\w+ing`), Confidence: 0.8, Description: "spinner glyph"},
}

// promptPatterns detect an idle input prompt, keyed by agent type.
// An empty AgentType applies to all types.
type promptPattern struct {
	AgentType   string
	Regex       *regexp.Regexp
	Description string
}

var promptPatterns = []promptPattern{
	{AgentType: "claude", Regex: regexp.MustCompile(`(?i)claude>?\s*$`), Description: "claude prompt"},
	{AgentType: "claude", Regex: regexp.MustCompile(`>\s*$`), Description: "claude simple prompt"},
	{AgentType: "codex", Regex: regexp.MustCompile(`(?i)codex>?\s*$`), Description: "codex prompt"},
	{AgentType: "gemini", Regex: regexp.MustCompile(`(?i)gemini>?\s*$`), Description: "gemini prompt"},
	{AgentType: "", Regex: regexp.MustCompile(`>\s*$`), Description: "generic > prompt"},
}

// knownAgentTypes have their own prompt patterns. A bare shell prompt in
// one of these panes means the agent process exited, not that it is ready.
var knownAgentTypes = map[string]bool{
	"claude": true,
	"codex":  true,
	"gemini": true,
}

// shellPromptRegex matches a plain shell prompt at end of line.
var shellPromptRegex = regexp.MustCompile(`[$%]\s*$`)

// DetectHints analyzes captured interface text and returns heuristic state
// readings, strongest first. agentType selects prompt pattern families for
// terminal interfaces; pass "" for desktop captures without text.
func DetectHints(text, agentType string) []Hint {
	clean := StripANSI(text)
	if strings.TrimSpace(clean) == "" {
		return nil
	}

	// Scan recent output only (last 50 lines) for relevance
	lines := strings.Split(clean, "\n")
	start := len(lines) - 50
	if start < 0 {
		start = 0
	}
	recent := strings.Join(lines[start:], "\n")

	var hints []Hint
	matched := make(map[state.SessionState]bool)
	for _, p := range statePatterns {
		if matched[p.State] {
			continue
		}
		if p.Regex != nil && p.Regex.MatchString(recent) {
			matched[p.State] = true
			hints = append(hints, Hint{State: p.State, Confidence: p.Confidence, Evidence: p.Description})
			continue
		}
		if p.Literal != "" && strings.Contains(recent, p.Literal) {
			matched[p.State] = true
			hints = append(hints, Hint{State: p.State, Confidence: p.Confidence, Evidence: p.Description})
		}
	}

	// An idle prompt only means ready when nothing stronger matched.
	if len(hints) == 0 {
		if isReadyPrompt(recent, agentType) {
			hints = append(hints, Hint{State: state.StateReady, Confidence: 0.8, Evidence: "input prompt visible"})
		} else if knownAgentTypes[agentType] && shellPromptAtEnd(recent) {
			// Shell prompt in an agent pane: the agent exited.
			hints = append(hints, Hint{State: state.StateEnded, Confidence: 0.8, Evidence: "agent process exited to shell"})
		}
	}

	return hints
}

// isReadyPrompt checks the last few non-empty lines for an input prompt.
func isReadyPrompt(text, agentType string) bool {
	lines := strings.Split(text, "\n")
	const maxLinesToCheck = 3
	checked := 0
	for i := len(lines) - 1; i >= 0 && checked < maxLinesToCheck; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		checked++
		for _, p := range promptPatterns {
			if p.AgentType != "" && p.AgentType != agentType {
				continue
			}
			if p.Regex.MatchString(line) {
				return true
			}
		}
	}
	return false
}

// shellPromptAtEnd reports whether the last non-empty line looks like a
// plain shell prompt.
func shellPromptAtEnd(text string) bool {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return shellPromptRegex.MatchString(line)
	}
	return false
}

// IsSystemicError reports whether the given evidence strings contain a
// marker for a systemic failure (credentials, disk) that relaunching the
// interface cannot fix.
func IsSystemicError(evidence []string) bool {
	for _, ev := range evidence {
		for _, p := range statePatterns {
			if p.Systemic && p.Description == ev {
				return true
			}
		}
	}
	return false
}
