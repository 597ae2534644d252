// Package classify turns captured frames into merged session-state readings.
// It queries a prioritized list of providers, absorbs their failures, and
// applies an explicit, testable merge policy. Classification never fails:
// the worst outcome is an unknown reading with zero confidence.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/provider"
	"github.com/vigil-sh/vigil/internal/state"
)

// DisagreementPenalty is subtracted from the winning confidence when two
// providers disagree on the state. Tunable; the invariant is that a merged
// disagreement never exceeds the higher raw confidence.
const DisagreementPenalty = 0.15

// HeuristicProvider is the provider name attached to short-circuit results.
const HeuristicProvider = "heuristic"

// Classifier merges provider outputs into a single state reading.
type Classifier struct {
	primary   provider.Provider
	secondary provider.Provider // may be nil
	cfg       config.ClassifierConfig
}

// New creates a classifier. secondary may be nil when only one backend is
// configured.
func New(primary, secondary provider.Provider, cfg config.ClassifierConfig) *Classifier {
	return &Classifier{primary: primary, secondary: secondary, cfg: cfg}
}

// Classify produces a merged classification for one frame.
//
// Handler hints above the configured threshold short-circuit the provider
// call entirely; this is a latency/cost optimization, and providers remain
// the source of truth when hints are inconclusive. Provider failures fall
// back to the secondary backend; if everything fails the result is unknown
// with zero confidence and the failures listed as evidence.
func (c *Classifier) Classify(ctx context.Context, frame handler.Frame, hints []handler.Hint, promptContext string) state.Result {
	if hint, ok := strongestHint(hints); ok && hint.Confidence >= c.cfg.HeuristicThreshold {
		res, err := state.NewResult(hint.State, hint.Confidence, HeuristicProvider, hint.Evidence)
		if err == nil {
			return res
		}
	}

	promptContext = appendHintContext(promptContext, hints)

	primaryRes, primaryErr := c.query(ctx, c.primary, frame, promptContext)

	if primaryErr == nil && (!c.cfg.UseSecondary || c.secondary == nil) {
		return primaryRes
	}

	if c.secondary == nil {
		if primaryErr != nil {
			return state.Unknown(state.MergedProvider, primaryErr.Error())
		}
		return primaryRes
	}

	secondaryRes, secondaryErr := c.query(ctx, c.secondary, frame, promptContext)

	switch {
	case primaryErr == nil && secondaryErr == nil:
		return Merge(primaryRes, secondaryRes)
	case primaryErr == nil:
		return primaryRes
	case secondaryErr == nil:
		return secondaryRes
	default:
		return state.Unknown(state.MergedProvider, primaryErr.Error(), secondaryErr.Error())
	}
}

// query runs one provider call under the configured timeout.
func (c *Classifier) query(ctx context.Context, p provider.Provider, frame handler.Frame, promptContext string) (state.Result, error) {
	if p == nil {
		return state.Result{}, fmt.Errorf("provider not configured")
	}
	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Classify(callCtx, frame, promptContext)
}

// Merge combines two provider results for the same frame.
//
// Agreement strengthens: the merged confidence is the max of the two
// (corroboration, capped at 1.0 by construction). Disagreement weakens:
// the higher-confidence state wins, but its confidence is reduced by
// DisagreementPenalty and both raw readings are kept as evidence.
func Merge(a, b state.Result) state.Result {
	merged := state.Result{
		Provider:  state.MergedProvider,
		Timestamp: time.Now().UTC(),
	}

	if a.State == b.State {
		merged.State = a.State
		merged.Confidence = a.Confidence
		if b.Confidence > merged.Confidence {
			merged.Confidence = b.Confidence
		}
		merged.Evidence = append(merged.Evidence, a.Evidence...)
		merged.Evidence = append(merged.Evidence, b.Evidence...)
		merged.Evidence = append(merged.Evidence,
			fmt.Sprintf("providers %s and %s agree on %s", a.Provider, b.Provider, a.State))
		return merged
	}

	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}
	merged.State = winner.State
	merged.Confidence = winner.Confidence - DisagreementPenalty
	if merged.Confidence < 0 {
		merged.Confidence = 0
	}
	merged.Evidence = append(merged.Evidence,
		fmt.Sprintf("%s read %s at %.2f", winner.Provider, winner.State, winner.Confidence),
		fmt.Sprintf("%s read %s at %.2f (disagreement)", loser.Provider, loser.State, loser.Confidence))
	merged.Evidence = append(merged.Evidence, winner.Evidence...)
	merged.Evidence = append(merged.Evidence, loser.Evidence...)
	return merged
}

// strongestHint returns the highest-confidence hint.
func strongestHint(hints []handler.Hint) (handler.Hint, bool) {
	if len(hints) == 0 {
		return handler.Hint{}, false
	}
	best := hints[0]
	for _, h := range hints[1:] {
		if h.Confidence > best.Confidence {
			best = h
		}
	}
	return best, true
}

// appendHintContext folds heuristic readings into the provider prompt so
// inconclusive hints still inform the model.
func appendHintContext(promptContext string, hints []handler.Hint) string {
	for _, h := range hints {
		promptContext += fmt.Sprintf("\n- platform heuristic: %s (suggests %s at %.2f)",
			h.Evidence, h.State, h.Confidence)
	}
	return promptContext
}
