// Package dispatch maps committed state transitions to recovery actions.
// Decision-making is a pure function over (state, confidence, policy) so it
// can be tested exhaustively; side effects are delegated to the interface
// handler and the session launcher.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/handler"
	"github.com/vigil-sh/vigil/internal/state"
)

// Action is a recovery action the dispatcher may take.
type Action string

const (
	ActionNone        Action = "none"
	ActionContinue    Action = "continue"
	ActionSendMessage Action = "send_message"
	ActionNewSession  Action = "new_session"
)

// Outcome describes what actually happened to a decided action.
type Outcome string

const (
	OutcomeExecuted         Outcome = "executed"
	OutcomeNoop             Outcome = "no_op"
	OutcomeReportOnly       Outcome = "report_only"
	OutcomeSkippedThreshold Outcome = "skipped_below_threshold"
	OutcomeSkippedPolicy    Outcome = "skipped_not_permitted"
	OutcomeFailed           Outcome = "failed"
)

// Decision is the pure output of Decide: which action to take, or why not.
type Decision struct {
	Action  Action
	Outcome Outcome // Noop, ReportOnly, or a skip reason when Action is none
	Reason  string
}

// Result records a dispatched action for history and the events log.
type Result struct {
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Relauncher starts a fresh session for an interface. Satisfied by the
// launcher; declared here so dispatch does not depend on it.
type Relauncher interface {
	Relaunch(ctx context.Context, iface string) error
}

// Decide selects an action for a committed transition into st.
//
// Two gates apply after table lookup: the reading must clear the policy
// confidence threshold, and the action must be in the allowed set. Either
// gate failing yields an explicit skip, never a silent action. hasPending
// reports whether a pending message exists for the interface; systemic
// reports whether the error evidence looks environment-wide (auth, disk),
// in which case auto-recovery is withheld because a new session would hit
// the same wall.
func Decide(st state.SessionState, confidence float64, policy config.PolicyConfig, hasPending, systemic bool) Decision {
	var action Action
	switch st {
	case state.StateReady:
		if !hasPending {
			return Decision{Action: ActionNone, Outcome: OutcomeNoop, Reason: "ready with nothing queued"}
		}
		action = ActionSendMessage
	case state.StatePaused:
		action = ActionContinue
	case state.StateEnded:
		if !policy.AutoRecover {
			return Decision{Action: ActionNone, Outcome: OutcomeReportOnly, Reason: "session ended; auto_recover disabled"}
		}
		action = ActionNewSession
	case state.StateError:
		if systemic {
			return Decision{Action: ActionNone, Outcome: OutcomeReportOnly, Reason: "systemic error; relaunch withheld"}
		}
		if !policy.AutoRecover {
			return Decision{Action: ActionNone, Outcome: OutcomeReportOnly, Reason: "error state; auto_recover disabled"}
		}
		action = ActionNewSession
	case state.StateRateLimited:
		return Decision{Action: ActionNone, Outcome: OutcomeNoop, Reason: "rate limited; loop backoff applies"}
	default: // active, unknown
		return Decision{Action: ActionNone, Outcome: OutcomeNoop, Reason: fmt.Sprintf("no action for state %s", st)}
	}

	if confidence < policy.ConfidenceThreshold {
		return Decision{Action: ActionNone, Outcome: OutcomeSkippedThreshold,
			Reason: fmt.Sprintf("%s at %.2f below threshold %.2f", action, confidence, policy.ConfidenceThreshold)}
	}
	if !actionAllowed(action, policy.AllowedActions) {
		return Decision{Action: ActionNone, Outcome: OutcomeSkippedPolicy,
			Reason: fmt.Sprintf("%s not in allowed_actions", action)}
	}
	return Decision{Action: action, Outcome: OutcomeExecuted}
}

func actionAllowed(a Action, allowed []string) bool {
	for _, s := range allowed {
		if Action(s) == a {
			return true
		}
	}
	return false
}

// Dispatcher executes decided actions against one interface.
type Dispatcher struct {
	iface     string
	handler   handler.Handler
	relaunch  Relauncher
	pendingFn func() string // pending message for send_message; empty means none
}

// NewDispatcher wires a dispatcher to its side-effect targets. pendingFn
// may be nil when no context store is configured.
func NewDispatcher(iface string, h handler.Handler, r Relauncher, pendingFn func() string) *Dispatcher {
	return &Dispatcher{iface: iface, handler: h, relaunch: r, pendingFn: pendingFn}
}

// HasPending reports whether a pending message is available.
func (d *Dispatcher) HasPending() bool {
	return d.pendingFn != nil && d.pendingFn() != ""
}

// Dispatch performs the decided action. A Decision with ActionNone is
// recorded as-is; execution failures come back as OutcomeFailed with the
// error detail, never as a returned error, so one bad click cannot kill
// the monitoring loop.
func (d *Dispatcher) Dispatch(ctx context.Context, decision Decision) Result {
	res := Result{Action: decision.Action, Outcome: decision.Outcome, Detail: decision.Reason, Timestamp: time.Now().UTC()}
	if decision.Action == ActionNone {
		return res
	}

	var err error
	switch decision.Action {
	case ActionContinue:
		err = d.clickContinue(ctx)
	case ActionSendMessage:
		err = d.sendPending(ctx)
	case ActionNewSession:
		if d.relaunch == nil {
			err = errors.New("no launcher configured")
		} else {
			err = d.relaunch.Relaunch(ctx, d.iface)
		}
	default:
		err = fmt.Errorf("unknown action %q", decision.Action)
	}

	if err != nil {
		res.Outcome = OutcomeFailed
		res.Detail = err.Error()
		return res
	}
	res.Outcome = OutcomeExecuted
	return res
}

// clickContinue locates the continue control and clicks it. A control that
// is no longer present counts as success: the pause already resolved.
func (d *Dispatcher) clickContinue(ctx context.Context) error {
	win, err := d.handler.LocateWindow(ctx)
	if err != nil {
		return fmt.Errorf("locate window: %w", err)
	}
	ctl, err := d.handler.FindControl(ctx, win, handler.ControlContinue)
	if err != nil {
		if errors.Is(err, handler.ErrControlNotFound) {
			return nil
		}
		return fmt.Errorf("find continue control: %w", err)
	}
	if err := d.handler.Click(ctx, ctl); err != nil {
		return fmt.Errorf("click continue: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendPending(ctx context.Context) error {
	msg := ""
	if d.pendingFn != nil {
		msg = d.pendingFn()
	}
	if msg == "" {
		return errors.New("send_message decided but nothing pending")
	}
	win, err := d.handler.LocateWindow(ctx)
	if err != nil {
		return fmt.Errorf("locate window: %w", err)
	}
	if err := d.handler.TypeText(ctx, win, msg); err != nil {
		return fmt.Errorf("type message: %w", err)
	}
	return nil
}
