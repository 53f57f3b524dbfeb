// Package connectivity decides what the tethering appliance is doing.
//
// The Machine is a pure function of the previous State and a per-tick Context.
// It never runs commands itself: side effects are returned as an Action for
// the caller's executor to honor.
package connectivity

import (
	"fmt"
	"strings"
)

// Kind identifies which connectivity state the appliance is in.
type Kind int

const (
	// KindUnknown is the state before the first tick has been evaluated.
	KindUnknown Kind = iota

	// KindTethered means the secondary interface is up and the companion
	// service is serving clients.
	KindTethered

	// KindRouteRepairing means the secondary interface can reach the
	// internet but the companion service is not active yet.
	KindRouteRepairing

	// KindSearching means the secondary interface exists but nothing is
	// reachable through it.
	KindSearching

	// KindIdle means there is no secondary interface.
	KindIdle

	// KindShutdownCountdown means the idle period has run long enough that
	// the appliance will power off unless a link appears.
	KindShutdownCountdown

	// KindShutdownNow is terminal: the process clears the display and exits.
	KindShutdownNow
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindTethered:
		return "tethered"
	case KindRouteRepairing:
		return "route_repairing"
	case KindSearching:
		return "searching"
	case KindIdle:
		return "idle"
	case KindShutdownCountdown:
		return "shutdown_countdown"
	case KindShutdownNow:
		return "shutdown_now"
	default:
		return "invalid"
	}
}

// Kinds lists every valid kind, in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindUnknown,
		KindTethered,
		KindRouteRepairing,
		KindSearching,
		KindIdle,
		KindShutdownCountdown,
		KindShutdownNow,
	}
}

// State is a connectivity state plus the data some kinds carry.
type State struct {
	Kind Kind

	// Phase is the 0-3 dot animation phase while searching.
	Phase int

	// Remaining is the number of ticks left before shutdown while counting down.
	Remaining uint32

	// ServiceStopping is set on an idle state entered while the companion
	// service was still active with no secondary interface.
	ServiceStopping bool
}

// Unknown returns the initial state.
func Unknown() State { return State{Kind: KindUnknown} }

// Tethered returns the fully established state.
func Tethered() State { return State{Kind: KindTethered} }

// RouteRepairing returns the route repair state.
func RouteRepairing() State { return State{Kind: KindRouteRepairing} }

// Searching returns the searching state with the given animation phase.
func Searching(phase int) State { return State{Kind: KindSearching, Phase: phase} }

// Idle returns the idle state.
func Idle() State { return State{Kind: KindIdle} }

// IdleStoppingService returns the idle state reached while the companion
// service must still be stopped.
func IdleStoppingService() State { return State{Kind: KindIdle, ServiceStopping: true} }

// ShutdownCountdown returns the countdown state.
func ShutdownCountdown(remaining uint32) State {
	return State{Kind: KindShutdownCountdown, Remaining: remaining}
}

// ShutdownNow returns the terminal state.
func ShutdownNow() State { return State{Kind: KindShutdownNow} }

// IsTerminal reports whether the process must exit after this state.
func (s State) IsTerminal() bool {
	return s.Kind == KindShutdownNow
}

// String returns the kind name with any carried data.
func (s State) String() string {
	switch s.Kind {
	case KindSearching:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Phase)
	case KindShutdownCountdown:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Remaining)
	case KindIdle:
		if s.ServiceStopping {
			return s.Kind.String() + "(stopping_service)"
		}
	}
	return s.Kind.String()
}

// Tag is the short status tag drawn in the top right corner of the display.
func (s State) Tag() string {
	switch s.Kind {
	case KindTethered:
		return "UP"
	case KindRouteRepairing:
		return "---"
	case KindSearching:
		return strings.Repeat(".", s.Phase)
	case KindIdle:
		if s.ServiceStopping {
			return "-/-"
		}
		return " x "
	case KindShutdownCountdown:
		return fmt.Sprintf("%d", s.Remaining)
	case KindShutdownNow:
		return "0"
	default:
		return "?"
	}
}

// Action is a side effect the machine asks its caller to perform.
type Action int

const (
	// ActionNone requests nothing.
	ActionNone Action = iota

	// ActionRepairRoute runs the external route fix procedure.
	ActionRepairRoute

	// ActionStopService stops the companion service.
	ActionStopService

	// ActionShutdown powers the appliance off. The caller clears the display
	// first and terminates after invoking it.
	ActionShutdown
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRepairRoute:
		return "repair_route"
	case ActionStopService:
		return "stop_service"
	case ActionShutdown:
		return "shutdown"
	default:
		return "invalid"
	}
}

// Actions lists every action that has a side effect.
func Actions() []Action {
	return []Action{ActionRepairRoute, ActionStopService, ActionShutdown}
}
