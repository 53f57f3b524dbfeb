package connectivity

import "time"

// Thresholds configures the machine's timing policy.
type Thresholds struct {
	// SleepThreshold is the number of down ticks shown as plain idle before
	// the shutdown countdown starts.
	SleepThreshold uint32

	// ShutdownGrace is the number of ticks the countdown lasts.
	ShutdownGrace uint32

	// NormalInterval is the poll interval while tethered, repairing or
	// stopping the service.
	NormalInterval time.Duration

	// FastInterval is the poll interval while searching.
	FastInterval time.Duration

	// IdleInterval is the poll interval while idle or counting down.
	IdleInterval time.Duration
}

// DefaultThresholds returns the appliance defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SleepThreshold: 5,
		ShutdownGrace:  30,
		NormalInterval: 2 * time.Second,
		FastInterval:   50 * time.Millisecond,
		IdleInterval:   1 * time.Second,
	}
}

// ShutdownAfter is the number of consecutive down ticks that end in shutdown.
func (t Thresholds) ShutdownAfter() uint32 {
	return t.SleepThreshold + t.ShutdownGrace
}

// Context is the probe input for one tick.
type Context struct {
	PrimaryPresent   bool
	SecondaryPresent bool
	ServiceActive    bool
	Reachable        bool

	// DownTicks is the downtime counter carried over from the previous tick.
	DownTicks uint32
}

// Transition is the result of one step.
type Transition struct {
	State     State
	Action    Action
	Interval  time.Duration
	DownTicks uint32
}

// Machine evaluates the transition table.
type Machine struct {
	th Thresholds
}

// NewMachine creates a machine with the given thresholds.
func NewMachine(th Thresholds) *Machine {
	return &Machine{th: th}
}

// Thresholds returns the machine's configuration.
func (m *Machine) Thresholds() Thresholds {
	return m.th
}

// Step evaluates one tick. It is deterministic and total: every input maps to
// exactly one branch. Once ShutdownNow has been reached it is returned again
// without requesting another shutdown.
func (m *Machine) Step(prev State, ctx Context) Transition {
	if prev.IsTerminal() {
		return Transition{State: prev, Action: ActionNone, Interval: m.th.IdleInterval, DownTicks: ctx.DownTicks}
	}

	down := ctx.DownTicks

	if ctx.SecondaryPresent {
		switch {
		case ctx.ServiceActive:
			return Transition{State: Tethered(), Action: ActionNone, Interval: m.th.NormalInterval, DownTicks: 0}
		case ctx.Reachable:
			return Transition{State: RouteRepairing(), Action: ActionRepairRoute, Interval: m.th.NormalInterval, DownTicks: down}
		default:
			return Transition{State: Searching(int(down % 4)), Action: ActionNone, Interval: m.th.FastInterval, DownTicks: down + 1}
		}
	}

	if ctx.ServiceActive {
		return Transition{State: IdleStoppingService(), Action: ActionStopService, Interval: m.th.NormalInterval, DownTicks: down}
	}

	next := down + 1
	limit := m.th.ShutdownAfter()
	switch {
	case next <= m.th.SleepThreshold:
		return Transition{State: Idle(), Action: ActionNone, Interval: m.th.IdleInterval, DownTicks: next}
	case next < limit:
		// Remaining is the number of ticks up to and including the one
		// that shuts down.
		return Transition{State: ShutdownCountdown(limit - down), Action: ActionNone, Interval: m.th.IdleInterval, DownTicks: next}
	default:
		return Transition{State: ShutdownNow(), Action: ActionShutdown, Interval: m.th.IdleInterval, DownTicks: next}
	}
}
