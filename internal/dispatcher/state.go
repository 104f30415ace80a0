package dispatcher

import "fmt"

type State int

const (
	Received State = iota
	SizeChecked
	RoutedBaseline
	RoutedProvisioned
	Launching
	AwaitingReady
	AwaitingHealthy
	Delivering
	TerminationScheduled
	Done
)

var stateNames = [...]string{
	Received:             "received",
	SizeChecked:          "size-checked",
	RoutedBaseline:       "routed-baseline",
	RoutedProvisioned:    "routed-provisioned",
	Launching:            "launching",
	AwaitingReady:        "awaiting-ready",
	AwaitingHealthy:      "awaiting-healthy",
	Delivering:           "delivering",
	TerminationScheduled: "termination-scheduled",
	Done:                 "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists the successors of each state, besides Done which can always be
// reached when a dispatch fails. Once an instance was launched, every step may move
// to TerminationScheduled.
var transitions = map[State][]State{
	Received:             {SizeChecked},
	SizeChecked:          {RoutedBaseline, RoutedProvisioned},
	RoutedBaseline:       {Delivering},
	RoutedProvisioned:    {Launching},
	Launching:            {AwaitingReady, TerminationScheduled},
	AwaitingReady:        {AwaitingHealthy, TerminationScheduled},
	AwaitingHealthy:      {Delivering, TerminationScheduled},
	Delivering:           {TerminationScheduled},
	TerminationScheduled: {},
}

func canTransition(from, to State) bool {
	if to == Done {
		return from != Done
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
