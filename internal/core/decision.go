package core

// Action is the terminal verdict for one classified frame.
type Action uint8

const (
	ActionPass Action = iota
	ActionDrop
	ActionRedirect
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionDrop:
		return "drop"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the classifier output for one frame. Queue is only
// meaningful for ActionRedirect and names the logical receive queue
// whose registered endpoint should consume the frame.
type Decision struct {
	Action Action
	Queue  int
}

// Pass, Drop and RedirectTo are the three decision constructors.
var (
	Pass = Decision{Action: ActionPass}
	Drop = Decision{Action: ActionDrop}
)

// RedirectTo builds a Redirect decision for the given queue.
func RedirectTo(queue int) Decision {
	return Decision{Action: ActionRedirect, Queue: queue}
}
