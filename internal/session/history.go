package session

import "time"

// HomePage is the page Reset returns to.
const HomePage = "home"

// Action is one entry of the action log.
type Action struct {
	At          time.Time `json:"at"`
	Description string    `json:"description"`
}

// Line renders the action the way the UI lists it.
func (a Action) Line() string {
	return "[" + a.At.Format("15:04:05") + "] " + a.Description
}

// ActionLog is an append-only list of user-visible actions.
type ActionLog struct {
	items []Action
	now   func() time.Time
}

// NewActionLog returns an empty log stamped with the wall clock.
func NewActionLog() *ActionLog {
	return &ActionLog{now: time.Now}
}

// Append records description at the current time.
func (l *ActionLog) Append(description string) Action {
	a := Action{At: l.now(), Description: description}
	l.items = append(l.items, a)
	return a
}

// Read returns a copy of the log in chronological order.
func (l *ActionLog) Read() []Action {
	out := make([]Action, len(l.items))
	copy(out, l.items)
	return out
}

// Lines renders every action with Action.Line.
func (l *ActionLog) Lines() []string {
	out := make([]string, len(l.items))
	for i, a := range l.items {
		out[i] = a.Line()
	}
	return out
}

// Navigation is a page stack plus the current page.
type Navigation struct {
	current string
	history []string
}

// NewNavigation starts on HomePage with empty history.
func NewNavigation() *Navigation {
	return &Navigation{current: HomePage}
}

// Push remembers the current page and moves to page.
func (n *Navigation) Push(page string) string {
	n.history = append(n.history, n.current)
	n.current = page
	return n.current
}

// Back returns to the previous page. With empty history it does nothing.
func (n *Navigation) Back() string {
	if len(n.history) == 0 {
		return n.current
	}
	last := len(n.history) - 1
	n.current = n.history[last]
	n.history = n.history[:last]
	return n.current
}

// Reset clears history and returns to HomePage.
func (n *Navigation) Reset() string {
	n.history = nil
	n.current = HomePage
	return n.current
}

func (n *Navigation) Current() string { return n.current }

// History returns a copy of the stack, oldest first.
func (n *Navigation) History() []string {
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}
