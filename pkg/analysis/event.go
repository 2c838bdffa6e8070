package analysis

import (
	"fmt"
	"sort"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/device"
)

// Event changes the system at a point in simulated time. It is applied
// before the first step whose time reaches it.
type Event interface {
	Time() float64
	Apply() error
	String() string
}

type SwitchEvent struct {
	At     float64
	Switch device.Switchable
	Closed bool
}

func (e SwitchEvent) Time() float64 { return e.At }

func (e SwitchEvent) Apply() error {
	e.Switch.Close(e.Closed)
	return nil
}

func (e SwitchEvent) String() string {
	state := "open"
	if e.Closed {
		state = "close"
	}
	return fmt.Sprintf("%s %s at %g", state, e.Switch.Name(), e.At)
}

// AttributeEvent writes a value through the public attribute store, so
// read-only attributes stay protected.
type AttributeEvent struct {
	At    float64
	Store *attribute.Store
	Name  string
	Value attribute.Value
}

func (e AttributeEvent) Time() float64 { return e.At }

func (e AttributeEvent) Apply() error {
	return e.Store.Set(e.Name, e.Value)
}

func (e AttributeEvent) String() string {
	return fmt.Sprintf("set %s.%s=%s at %g", e.Store.Owner(), e.Name, e.Value, e.At)
}

// eventQueue holds pending events in time order. Events with equal times
// keep their insertion order.
type eventQueue struct {
	events []Event
}

func newEventQueue(events []Event) *eventQueue {
	q := &eventQueue{events: append([]Event(nil), events...)}
	sort.SliceStable(q.events, func(i, j int) bool { return q.events[i].Time() < q.events[j].Time() })
	return q
}

// due pops every event at or before time, with tol absorbing the rounding
// of accumulated step times.
func (q *eventQueue) due(time, tol float64) []Event {
	n := 0
	for n < len(q.events) && q.events[n].Time() <= time+tol {
		n++
	}
	out := q.events[:n]
	q.events = q.events[n:]
	return out
}

func (q *eventQueue) Len() int { return len(q.events) }
