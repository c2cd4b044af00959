package input

import (
	"fmt"
	"sync"
)

// Kind is the closed set of event kinds produced by the window shell.
type Kind uint8

const (
	Resize Kind = iota + 1
	KeyDown
	KeyUp
	ButtonDown
	ButtonUp
	AxisMotion
	HatMotion
	Quit
)

func (k Kind) String() string {
	switch k {
	case Resize:
		return "resize"
	case KeyDown:
		return "key-down"
	case KeyUp:
		return "key-up"
	case ButtonDown:
		return "button-down"
	case ButtonUp:
		return "button-up"
	case AxisMotion:
		return "axis"
	case HatMotion:
		return "hat"
	case Quit:
		return "quit"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Key is a physical key. The window shell maps its own codes onto these.
type Key uint16

const (
	KeyUnknown Key = iota
	KeyEscape
	KeyEnter
	KeySpace
	KeyArrowLeft
	KeyArrowRight
	KeyArrowUp
	KeyArrowDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyF1
	KeyF2
	KeyF3
	KeyF4
)

// Joystick buttons follow the standard gamepad layout.
const (
	ButtonA     = 0
	ButtonB     = 1
	ButtonBack  = 6
	ButtonStart = 7
)

// Hat bits.
type Hat uint8

const (
	HatCentered Hat = 0
	HatUp       Hat = 1 << (iota - 1)
	HatRight
	HatDown
	HatLeft
)

// Event is one input event. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// Resize
	Width, Height int32

	// KeyDown, KeyUp
	Key Key

	// ButtonDown, ButtonUp, AxisMotion, HatMotion
	Joystick int
	Button   int
	Axis     int
	Value    float32
	Hat      Hat
}

func ResizeEvent(w, h int32) Event { return Event{Kind: Resize, Width: w, Height: h} }
func KeyDownEvent(k Key) Event     { return Event{Kind: KeyDown, Key: k} }
func KeyUpEvent(k Key) Event       { return Event{Kind: KeyUp, Key: k} }
func QuitEvent() Event             { return Event{Kind: Quit} }

// Queue hands events from the main thread to the render thread.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// Push appends an event. Safe for concurrent use.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain appends all queued events to dst in arrival order and empties the
// queue.
func (q *Queue) Drain(dst []Event) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	dst = append(dst, q.events...)
	clear(q.events)
	q.events = q.events[:0]
	return dst
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
