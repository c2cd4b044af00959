package renderer

import (
	"shadowstage/internal/input"
)

// EventHandlerFunc is a free-standing event handler, consulted after the
// subscribed entities. Returning true consumes the event.
type EventHandlerFunc func(ev input.Event) bool

// HandlerID identifies a handler added with AddEventHandler.
type HandlerID uint64

// PresentFunc shows the finished frame, typically by swapping buffers and
// polling the window system.
type PresentFunc func() error
