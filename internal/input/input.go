package input

import (
	"sync"
)

// Action represents a logical action, not a physical key
type Action int

// Action constants using iota
const (
	ActionQuit Action = iota
	ActionRotateLeft
	ActionRotateRight
	ActionRotateUp
	ActionRotateDown
	ActionZoomIn
	ActionZoomOut
	ActionHome
	ActionToggleHUD
	ActionCount // Sentinel value for array sizing
)

// Bindings maps physical keys and joystick buttons to logical actions and
// tracks which actions are held.
type Bindings struct {
	mu sync.RWMutex

	// Key to action mapping (one key can map to multiple actions)
	keyToActions map[Key][]Action

	// Joystick button to action mapping
	buttonToActions map[int][]Action

	// Current state (indexed by Action)
	currentState [ActionCount]bool

	// Just pressed/released flags (reset by PostUpdate)
	justPressed  [ActionCount]bool
	justReleased [ActionCount]bool
}

// NewBindings creates Bindings with the default key and button map
func NewBindings() *Bindings {
	b := &Bindings{
		keyToActions:    make(map[Key][]Action),
		buttonToActions: make(map[int][]Action),
	}

	b.BindKey(KeyEscape, ActionQuit)
	b.BindKey(KeyArrowLeft, ActionRotateLeft)
	b.BindKey(KeyArrowRight, ActionRotateRight)
	b.BindKey(KeyArrowUp, ActionRotateUp)
	b.BindKey(KeyArrowDown, ActionRotateDown)
	b.BindKey(KeyPageUp, ActionZoomIn)
	b.BindKey(KeyPageDown, ActionZoomOut)
	b.BindKey(KeyHome, ActionHome)
	b.BindKey(KeyF1, ActionToggleHUD)

	b.BindButton(ButtonStart, ActionQuit)
	b.BindButton(ButtonBack, ActionHome)

	return b
}

// BindKey binds a physical key to a logical action
func (b *Bindings) BindKey(key Key, action Action) {
	if action < 0 || action >= ActionCount {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyToActions[key] = append(b.keyToActions[key], action)
}

// UnbindKey removes all action bindings for a key
func (b *Bindings) UnbindKey(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.keyToActions, key)
}

// BindButton binds a joystick button to a logical action
func (b *Bindings) BindButton(button int, action Action) {
	if action < 0 || action >= ActionCount {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buttonToActions[button] = append(b.buttonToActions[button], action)
}

// UnbindButton removes all action bindings for a joystick button
func (b *Bindings) UnbindButton(button int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buttonToActions, button)
}

// Actions returns the actions bound to the key or button of ev.
func (b *Bindings) Actions(ev Event) []Action {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch ev.Kind {
	case KeyDown, KeyUp:
		return b.keyToActions[ev.Key]
	case ButtonDown, ButtonUp:
		return b.buttonToActions[ev.Button]
	}
	return nil
}

// Apply updates the held state from a key or button event and returns the
// actions it affected.
func (b *Bindings) Apply(ev Event) []Action {
	var pressed bool
	switch ev.Kind {
	case KeyDown, ButtonDown:
		pressed = true
	case KeyUp, ButtonUp:
	default:
		return nil
	}
	actions := b.Actions(ev)
	if len(actions) == 0 {
		return nil
	}

	b.mu.Lock()
	for _, act := range actions {
		// Detect edges immediately when event arrives
		if pressed && !b.currentState[act] {
			b.justPressed[act] = true
		}
		if !pressed && b.currentState[act] {
			b.justReleased[act] = true
		}
		b.currentState[act] = pressed
	}
	b.mu.Unlock()
	return actions
}

// Bound reports whether ev maps to action.
func (b *Bindings) Bound(ev Event, action Action) bool {
	for _, a := range b.Actions(ev) {
		if a == action {
			return true
		}
	}
	return false
}

// PostUpdate resets the edge flags. Call once per frame after all checks.
func (b *Bindings) PostUpdate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.justPressed[:])
	clear(b.justReleased[:])
}

// IsActive returns true if the action is currently being held down
func (b *Bindings) IsActive(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentState[action]
}

// JustPressed returns true only if the action was pressed since the last PostUpdate
func (b *Bindings) JustPressed(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.justPressed[action]
}

// JustReleased returns true only if the action was released since the last PostUpdate
func (b *Bindings) JustReleased(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.justReleased[action]
}

// Release clears the held state of every action.
func (b *Bindings) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.currentState[:])
}
