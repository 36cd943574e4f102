// Package app provides application state, configuration, and events.
package app

import (
	"image"
	"sync"

	"maskforge/internal/display"
	"maskforge/internal/mask"
)

// State holds the shared application state: the panel geometry, the
// compositor settings, and the last rendered mask.
type State struct {
	mu sync.RWMutex

	geometry display.Geometry
	circles  mask.CircleSpec
	pcb      mask.PCBPlacement

	// Last successful render, ready to save.
	rendered   *image.Gray
	sourcePath string

	listeners map[EventType][]EventListener
}

// EventType identifies application events.
type EventType int

const (
	EventGeometryChanged EventType = iota
	EventMaskRendered
	EventStatus
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates application state with the stock panel and compositor
// defaults.
func NewState() *State {
	return &State{
		geometry:  display.Default,
		circles:   mask.DefaultCircles,
		pcb:       mask.DefaultPCB,
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Status emits a status line for the UI.
func (s *State) Status(text string) {
	s.Emit(EventStatus, text)
}

// Geometry returns the current panel geometry.
func (s *State) Geometry() display.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry
}

// SetGeometry validates and installs a new panel geometry.
func (s *State) SetGeometry(g display.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.geometry = g
	s.mu.Unlock()
	s.Emit(EventGeometryChanged, g)
	return nil
}

// Circles returns the dual-circle inset layout.
func (s *State) Circles() mask.CircleSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.circles
}

// SetCircles validates the layout against the current geometry and installs
// it.
func (s *State) SetCircles(c mask.CircleSpec) error {
	s.mu.Lock()
	geom := s.geometry
	s.mu.Unlock()
	if err := c.Validate(geom); err != nil {
		return err
	}
	s.mu.Lock()
	s.circles = c
	s.mu.Unlock()
	return nil
}

// PCB returns the board placement settings.
func (s *State) PCB() mask.PCBPlacement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pcb
}

// SetPCB validates the placement against the current geometry and installs
// it.
func (s *State) SetPCB(p mask.PCBPlacement) error {
	s.mu.Lock()
	geom := s.geometry
	s.mu.Unlock()
	if err := p.Validate(geom); err != nil {
		return err
	}
	s.mu.Lock()
	s.pcb = p
	s.mu.Unlock()
	return nil
}

// Mask returns the last rendered mask, or nil when nothing has been
// prepared yet.
func (s *State) Mask() *image.Gray {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rendered
}

// SourcePath returns the input file behind the last rendered mask.
func (s *State) SourcePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourcePath
}

// SetMask installs a finished render and notifies listeners. sourcePath is
// the input file the mask was derived from; the save dialog names the output
// after it.
func (s *State) SetMask(img *image.Gray, sourcePath string) {
	s.mu.Lock()
	s.rendered = img
	s.sourcePath = sourcePath
	s.mu.Unlock()
	s.Emit(EventMaskRendered, img)
}
