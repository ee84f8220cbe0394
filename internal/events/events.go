package events

import (
	"fmt"
	"sync"

	console "doable/internal/utils/logger"
)

var log = console.New("EVENTS")

type EventHandler func(interface{})

// EventBus is the in-process half of the change feed. Every store mutation
// emits "<collection>.changed"; feed subscribers re-query and push a full
// snapshot on each emission.
type EventBus struct {
	handlers map[string]map[uint64]EventHandler
	nextID   uint64
	mu       sync.RWMutex
}

var defaultBus = NewEventBus()

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string]map[uint64]EventHandler),
	}
}

// On registers a handler for an event
func (bus *EventBus) On(event string, handler EventHandler) {
	bus.OnWithCancel(event, handler)
}

// OnWithCancel registers a handler and returns a function that removes it
// again. Feed subscriptions use this so tearing one down stops deliveries.
func (bus *EventBus) OnWithCancel(event string, handler EventHandler) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.handlers[event] == nil {
		bus.handlers[event] = make(map[uint64]EventHandler)
	}
	id := bus.nextID
	bus.nextID++
	bus.handlers[event][id] = handler
	log.Info("Registered handler for event: %s", event)

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.mu.Lock()
			defer bus.mu.Unlock()
			delete(bus.handlers[event], id)
		})
	}
}

// Emit triggers an event with the given data
func (bus *EventBus) Emit(event string, data interface{}) {
	bus.mu.RLock()
	registered := bus.handlers[event]
	handlers := make([]EventHandler, 0, len(registered))
	for _, h := range registered {
		handlers = append(handlers, h)
	}
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go invoke(event, handler, data)
	}
}

// EmitSync runs every handler inline on the caller's goroutine. Snapshot
// pushes use this: successive emissions from one goroutine then reach every
// subscriber in emission order, so the last snapshot a client observes is
// the newest one. Emit's per-handler goroutines give no such guarantee.
func (bus *EventBus) EmitSync(event string, data interface{}) {
	bus.mu.RLock()
	registered := bus.handlers[event]
	handlers := make([]EventHandler, 0, len(registered))
	for _, h := range registered {
		handlers = append(handlers, h)
	}
	bus.mu.RUnlock()

	for _, handler := range handlers {
		invoke(event, handler, data)
	}
}

func invoke(event string, h EventHandler, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			_ = log.Error("Panic in event handler for %s", fmt.Errorf("panic: %v", r), event)
		}
	}()
	h(data)
}

// On Global event functions that use the default event bus
func On(event string, handler EventHandler) {
	defaultBus.On(event, handler)
}

func OnWithCancel(event string, handler EventHandler) func() {
	return defaultBus.OnWithCancel(event, handler)
}

func Emit(event string, data interface{}) {
	defaultBus.Emit(event, data)
}

func EmitSync(event string, data interface{}) {
	defaultBus.EmitSync(event, data)
}
