package astiplayer

import (
	"sort"
	"sync"

	"github.com/asticode/go-astikit"
)

// EventHandler dispatches player events to listeners
type EventHandler struct {
	// Indexed by target then by event name then by listener idx
	cs  map[interface{}]map[EventName]map[int]EventCallback
	idx int
	m   *sync.Mutex
}

// EventCallback represents an event callback
type EventCallback func(e Event) (deleteListener bool)

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		cs: make(map[interface{}]map[EventName]map[int]EventCallback),
		m:  &sync.Mutex{},
	}
}

// Add adds a new callback for a specific target and event name
func (h *EventHandler) Add(target interface{}, eventName EventName, c EventCallback) {
	h.m.Lock()
	defer h.m.Unlock()
	if _, ok := h.cs[target]; !ok {
		h.cs[target] = make(map[EventName]map[int]EventCallback)
	}
	if _, ok := h.cs[target][eventName]; !ok {
		h.cs[target][eventName] = make(map[int]EventCallback)
	}
	h.idx++
	h.cs[target][eventName][h.idx] = c
}

// AddForEventName adds a new callback for a specific event name
func (h *EventHandler) AddForEventName(eventName EventName, c EventCallback) {
	h.Add(nil, eventName, c)
}

// AddForTarget adds a new callback for a specific target
func (h *EventHandler) AddForTarget(target interface{}, c EventCallback) {
	h.Add(target, "", c)
}

// AddForAll adds a new callback for all events
func (h *EventHandler) AddForAll(c EventCallback) {
	h.Add(nil, "", c)
}

func (h *EventHandler) del(target interface{}, eventName EventName, idx int) {
	h.m.Lock()
	defer h.m.Unlock()
	if _, ok := h.cs[target][eventName]; !ok {
		return
	}
	delete(h.cs[target][eventName], idx)
	if len(h.cs[target][eventName]) == 0 {
		delete(h.cs[target], eventName)
	}
	if len(h.cs[target]) == 0 {
		delete(h.cs, target)
	}
}

type eventHandlerCallback struct {
	c         EventCallback
	eventName EventName
	idx       int
	target    interface{}
}

func (h *EventHandler) callbacks(target interface{}, eventName EventName) (cs []eventHandlerCallback) {
	// Lock
	h.m.Lock()
	defer h.m.Unlock()

	// Listeners registered for all targets or all event names match as well
	targets := []interface{}{nil}
	if target != nil {
		targets = append(targets, target)
	}
	eventNames := []EventName{""}
	if eventName != "" {
		eventNames = append(eventNames, eventName)
	}

	// Index callbacks
	for _, t := range targets {
		for _, n := range eventNames {
			for idx, c := range h.cs[t][n] {
				cs = append(cs, eventHandlerCallback{
					c:         c,
					eventName: n,
					idx:       idx,
					target:    t,
				})
			}
		}
	}

	// Callbacks are executed in the order they were added
	sort.Slice(cs, func(i, j int) bool { return cs[i].idx < cs[j].idx })
	return
}

// Emit emits an event
func (h *EventHandler) Emit(e Event) {
	for _, c := range h.callbacks(e.Target, e.Name) {
		if c.c(e) {
			h.del(c.target, c.eventName, c.idx)
		}
	}
}

// EventHandlerLogOption represents an event handler log option
type EventHandlerLogOption func(h *EventHandler, l *EventLogger)

// Log logs player events with the provided logger
func (h *EventHandler) Log(i astikit.StdLogger, os ...EventHandlerLogOption) (l *EventLogger) {
	// Create event logger
	l = newEventLogger(i)

	// Loop through options
	for _, o := range os {
		o(h, l)
	}

	// Handle events
	h.AddForAll(func(e Event) bool {
		l.handle(e)
		return false
	})
	return
}
