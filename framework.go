package astiplayer

import (
	"time"
)

// State represents the run state of an element
type State int

// States
const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String implements the fmt.Stringer interface
func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Framework represents the multimedia framework the player sequences calls into
type Framework interface {
	NewBin(name string) (Bin, error)
	NewElement(factory, name string) (Element, error)
	NewPipeline(name string) (Pipeline, error)
	// The callback is executed on a framework thread and must not be executed anymore
	// once cancel has been called
	WatchPadAdded(e Element, fn PadAddedFunc) (cancel func(), err error)
}

// PadAdded is delivered whenever an element exposes a new dynamic pad
type PadAdded struct {
	Element Element
	Pad     Pad
}

// PadAddedFunc handles a PadAdded event
type PadAddedFunc func(e PadAdded)

// Element represents a single processing unit of the pipeline
type Element interface {
	Link(dst Element) error
	Name() string
	Property(name string) (interface{}, error)
	SetProperty(name string, value interface{}) error
	SetState(s State) error
	State() State
	StaticPad(name string) (Pad, error)
	SyncStateWithParent() error
	Unlink(dst Element)
}

// Bin represents a group of elements handled as a single element
type Bin interface {
	Element
	Add(es ...Element) error
	AddGhostPad(name string, target Pad) error
	Elements() []Element
	Remove(es ...Element) error
}

// Pipeline represents the top level bin
type Pipeline interface {
	Bin
	Bus() Bus
	QueryPosition() (time.Duration, bool)
}

// Pad represents a connection point of an element
type Pad interface {
	IsLinked() bool
	Link(sink Pad) error
	// Returns false when no capabilities have been negotiated yet
	MediaType() (string, bool)
	Name() string
}

// Bus represents the asynchronous message channel of a pipeline
type Bus interface {
	Post(m Message) error
	Watch(fn func(m Message)) (cancel func(), err error)
}

// MessageKind represents a message kind
type MessageKind int

// Message kinds
const (
	MessageKindWarning MessageKind = iota
	MessageKindError
	MessageKindEOS
	MessageKindStateChanged
)

// String implements the fmt.Stringer interface
func (k MessageKind) String() string {
	switch k {
	case MessageKindWarning:
		return "warning"
	case MessageKindError:
		return "error"
	case MessageKindEOS:
		return "eos"
	case MessageKindStateChanged:
		return "state.changed"
	default:
		return "unknown"
	}
}

// Message represents a message going through the bus
type Message struct {
	Debug       string
	Description string
	// Only set on messages posted by the player itself
	Err      error
	Kind     MessageKind
	NewState State
	OldState State
	Source   string
}

// MessageError is the payload of error and warning events
type MessageError struct {
	Debug       string
	Description string
	Err         error
	Source      string
}

func newMessageError(m Message) *MessageError {
	return &MessageError{
		Debug:       m.Debug,
		Description: m.Description,
		Err:         m.Err,
		Source:      m.Source,
	}
}

// Error implements the error interface
func (e *MessageError) Error() string {
	s := "astiplayer: " + e.Source + ": " + e.Description
	if e.Debug != "" {
		s += " (debug: " + e.Debug + ")"
	}
	return s
}

// Unwrap implements the standard error interface
func (e *MessageError) Unwrap() error {
	return e.Err
}
