package astiplayer

// EventName represents an event name
type EventName string

// Default event names
const (
	EventNameEOS                  EventName = "astiplayer.eos"
	EventNameError                EventName = "astiplayer.error"
	EventNameMediaLoaded          EventName = "astiplayer.media.loaded"
	EventNameMediaProbed          EventName = "astiplayer.media.probed"
	EventNameMediaUnloaded        EventName = "astiplayer.media.unloaded"
	EventNamePadIgnored           EventName = "astiplayer.pad.ignored"
	EventNamePadLinked            EventName = "astiplayer.pad.linked"
	EventNamePipelineStateChanged EventName = "astiplayer.pipeline.state.changed"
	EventNamePlayerClosed         EventName = "astiplayer.player.closed"
	EventNamePosition             EventName = "astiplayer.position"
	EventNameStats                EventName = "astiplayer.stats"
	EventNameWarning              EventName = "astiplayer.warning"
)

// Event is an event coming out of the player
type Event struct {
	Name    EventName
	Payload interface{}
	Target  interface{}
}

// EventError returns an error event
func EventError(target interface{}, err error) Event {
	return Event{
		Name:    EventNameError,
		Payload: err,
		Target:  target,
	}
}

// EventPadLinked is the payload of EventNamePadLinked
type EventPadLinked struct {
	MediaType string
	Pad       string
	Sink      string
}

// EventPadIgnored is the payload of EventNamePadIgnored
type EventPadIgnored struct {
	MediaType string
	Pad       string
}

// EventPipelineStateChanged is the payload of EventNamePipelineStateChanged
type EventPipelineStateChanged struct {
	NewState State
	OldState State
}
