package astiplayer

import (
	"fmt"
	"strings"
)

// padDiscoveryHandler wires pads exposed by the demuxer once it has discovered
// the elementary streams of the media
type padDiscoveryHandler struct {
	r *playerRef
}

func newPadDiscoveryHandler(r *playerRef) *padDiscoveryHandler {
	return &padDiscoveryHandler{r: r}
}

// Executed on a framework streaming thread
func (h *padDiscoveryHandler) handlePadAdded(e PadAdded) {
	// Player is gone
	p := h.r.get()
	if p == nil {
		return
	}

	// Wire
	m, evt := h.wire(p, e)

	// Messages and events are processed outside the topology lock so that listeners
	// are free to interact with the player
	if m != nil {
		p.post(*m)
	}
	if evt != nil {
		p.eh.Emit(*evt)
	}
}

func (h *padDiscoveryHandler) wire(p *Player, e PadAdded) (m *Message, evt *Event) {
	// Lock topology
	p.m.Lock()
	defer p.m.Unlock()

	// Player has been closed or the demuxer has been removed in the meantime
	if p.closed || p.demuxer == nil || e.Element != p.demuxer {
		return
	}

	// Get media type
	mediaType, ok := e.Pad.MediaType()
	if !ok {
		m = &Message{
			Debug:       "negotiation",
			Description: fmt.Sprintf("failed to get media type from pad %s", e.Pad.Name()),
			Kind:        MessageKindWarning,
			Source:      e.Element.Name(),
		}
		return
	}

	// Classify
	isAudio := strings.HasPrefix(mediaType, MediaTypeAudio+"/")
	isVideo := strings.HasPrefix(mediaType, MediaTypeVideo+"/")
	if !isAudio && !isVideo {
		evt = &Event{
			Name: EventNamePadIgnored,
			Payload: EventPadIgnored{
				MediaType: mediaType,
				Pad:       e.Pad.Name(),
			},
			Target: p,
		}
		return
	}

	// A pad is linked at most once
	if e.Pad.IsLinked() {
		return
	}

	// Link
	var sink string
	var err error
	if isAudio {
		sink, err = p.linkAudioPad(e.Pad)
	} else {
		sink, err = p.linkVideoPad(e.Pad)
	}

	// Linking failed, the stream is dropped
	if err != nil {
		m = &Message{
			Debug:       err.Error(),
			Description: "failed to insert sink",
			Err:         err,
			Kind:        MessageKindError,
			Source:      e.Element.Name(),
		}
		return
	}

	// Create event
	evt = &Event{
		Name: EventNamePadLinked,
		Payload: EventPadLinked{
			MediaType: mediaType,
			Pad:       e.Pad.Name(),
			Sink:      sink,
		},
		Target: p,
	}
	return
}

// Assumes the topology is locked
func (p *Player) linkAudioPad(pad Pad) (sink string, err error) {
	// Get sink pad
	head := p.audio[0]
	var sinkPad Pad
	if sinkPad, err = head.StaticPad("sink"); err != nil {
		err = fmt.Errorf("astiplayer: getting sink pad of %s failed: %w", head.Name(), err)
		return
	}

	// Link
	if err = pad.Link(sinkPad); err != nil {
		err = fmt.Errorf("astiplayer: linking pad %s to %s failed: %w", pad.Name(), head.Name(), err)
		return
	}
	sink = head.Name()
	return
}

// The sink bin may have been left in a stale state by a previous media, therefore it is
// reinserted as a whole and synchronized before being linked.
// Assumes the topology is locked.
func (p *Player) linkVideoPad(pad Pad) (sink string, err error) {
	// Detach
	if err = p.pipeline.Remove(p.sinkBin); err != nil {
		err = fmt.Errorf("astiplayer: removing %s failed: %w", p.sinkBin.Name(), err)
		return
	}

	// Reattach. If the second attempt fails too, the bin stays detached until the next load.
	if err = p.pipeline.Add(p.sinkBin); err != nil {
		if errR := p.pipeline.Add(p.sinkBin); errR != nil {
			err = fmt.Errorf("astiplayer: adding %s failed, it stays detached until the next load: %w", p.sinkBin.Name(), errR)
			return
		}
		err = nil
	}

	// Synchronize state
	if err = p.sinkBin.SyncStateWithParent(); err != nil {
		err = fmt.Errorf("astiplayer: synchronizing state of %s failed: %w", p.sinkBin.Name(), err)
		return
	}

	// Get sink pad
	var sinkPad Pad
	if sinkPad, err = p.sinkBin.StaticPad("sink"); err != nil {
		err = fmt.Errorf("astiplayer: getting sink pad of %s failed: %w", p.sinkBin.Name(), err)
		return
	}

	// Link
	if err = pad.Link(sinkPad); err != nil {
		err = fmt.Errorf("astiplayer: linking pad %s to %s failed: %w", pad.Name(), p.sinkBin.Name(), err)
		return
	}
	sink = p.sinkBin.Name()
	return
}
