package astiplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
)

// Errors
var (
	ErrPlayerClosed = errors.New("astiplayer: player is closed")
	ErrStateChange  = errors.New("astiplayer: state change failed")
)

var (
	countLoad   uint64
	countPlayer uint64
)

// PlayerOptions represents player options
type PlayerOptions struct {
	Elements PlayerElements
	// Defaults to 500ms. A negative value disables polling.
	PositionPollPeriod time.Duration
	// If set, medias are probed before being loaded
	Prober MediaProber
	// Name of the video sink property holding the renderable surface.
	// Defaults to "paintable".
	SurfaceProperty string
}

// PlayerElements represents the factory names of the elements the player creates
type PlayerElements struct {
	AudioConvert  string `json:"audio_convert" toml:"audio_convert" yaml:"audio_convert"`
	AudioResample string `json:"audio_resample" toml:"audio_resample" yaml:"audio_resample"`
	AudioSink     string `json:"audio_sink" toml:"audio_sink" yaml:"audio_sink"`
	Demuxer       string `json:"demuxer" toml:"demuxer" yaml:"demuxer"`
	Queue         string `json:"queue" toml:"queue" yaml:"queue"`
	Source        string `json:"source" toml:"source" yaml:"source"`
	Tee           string `json:"tee" toml:"tee" yaml:"tee"`
	VideoConvert  string `json:"video_convert" toml:"video_convert" yaml:"video_convert"`
	VideoSink     string `json:"video_sink" toml:"video_sink" yaml:"video_sink"`
}

func (e PlayerElements) withDefaults() PlayerElements {
	for _, v := range []struct {
		d string
		p *string
	}{
		{d: "audioconvert", p: &e.AudioConvert},
		{d: "audioresample", p: &e.AudioResample},
		{d: "autoaudiosink", p: &e.AudioSink},
		{d: "decodebin", p: &e.Demuxer},
		{d: "queue", p: &e.Queue},
		{d: "filesrc", p: &e.Source},
		{d: "tee", p: &e.Tee},
		{d: "videoconvert", p: &e.VideoConvert},
		{d: "gtk4paintablesink", p: &e.VideoSink},
	} {
		if *v.p == "" {
			*v.p = v.d
		}
	}
	return e
}

// Player owns the pipeline and sequences its lifecycle.
// The audio branch is built once and shared across loads whereas the source and
// the demuxer are created on each load.
type Player struct {
	audio      []Element
	cancelBus  func()
	cancelPads func()
	cancelPoll func() // Waits for the poller to exit
	closed     bool
	demuxer    Element
	eh         *EventHandler
	f          Framework
	h          *padDiscoveryHandler
	loaded     bool
	m          *sync.Mutex // Locks topology, closed, loaded, path, source and demuxer
	o          PlayerOptions
	oClose     *sync.Once
	path       string
	pipeline   Pipeline
	r          *playerRef
	s          *Stater
	sinkBin    Bin
	so         []astikit.StatOptions
	source     Element
	videoSink  Element
}

// NewPlayer creates a new player
func NewPlayer(o PlayerOptions, f Framework, eh *EventHandler, c *astikit.Closer, s *Stater) (p *Player, err error) {
	// Default options
	o.Elements = o.Elements.withDefaults()
	if o.PositionPollPeriod == 0 {
		o.PositionPollPeriod = 500 * time.Millisecond
	}
	if o.SurfaceProperty == "" {
		o.SurfaceProperty = "paintable"
	}

	// Create player
	p = &Player{
		eh:     eh,
		f:      f,
		m:      &sync.Mutex{},
		o:      o,
		oClose: &sync.Once{},
		s:      s,
	}
	p.r = newPlayerRef(p)
	p.h = newPadDiscoveryHandler(p.r)

	// Create pipeline
	count := atomic.AddUint64(&countPlayer, uint64(1))
	if p.pipeline, err = f.NewPipeline(fmt.Sprintf("pipeline_%d", count)); err != nil {
		err = fmt.Errorf("astiplayer: creating pipeline failed: %w", err)
		return
	}

	// Build sink bin
	if err = p.buildSinkBin(); err != nil {
		err = fmt.Errorf("astiplayer: building sink bin failed: %w", err)
		return
	}

	// Build audio branch
	if err = p.buildAudioBranch(); err != nil {
		err = fmt.Errorf("astiplayer: building audio branch failed: %w", err)
		return
	}

	// Watch bus
	if p.cancelBus, err = p.pipeline.Bus().Watch(p.handleBusMessage); err != nil {
		err = fmt.Errorf("astiplayer: watching bus failed: %w", err)
		return
	}

	// Make sure the player is closed
	if c != nil {
		c.Add(p.Close)
	}

	// Add stats
	p.addStats()

	// Poll position
	p.startPolling()
	return
}

func (p *Player) newElements(ns ...[2]string) (es []Element, err error) {
	for _, n := range ns {
		var e Element
		if e, err = p.f.NewElement(n[0], n[1]); err != nil {
			err = fmt.Errorf("astiplayer: creating %s element %s failed: %w", n[0], n[1], err)
			return
		}
		es = append(es, e)
	}
	return
}

func linkElements(es ...Element) error {
	for idx := 1; idx < len(es); idx++ {
		if err := es[idx-1].Link(es[idx]); err != nil {
			return fmt.Errorf("astiplayer: linking %s to %s failed: %w", es[idx-1].Name(), es[idx].Name(), err)
		}
	}
	return nil
}

func (p *Player) buildSinkBin() (err error) {
	// Create bin
	if p.sinkBin, err = p.f.NewBin("binsink"); err != nil {
		err = fmt.Errorf("astiplayer: creating bin failed: %w", err)
		return
	}

	// Create elements
	var es []Element
	if es, err = p.newElements(
		[2]string{p.o.Elements.Tee, "tee"},
		[2]string{p.o.Elements.Queue, "queue0"},
		[2]string{p.o.Elements.VideoConvert, "videoconvert"},
		[2]string{p.o.Elements.VideoSink, "videosink"},
	); err != nil {
		return
	}
	p.videoSink = es[len(es)-1]

	// Add elements
	if err = p.sinkBin.Add(es...); err != nil {
		err = fmt.Errorf("astiplayer: adding elements to %s failed: %w", p.sinkBin.Name(), err)
		return
	}

	// Link elements
	if err = linkElements(es...); err != nil {
		return
	}

	// Expose the tee sink pad as the bin sink pad
	var pad Pad
	if pad, err = es[0].StaticPad("sink"); err != nil {
		err = fmt.Errorf("astiplayer: getting sink pad of %s failed: %w", es[0].Name(), err)
		return
	}
	if err = p.sinkBin.AddGhostPad("sink", pad); err != nil {
		err = fmt.Errorf("astiplayer: adding ghost pad to %s failed: %w", p.sinkBin.Name(), err)
		return
	}
	return
}

func (p *Player) buildAudioBranch() (err error) {
	// Create elements
	if p.audio, err = p.newElements(
		[2]string{p.o.Elements.Queue, "audioqueue"},
		[2]string{p.o.Elements.AudioConvert, "audioconvert"},
		[2]string{p.o.Elements.AudioResample, "audioresample"},
		[2]string{p.o.Elements.AudioSink, "audiosink"},
	); err != nil {
		return
	}

	// Add elements
	if err = p.pipeline.Add(p.audio...); err != nil {
		err = fmt.Errorf("astiplayer: adding audio elements failed: %w", err)
		return
	}

	// Link elements
	if err = linkElements(p.audio...); err != nil {
		return
	}

	// Synchronize states
	for _, e := range p.audio {
		if err = e.SyncStateWithParent(); err != nil {
			err = fmt.Errorf("astiplayer: synchronizing state of %s failed: %w", e.Name(), err)
			return
		}
	}
	return
}

// Load loads a new media. If a media is already loaded, it is unloaded first.
func (p *Player) Load(ctx context.Context, path string) (err error) {
	// Probe
	if p.o.Prober != nil {
		var m Media
		if m, err = p.o.Prober.Probe(ctx, path); err != nil {
			err = fmt.Errorf("astiplayer: probing %s failed: %w", path, err)
			return
		}

		// Nothing to play
		if !m.HasMediaType(MediaTypeAudio) && !m.HasMediaType(MediaTypeVideo) {
			err = fmt.Errorf("astiplayer: %s has neither audio nor video stream", path)
			return
		}

		// Emit
		p.eh.Emit(Event{Name: EventNameMediaProbed, Payload: m, Target: p})
	}

	// Lock
	p.m.Lock()

	// Player is closed
	if p.closed {
		p.m.Unlock()
		return ErrPlayerClosed
	}

	// Unload previous media
	previous := p.path
	stale, errs := p.reset()

	// Load
	errsL, err := p.load(path)
	p.m.Unlock()

	// Emit errors that happened while the topology was locked
	p.emitErrors(append(errs, errsL...))

	// Dispose of previous elements
	p.dispose(stale)
	if stale != nil {
		p.eh.Emit(Event{Name: EventNameMediaUnloaded, Payload: previous, Target: p})
	}

	// Load failed
	if err != nil {
		err = fmt.Errorf("astiplayer: loading %s failed: %w", path, err)
		return
	}

	// Emit
	p.eh.Emit(Event{Name: EventNameMediaLoaded, Payload: path, Target: p})
	return
}

// Assumes the topology is locked. Errors that don't make the load fail are returned
// in errs so that they're emitted once the topology is unlocked.
func (p *Player) load(path string) (errs []error, err error) {
	// Create elements
	count := atomic.AddUint64(&countLoad, uint64(1))
	var es []Element
	if es, err = p.newElements(
		[2]string{p.o.Elements.Source, fmt.Sprintf("source_%d", count)},
		[2]string{p.o.Elements.Demuxer, fmt.Sprintf("demuxer_%d", count)},
	); err != nil {
		return
	}
	source, demuxer := es[0], es[1]

	// Set location
	if err = source.SetProperty("location", path); err != nil {
		err = fmt.Errorf("astiplayer: setting location of %s failed: %w", source.Name(), err)
		return
	}

	// Undo everything if something fails
	c := astikit.NewCloser()
	defer func() {
		if err != nil {
			if errC := c.Close(); errC != nil {
				errs = append(errs, fmt.Errorf("astiplayer: rolling back load of %s failed: %w", path, errC))
			}
		}
	}()

	// Add elements
	for _, e := range []Element{source, demuxer, p.sinkBin} {
		if err = p.pipeline.Add(e); err != nil {
			err = fmt.Errorf("astiplayer: adding %s failed: %w", e.Name(), err)
			return
		}
		e := e
		c.Add(func() error { return p.pipeline.Remove(e) })
	}

	// Link source to demuxer
	if err = source.Link(demuxer); err != nil {
		err = fmt.Errorf("astiplayer: linking %s to %s failed: %w", source.Name(), demuxer.Name(), err)
		return
	}
	c.Add(func() error {
		source.Unlink(demuxer)
		return nil
	})

	// Handle dynamic pads
	var cancelPads func()
	if cancelPads, err = p.f.WatchPadAdded(demuxer, p.h.handlePadAdded); err != nil {
		err = fmt.Errorf("astiplayer: watching pads of %s failed: %w", demuxer.Name(), err)
		return
	}
	c.Add(func() error {
		cancelPads()
		return nil
	})

	// Update state
	p.cancelPads = cancelPads
	p.demuxer = demuxer
	p.loaded = true
	p.path = path
	p.source = source
	c.Add(func() error {
		p.cancelPads = nil
		p.demuxer = nil
		p.loaded = false
		p.path = ""
		p.source = nil
		return nil
	})

	// Elements added to a running pipeline must have their state synchronized
	for _, e := range []Element{p.sinkBin, demuxer, source} {
		if err = e.SyncStateWithParent(); err != nil {
			err = fmt.Errorf("astiplayer: synchronizing state of %s failed: %w", e.Name(), err)
			return
		}
	}
	return
}

// Reset unloads the current media. It's a no-op if nothing is loaded.
func (p *Player) Reset() {
	// Reset
	p.m.Lock()
	path := p.path
	stale, errs := p.reset()
	p.m.Unlock()
	p.emitErrors(errs)

	// Nothing was loaded
	if stale == nil {
		return
	}

	// Dispose
	p.dispose(stale)
	p.eh.Emit(Event{Name: EventNameMediaUnloaded, Payload: path, Target: p})
}

// Assumes the topology is locked. Returns the elements that need to be disposed of.
func (p *Player) reset() (stale []Element, errs []error) {
	// Nothing loaded
	if !p.loaded {
		return
	}

	// Stop handling pads of the current demuxer
	if p.cancelPads != nil {
		p.cancelPads()
	}

	// Unlink
	p.source.Unlink(p.demuxer)

	// Remove elements
	for _, e := range []Element{p.source, p.demuxer, p.sinkBin} {
		if err := p.pipeline.Remove(e); err != nil {
			errs = append(errs, fmt.Errorf("astiplayer: removing %s failed: %w", e.Name(), err))
		}
	}

	// Update state
	stale = []Element{p.source, p.demuxer}
	p.cancelPads = nil
	p.demuxer = nil
	p.loaded = false
	p.path = ""
	p.source = nil
	return
}

func (p *Player) emitErrors(errs []error) {
	for _, err := range errs {
		p.eh.Emit(EventError(p, err))
	}
}

// Stopping an element waits for its streaming threads which may be waiting for the topology
// lock, therefore this must be called without holding it
func (p *Player) dispose(es []Element) {
	for _, e := range es {
		if err := e.SetState(StateNull); err != nil {
			p.eh.Emit(EventError(p, fmt.Errorf("astiplayer: setting state of %s to %s failed: %w", e.Name(), StateNull, err)))
		}
	}
}

// Play sets the pipeline to the playing state
func (p *Player) Play() error { return p.setState(StatePlaying) }

// Pause sets the pipeline to the paused state
func (p *Player) Pause() error { return p.setState(StatePaused) }

// Stop sets the pipeline to the null state
func (p *Player) Stop() error { return p.setState(StateNull) }

func (p *Player) setState(s State) (err error) {
	// Player is closed
	if p.r.get() == nil {
		return ErrPlayerClosed
	}

	// The topology must not be locked here since state changes wait for streaming threads
	if err = p.pipeline.SetState(s); err != nil {
		err = fmt.Errorf("%w: setting pipeline state to %s failed: %w", ErrStateChange, s, err)
		return
	}
	return
}

// State returns the pipeline state
func (p *Player) State() State {
	return p.pipeline.State()
}

// Loaded returns the path of the loaded media
func (p *Player) Loaded() (path string, loaded bool) {
	p.m.Lock()
	defer p.m.Unlock()
	return p.path, p.loaded
}

// VideoSurface returns the renderable surface owned by the video sink
func (p *Player) VideoSurface() (interface{}, error) {
	v, err := p.videoSink.Property(p.o.SurfaceProperty)
	if err != nil {
		return nil, fmt.Errorf("astiplayer: getting property %s of %s failed: %w", p.o.SurfaceProperty, p.videoSink.Name(), err)
	}
	return v, nil
}

// Position returns the playback position
func (p *Player) Position() (time.Duration, bool) {
	if p.r.get() == nil {
		return 0, false
	}
	return p.pipeline.QueryPosition()
}

// Close closes the player. In-flight pad handlers become no-ops.
// It waits for the position poller to exit and must not be called from a position listener.
func (p *Player) Close() (err error) {
	p.oClose.Do(func() {
		// Stop polling
		if p.cancelPoll != nil {
			p.cancelPoll()
		}

		// Stop watching the bus
		if p.cancelBus != nil {
			p.cancelBus()
		}

		// Delete stats
		p.delStats()

		// Release the reference shared with pad handlers
		p.r.release()

		// Unload
		p.m.Lock()
		p.closed = true
		stale, errs := p.reset()
		p.m.Unlock()
		p.emitErrors(errs)
		p.dispose(stale)

		// Stop pipeline
		if errS := p.pipeline.SetState(StateNull); errS != nil {
			err = fmt.Errorf("astiplayer: setting pipeline state to %s failed: %w", StateNull, errS)
		}

		// Emit
		p.eh.Emit(Event{Name: EventNamePlayerClosed, Target: p})
	})
	return
}

func (p *Player) handleBusMessage(m Message) {
	switch m.Kind {
	case MessageKindEOS:
		p.eh.Emit(Event{Name: EventNameEOS, Target: p})
	case MessageKindError:
		p.eh.Emit(Event{Name: EventNameError, Payload: newMessageError(m), Target: p})
	case MessageKindStateChanged:
		// Only pipeline state changes are relevant
		if m.Source != p.pipeline.Name() {
			return
		}
		p.eh.Emit(Event{
			Name: EventNamePipelineStateChanged,
			Payload: EventPipelineStateChanged{
				NewState: m.NewState,
				OldState: m.OldState,
			},
			Target: p,
		})
	case MessageKindWarning:
		p.eh.Emit(Event{Name: EventNameWarning, Payload: newMessageError(m), Target: p})
	}
}

func (p *Player) post(m Message) {
	if err := p.pipeline.Bus().Post(m); err != nil {
		p.eh.Emit(EventError(p, fmt.Errorf("astiplayer: posting %s message failed: %w", m.Kind, err)))
	}
}

func (p *Player) startPolling() {
	// Polling is disabled
	if p.o.PositionPollPeriod < 0 {
		return
	}

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancelPoll = func() {
		cancel()
		<-done
	}

	// Execute in a goroutine since this is blocking
	go func() {
		defer close(done)

		// Create ticker
		t := time.NewTicker(p.o.PositionPollPeriod)
		defer t.Stop()

		// Loop
		for {
			select {
			case <-t.C:
				// Position is not available yet
				d, ok := p.Position()
				if !ok {
					continue
				}

				// Emit
				p.eh.Emit(Event{Name: EventNamePosition, Payload: d, Target: p})
			case <-ctx.Done():
				return
			}
		}
	}()
}

// playerRef is a non-owning handle on the player that resolves to nil once the player is closed
type playerRef struct {
	m *sync.Mutex
	p *Player
}

func newPlayerRef(p *Player) *playerRef {
	return &playerRef{
		m: &sync.Mutex{},
		p: p,
	}
}

func (r *playerRef) get() *Player {
	r.m.Lock()
	defer r.m.Unlock()
	return r.p
}

func (r *playerRef) release() {
	r.m.Lock()
	defer r.m.Unlock()
	r.p = nil
}

// PlayerTopology represents a snapshot of the pipeline graph
type PlayerTopology struct {
	Elements []TopologyElement
	Loaded   bool
	Path     string
	State    State
}

// TopologyElement represents an element of the pipeline graph
type TopologyElement struct {
	Children []TopologyElement
	Name     string
	State    State
}

// Topology returns a snapshot of the pipeline graph
func (p *Player) Topology() PlayerTopology {
	// Lock topology
	p.m.Lock()
	defer p.m.Unlock()

	// Create topology
	t := PlayerTopology{
		Elements: newTopologyElements(p.pipeline.Elements()),
		Loaded:   p.loaded,
		Path:     p.path,
		State:    p.pipeline.State(),
	}
	return t
}

func newTopologyElements(es []Element) (ts []TopologyElement) {
	for _, e := range es {
		t := TopologyElement{
			Name:  e.Name(),
			State: e.State(),
		}
		if b, ok := e.(Bin); ok {
			t.Children = newTopologyElements(b.Elements())
		}
		ts = append(ts, t)
	}
	return
}
