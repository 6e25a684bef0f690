package astigst

import (
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiplayer"
	"github.com/go-gst/go-gst/gst"
)

type gstElementer interface {
	gstElement() *gst.Element
}

func unwrap(e astiplayer.Element) (*gst.Element, error) {
	ge, ok := e.(gstElementer)
	if !ok {
		return nil, fmt.Errorf("astigst: element %s is not a gstreamer element", e.Name())
	}
	return ge.gstElement(), nil
}

type element struct {
	e *gst.Element
}

func newElement(e *gst.Element) *element {
	return &element{e: e}
}

func (e *element) gstElement() *gst.Element { return e.e }

func (e *element) Link(dst astiplayer.Element) error {
	d, err := unwrap(dst)
	if err != nil {
		return err
	}
	return e.e.Link(d)
}

func (e *element) Name() string { return e.e.GetName() }

func (e *element) Property(name string) (interface{}, error) {
	return e.e.GetProperty(name)
}

func (e *element) SetProperty(name string, value interface{}) error {
	return e.e.SetProperty(name, value)
}

func (e *element) SetState(s astiplayer.State) error {
	return e.e.SetState(toGstState(s))
}

func (e *element) State() astiplayer.State {
	return fromGstState(e.e.GetCurrentState())
}

func (e *element) StaticPad(name string) (astiplayer.Pad, error) {
	p := e.e.GetStaticPad(name)
	if p == nil {
		return nil, fmt.Errorf("astigst: %s has no static pad %s", e.Name(), name)
	}
	return newPad(p), nil
}

func (e *element) SyncStateWithParent() error {
	if !e.e.SyncStateWithParent() {
		return fmt.Errorf("astigst: synchronizing state of %s with its parent failed", e.Name())
	}
	return nil
}

func (e *element) Unlink(dst astiplayer.Element) {
	d, err := unwrap(dst)
	if err != nil {
		return
	}
	e.e.Unlink(d)
}

// Children are tracked so that nested bins keep their wrapper
type bin struct {
	*element
	b  *gst.Bin
	cs []astiplayer.Element
	m  *sync.Mutex // Locks cs
}

func newBin(b *gst.Bin) *bin {
	return &bin{
		b:       b,
		element: newElement(b.Element),
		m:       &sync.Mutex{},
	}
}

func (b *bin) Add(es ...astiplayer.Element) error {
	for _, e := range es {
		ge, err := unwrap(e)
		if err != nil {
			return err
		}
		if err = b.b.Add(ge); err != nil {
			return fmt.Errorf("astigst: adding %s to %s failed: %w", e.Name(), b.Name(), err)
		}
		b.m.Lock()
		b.cs = append(b.cs, e)
		b.m.Unlock()
	}
	return nil
}

func (b *bin) AddGhostPad(name string, target astiplayer.Pad) error {
	// Unwrap
	t, ok := target.(*pad)
	if !ok {
		return fmt.Errorf("astigst: pad %s is not a gstreamer pad", target.Name())
	}

	// Create ghost pad
	g := gst.NewGhostPad(name, t.p)
	if g == nil {
		return fmt.Errorf("astigst: creating ghost pad %s failed", name)
	}

	// Add
	if !b.b.AddPad(g.Pad) {
		return fmt.Errorf("astigst: adding ghost pad %s to %s failed", name, b.Name())
	}
	return nil
}

func (b *bin) Elements() []astiplayer.Element {
	b.m.Lock()
	defer b.m.Unlock()
	return append([]astiplayer.Element{}, b.cs...)
}

func (b *bin) Remove(es ...astiplayer.Element) error {
	for _, e := range es {
		ge, err := unwrap(e)
		if err != nil {
			return err
		}
		if err = b.b.Remove(ge); err != nil {
			return fmt.Errorf("astigst: removing %s from %s failed: %w", e.Name(), b.Name(), err)
		}
		b.m.Lock()
		for idx, c := range b.cs {
			if c == e {
				b.cs = append(b.cs[:idx], b.cs[idx+1:]...)
				break
			}
		}
		b.m.Unlock()
	}
	return nil
}

type pipeline struct {
	*bin
	bus *bus
	p   *gst.Pipeline
}

func newPipeline(p *gst.Pipeline) *pipeline {
	return &pipeline{
		bin: newBin(p.Bin),
		bus: newBus(p.GetPipelineBus(), p.Element),
		p:   p,
	}
}

func (p *pipeline) Bus() astiplayer.Bus { return p.bus }

func (p *pipeline) QueryPosition() (time.Duration, bool) {
	ok, v := p.p.QueryPosition(gst.FormatTime)
	if !ok || v < 0 {
		return 0, false
	}
	return time.Duration(v), true
}

type pad struct {
	p *gst.Pad
}

func newPad(p *gst.Pad) *pad {
	return &pad{p: p}
}

func (p *pad) IsLinked() bool { return p.p.IsLinked() }

func (p *pad) Link(sink astiplayer.Pad) error {
	s, ok := sink.(*pad)
	if !ok {
		return fmt.Errorf("astigst: pad %s is not a gstreamer pad", sink.Name())
	}
	if r := p.p.Link(s.p); r != gst.PadLinkOK {
		return fmt.Errorf("astigst: linking %s to %s failed: %s", p.Name(), sink.Name(), r)
	}
	return nil
}

func (p *pad) MediaType() (string, bool) {
	caps := p.p.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 {
		return "", false
	}
	return caps.GetStructureAt(0).Name(), true
}

func (p *pad) Name() string { return p.p.GetName() }

func toGstState(s astiplayer.State) gst.State {
	switch s {
	case astiplayer.StateReady:
		return gst.StateReady
	case astiplayer.StatePaused:
		return gst.StatePaused
	case astiplayer.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}

func fromGstState(s gst.State) astiplayer.State {
	switch s {
	case gst.StateReady:
		return astiplayer.StateReady
	case gst.StatePaused:
		return astiplayer.StatePaused
	case gst.StatePlaying:
		return astiplayer.StatePlaying
	default:
		return astiplayer.StateNull
	}
}
