package astiplayer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type mockedSurface struct{}

type mockedFramework struct {
	failAdds      map[string]int // Number of times adding the element fails
	failFactories map[string]error
	failRemoves   map[string]error
	failStates    map[string]map[State]error
	failWatch     error
	history       []string
	m             *sync.Mutex
	pipelines     []*mockedPipeline
	position      time.Duration
	positionOK    bool
	surface       *mockedSurface
	watchers      []*mockedPadWatcher
}

type mockedPadWatcher struct {
	cancelled bool
	e         Element
	fn        PadAddedFunc
}

func newMockedFramework() *mockedFramework {
	return &mockedFramework{
		failAdds:      make(map[string]int),
		failFactories: make(map[string]error),
		failRemoves:   make(map[string]error),
		failStates:    make(map[string]map[State]error),
		m:             &sync.Mutex{},
		surface:       &mockedSurface{},
	}
}

func (f *mockedFramework) record(format string, args ...interface{}) {
	f.history = append(f.history, fmt.Sprintf(format, args...))
}

func (f *mockedFramework) historyCopy() []string {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]string{}, f.history...)
}

func (f *mockedFramework) failState(name string, s State, err error) {
	f.m.Lock()
	defer f.m.Unlock()
	if _, ok := f.failStates[name]; !ok {
		f.failStates[name] = make(map[State]error)
	}
	f.failStates[name][s] = err
}

func (f *mockedFramework) failAdd(name string, n int) {
	f.m.Lock()
	defer f.m.Unlock()
	f.failAdds[name] = n
}

func (f *mockedFramework) failRemove(name string, err error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.failRemoves[name] = err
}

func (f *mockedFramework) setPosition(d time.Duration, ok bool) {
	f.m.Lock()
	defer f.m.Unlock()
	f.position = d
	f.positionOK = ok
}

func (f *mockedFramework) newMockedElement(factory, name string) *mockedElement {
	e := &mockedElement{
		f:       f,
		factory: factory,
		links:   make(map[*mockedElement]bool),
		name:    name,
		props:   make(map[string]interface{}),
	}
	e.pads = []*mockedPad{
		{f: f, name: "sink", owner: e},
		{f: f, name: "src", owner: e},
	}
	if factory == "gtk4paintablesink" {
		e.props["paintable"] = f.surface
	}
	return e
}

func (f *mockedFramework) newMockedBin(factory, name string) *mockedBin {
	// Bins only expose ghost pads
	e := f.newMockedElement(factory, name)
	e.pads = nil
	return &mockedBin{mockedElement: e}
}

func (f *mockedFramework) NewBin(name string) (Bin, error) {
	return f.newMockedBin("bin", name), nil
}

func (f *mockedFramework) NewElement(factory, name string) (Element, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if err := f.failFactories[factory]; err != nil {
		return nil, err
	}
	return f.newMockedElement(factory, name), nil
}

func (f *mockedFramework) NewPipeline(name string) (Pipeline, error) {
	p := &mockedPipeline{
		mockedBin: f.newMockedBin("pipeline", name),
		bus:       newMockedBus(),
	}
	f.m.Lock()
	f.pipelines = append(f.pipelines, p)
	f.m.Unlock()
	return p, nil
}

func (f *mockedFramework) WatchPadAdded(e Element, fn PadAddedFunc) (cancel func(), err error) {
	f.m.Lock()
	defer f.m.Unlock()
	if f.failWatch != nil {
		return nil, f.failWatch
	}
	w := &mockedPadWatcher{
		e:  e,
		fn: fn,
	}
	f.watchers = append(f.watchers, w)
	return func() {
		f.m.Lock()
		defer f.m.Unlock()
		w.cancelled = true
	}, nil
}

// Mimics a demuxer exposing a new pad on a streaming thread
func (f *mockedFramework) padAdded(e Element, p *mockedPad) {
	// Get watchers
	f.m.Lock()
	me := e.(mockedElementer).mocked()
	p.owner = me
	me.pads = append(me.pads, p)
	var fns []PadAddedFunc
	for _, w := range f.watchers {
		if w.cancelled || w.e.(mockedElementer).mocked() != me {
			continue
		}
		fns = append(fns, w.fn)
	}
	f.m.Unlock()

	// Execute
	for _, fn := range fns {
		fn(PadAdded{
			Element: e,
			Pad:     p,
		})
	}
}

func (f *mockedFramework) newPad(name, mediaType string) *mockedPad {
	return &mockedPad{
		f:         f,
		hasCaps:   mediaType != "",
		mediaType: mediaType,
		name:      name,
	}
}

type mockedElementer interface {
	mocked() *mockedElement
}

func mocked(e Element) (*mockedElement, error) {
	v, ok := e.(mockedElementer)
	if !ok {
		return nil, fmt.Errorf("%s is not a mocked element", e.Name())
	}
	return v.mocked(), nil
}

type mockedElement struct {
	children []Element
	f        *mockedFramework
	factory  string
	links    map[*mockedElement]bool
	name     string
	pads     []*mockedPad
	parent   *mockedElement
	props    map[string]interface{}
	state    State
}

func (e *mockedElement) mocked() *mockedElement { return e }

func (e *mockedElement) Link(dst Element) error {
	d, err := mocked(dst)
	if err != nil {
		return err
	}
	e.f.m.Lock()
	defer e.f.m.Unlock()
	if e.parent == nil || e.parent != d.parent {
		return fmt.Errorf("%s and %s don't share the same parent", e.name, d.name)
	}
	e.links[d] = true
	return nil
}

func (e *mockedElement) linked(dst Element) bool {
	d, _ := mocked(dst)
	e.f.m.Lock()
	defer e.f.m.Unlock()
	return e.links[d]
}

func (e *mockedElement) Name() string { return e.name }

func (e *mockedElement) Property(name string) (interface{}, error) {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	v, ok := e.props[name]
	if !ok {
		return nil, fmt.Errorf("%s has no property %s", e.name, name)
	}
	return v, nil
}

func (e *mockedElement) SetProperty(name string, value interface{}) error {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	e.props[name] = value
	return nil
}

func (e *mockedElement) SetState(s State) error {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	if err := e.f.failStates[e.name][s]; err != nil {
		return err
	}
	e.setState(s)
	e.f.record("state:%s:%s", e.name, s)
	return nil
}

// Assumes the framework is locked
func (e *mockedElement) setState(s State) {
	e.state = s
	for _, c := range e.children {
		c.(mockedElementer).mocked().setState(s)
	}
}

func (e *mockedElement) State() State {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	return e.state
}

func (e *mockedElement) StaticPad(name string) (Pad, error) {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	for _, p := range e.pads {
		if p.name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s has no pad %s", e.name, name)
}

func (e *mockedElement) SyncStateWithParent() error {
	e.f.m.Lock()
	defer e.f.m.Unlock()
	if e.parent == nil {
		return fmt.Errorf("%s has no parent", e.name)
	}
	e.setState(e.parent.state)
	e.f.record("sync:%s", e.name)
	return nil
}

func (e *mockedElement) Unlink(dst Element) {
	d, err := mocked(dst)
	if err != nil {
		return
	}
	e.f.m.Lock()
	defer e.f.m.Unlock()
	delete(e.links, d)
}

type mockedBin struct {
	*mockedElement
}

func (b *mockedBin) Add(es ...Element) error {
	for _, e := range es {
		me, err := mocked(e)
		if err != nil {
			return err
		}
		b.f.m.Lock()
		if b.f.failAdds[me.name] > 0 {
			b.f.failAdds[me.name]--
			b.f.m.Unlock()
			return fmt.Errorf("adding %s failed", me.name)
		}
		if me.parent != nil {
			b.f.m.Unlock()
			return fmt.Errorf("%s already has a parent", me.name)
		}
		me.parent = b.mockedElement
		b.children = append(b.children, e)
		b.f.record("add:%s", me.name)
		b.f.m.Unlock()
	}
	return nil
}

func (b *mockedBin) AddGhostPad(name string, target Pad) error {
	b.f.m.Lock()
	defer b.f.m.Unlock()
	if _, ok := target.(*mockedPad); !ok {
		return errors.New("target is not a mocked pad")
	}
	b.pads = append(b.pads, &mockedPad{
		f:     b.f,
		name:  name,
		owner: b.mockedElement,
	})
	return nil
}

func (b *mockedBin) Elements() []Element {
	b.f.m.Lock()
	defer b.f.m.Unlock()
	return append([]Element{}, b.children...)
}

func (b *mockedBin) childNames() (ns []string) {
	for _, e := range b.Elements() {
		ns = append(ns, e.Name())
	}
	return
}

func (b *mockedBin) Remove(es ...Element) error {
	for _, e := range es {
		me, err := mocked(e)
		if err != nil {
			return err
		}
		if err = b.remove(me); err != nil {
			return err
		}
	}
	return nil
}

func (b *mockedBin) remove(me *mockedElement) error {
	b.f.m.Lock()
	defer b.f.m.Unlock()
	if err := b.f.failRemoves[me.name]; err != nil {
		return err
	}

	// Find child
	idx := -1
	for i, c := range b.children {
		if c.(mockedElementer).mocked() == me {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s is not a child of %s", me.name, b.name)
	}

	// Remove
	b.children = append(b.children[:idx], b.children[idx+1:]...)
	me.parent = nil
	b.f.record("remove:%s", me.name)

	// Removing an element unlinks it
	me.links = make(map[*mockedElement]bool)
	for _, c := range b.children {
		delete(c.(mockedElementer).mocked().links, me)
	}
	for _, p := range me.pads {
		if p.peer != nil {
			p.peer.peer = nil
			p.peer = nil
		}
	}
	return nil
}

type mockedPipeline struct {
	*mockedBin
	bus *mockedBus
}

func (p *mockedPipeline) Bus() Bus { return p.bus }

func (p *mockedPipeline) QueryPosition() (time.Duration, bool) {
	p.f.m.Lock()
	defer p.f.m.Unlock()
	return p.f.position, p.f.positionOK
}

func (p *mockedPipeline) SetState(s State) error {
	o := p.State()
	if err := p.mockedBin.SetState(s); err != nil {
		return err
	}
	if o != s {
		p.bus.Post(Message{
			Kind:     MessageKindStateChanged,
			NewState: s,
			OldState: o,
			Source:   p.name,
		})
	}
	return nil
}

type mockedPad struct {
	f           *mockedFramework
	hasCaps     bool
	linkedState State
	mediaType   string
	name        string
	owner       *mockedElement
	peer        *mockedPad
}

func (p *mockedPad) IsLinked() bool {
	p.f.m.Lock()
	defer p.f.m.Unlock()
	return p.peer != nil
}

func (p *mockedPad) Link(sink Pad) error {
	s, ok := sink.(*mockedPad)
	if !ok {
		return errors.New("sink is not a mocked pad")
	}
	p.f.m.Lock()
	defer p.f.m.Unlock()
	if p.peer != nil || s.peer != nil {
		return fmt.Errorf("%s or %s is already linked", p.name, s.name)
	}
	if p.owner == nil || p.owner.parent == nil || s.owner.parent == nil {
		return fmt.Errorf("%s and %s don't share a common ancestor", p.name, s.name)
	}
	p.peer = s
	s.peer = p
	s.linkedState = s.owner.state
	p.f.record("link:%s:%s:%s", p.name, s.owner.name, s.name)
	return nil
}

func (p *mockedPad) MediaType() (string, bool) {
	return p.mediaType, p.hasCaps
}

func (p *mockedPad) Name() string { return p.name }

func (p *mockedPad) peerPad() *mockedPad {
	p.f.m.Lock()
	defer p.f.m.Unlock()
	return p.peer
}

type mockedBus struct {
	failPost error
	m        *sync.Mutex
	posted   []Message
	watchers []*mockedBusWatcher
}

type mockedBusWatcher struct {
	cancelled bool
	fn        func(m Message)
}

func newMockedBus() *mockedBus {
	return &mockedBus{m: &sync.Mutex{}}
}

func (b *mockedBus) Post(m Message) error {
	// Store
	b.m.Lock()
	if b.failPost != nil {
		b.m.Unlock()
		return b.failPost
	}
	b.posted = append(b.posted, m)
	var fns []func(m Message)
	for _, w := range b.watchers {
		if !w.cancelled {
			fns = append(fns, w.fn)
		}
	}
	b.m.Unlock()

	// Dispatch
	for _, fn := range fns {
		fn(m)
	}
	return nil
}

func (b *mockedBus) Watch(fn func(m Message)) (cancel func(), err error) {
	b.m.Lock()
	defer b.m.Unlock()
	w := &mockedBusWatcher{fn: fn}
	b.watchers = append(b.watchers, w)
	return func() {
		b.m.Lock()
		defer b.m.Unlock()
		w.cancelled = true
	}, nil
}

func (b *mockedBus) messages() []Message {
	b.m.Lock()
	defer b.m.Unlock()
	return append([]Message{}, b.posted...)
}
