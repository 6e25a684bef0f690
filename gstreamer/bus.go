package astigst

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/asticode/go-astiplayer"
	"github.com/go-gst/go-gst/gst"
)

type bus struct {
	b   *gst.Bus
	src *gst.Element
}

func newBus(b *gst.Bus, src *gst.Element) *bus {
	return &bus{
		b:   b,
		src: src,
	}
}

// Messages are posted on behalf of the pipeline, the emitting element name is kept in the error
func (b *bus) Post(m astiplayer.Message) error {
	// Create message
	var msg *gst.Message
	switch m.Kind {
	case astiplayer.MessageKindEOS:
		msg = gst.NewEOSMessage(b.src)
	case astiplayer.MessageKindError:
		msg = gst.NewErrorMessage(b.src, gst.NewGError(1, messageErr(m)), m.Debug, nil)
	case astiplayer.MessageKindWarning:
		msg = gst.NewWarningMessage(b.src, gst.NewGError(1, messageErr(m)), m.Debug, nil)
	default:
		return fmt.Errorf("astigst: posting %s messages is not supported", m.Kind)
	}

	// Post
	if !b.b.Post(msg) {
		return fmt.Errorf("astigst: posting %s message failed", m.Kind)
	}
	return nil
}

func messageErr(m astiplayer.Message) error {
	if m.Source != "" {
		return errors.New(m.Source + ": " + m.Description)
	}
	return errors.New(m.Description)
}

// Callbacks are executed on the main loop
func (b *bus) Watch(fn func(m astiplayer.Message)) (cancel func(), err error) {
	var cancelled uint32
	if !b.b.AddWatch(func(msg *gst.Message) bool {
		// Returning false removes the watch
		if atomic.LoadUint32(&cancelled) > 0 {
			return false
		}

		// Convert
		m, ok := newMessage(msg)
		if !ok {
			return true
		}

		// Handle
		fn(m)
		return true
	}) {
		err = errors.New("astigst: adding bus watch failed")
		return
	}
	cancel = func() { atomic.StoreUint32(&cancelled, 1) }
	return
}

func newMessage(msg *gst.Message) (m astiplayer.Message, ok bool) {
	m.Source = msg.Source()
	switch msg.Type() {
	case gst.MessageEOS:
		m.Kind = astiplayer.MessageKindEOS
	case gst.MessageError:
		m.Kind = astiplayer.MessageKindError
		if e := msg.ParseError(); e != nil {
			m.Debug = e.DebugString()
			m.Description = e.Error()
		}
	case gst.MessageStateChanged:
		m.Kind = astiplayer.MessageKindStateChanged
		o, n := msg.ParseStateChanged()
		m.NewState = fromGstState(n)
		m.OldState = fromGstState(o)
	case gst.MessageWarning:
		m.Kind = astiplayer.MessageKindWarning
		if e := msg.ParseWarning(); e != nil {
			m.Debug = e.DebugString()
			m.Description = e.Error()
		}
	default:
		return
	}
	ok = true
	return
}
