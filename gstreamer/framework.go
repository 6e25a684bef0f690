package astigst

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiplayer"
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
)

var initOnce = &sync.Once{}

// Options represents framework options
type Options struct {
	// Replaces the GST_DEBUG environment variable
	DebugLevel   int  `toml:"debug_level" yaml:"debug_level"`
	DebugNoColor bool `toml:"debug_no_color" yaml:"debug_no_color"`
}

func (o Options) args() (args []string) {
	args = []string{"astiplayer"}
	if o.DebugLevel > 0 {
		args = append(args, "--gst-debug-level="+strconv.Itoa(o.DebugLevel))
	}
	if o.DebugNoColor {
		args = append(args, "--gst-debug-no-color")
	}
	return
}

// Framework implements astiplayer.Framework on top of GStreamer
type Framework struct {
	mainLoop *glib.MainLoop
}

// NewFramework initializes GStreamer once and creates a new framework
func NewFramework(o Options) *Framework {
	// Init
	initOnce.Do(func() {
		args := o.args()
		gst.Init(&args)
	})

	// Create framework
	return &Framework{mainLoop: glib.NewMainLoop(glib.MainContextDefault(), false)}
}

// Run runs the main loop bus watches are dispatched on. It's blocking.
func (f *Framework) Run() {
	f.mainLoop.Run()
}

// Close quits the main loop
func (f *Framework) Close() error {
	f.mainLoop.Quit()
	return nil
}

// NewBin implements the astiplayer.Framework interface
func (f *Framework) NewBin(name string) (astiplayer.Bin, error) {
	b := gst.NewBin(name)
	if b == nil {
		return nil, fmt.Errorf("astigst: creating bin %s failed", name)
	}
	return newBin(b), nil
}

// NewElement implements the astiplayer.Framework interface
func (f *Framework) NewElement(factory, name string) (astiplayer.Element, error) {
	e, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("astigst: creating %s element %s failed: %w", factory, name, err)
	}
	return newElement(e), nil
}

// NewPipeline implements the astiplayer.Framework interface
func (f *Framework) NewPipeline(name string) (astiplayer.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("astigst: creating pipeline %s failed: %w", name, err)
	}
	return newPipeline(p), nil
}

// WatchPadAdded implements the astiplayer.Framework interface
func (f *Framework) WatchPadAdded(e astiplayer.Element, fn astiplayer.PadAddedFunc) (cancel func(), err error) {
	// Unwrap
	ge, ok := e.(gstElementer)
	if !ok {
		err = fmt.Errorf("astigst: element %s is not a gstreamer element", e.Name())
		return
	}

	// Signal handlers can't be disconnected safely while being executed, therefore a flag is used
	var cancelled uint32
	if _, err = ge.gstElement().Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		if atomic.LoadUint32(&cancelled) > 0 {
			return
		}
		fn(astiplayer.PadAdded{
			Element: e,
			Pad:     newPad(pad),
		})
	}); err != nil {
		err = fmt.Errorf("astigst: connecting to pad-added signal of %s failed: %w", e.Name(), err)
		return
	}
	cancel = func() { atomic.StoreUint32(&cancelled, 1) }
	return
}
