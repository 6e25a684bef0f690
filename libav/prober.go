package astilibav

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer"
	"github.com/asticode/goav/avcodec"
	"github.com/asticode/goav/avformat"
	"github.com/asticode/goav/avutil"
)

var countProber uint64

// Prober inspects medias with libav before they are handed to the player
type Prober struct {
	eh   *astiplayer.EventHandler
	name string
}

// NewProber creates a new prober
func NewProber(eh *astiplayer.EventHandler) *Prober {
	return &Prober{
		eh:   eh,
		name: fmt.Sprintf("prober_%d", atomic.AddUint64(&countProber, uint64(1))),
	}
}

// String implements the fmt.Stringer interface
func (p *Prober) String() string { return p.name }

// Probe implements the astiplayer.MediaProber interface
func (p *Prober) Probe(ctx context.Context, path string) (m astiplayer.Media, err error) {
	// Create closer
	c := astikit.NewCloser()
	defer func() {
		if errC := c.Close(); errC != nil && p.eh != nil {
			p.eh.Emit(astiplayer.EventError(p, fmt.Errorf("astilibav: closing prober failed: %w", errC)))
		}
	}()

	// Alloc ctx
	ctxFormat := avformat.AvformatAllocContext()

	// Opening the input is interrupted once the context is done
	interruptRet := ctxFormat.SetInterruptCallback()
	*interruptRet = 0
	probeCtx, probeCancel := context.WithCancel(ctx)
	defer probeCancel()
	go func() {
		<-probeCtx.Done()
		if ctx.Err() != nil {
			*interruptRet = 1
		}
	}()

	// Open input
	if ret := avformat.AvformatOpenInput(&ctxFormat, path, nil, nil); ret < 0 {
		err = fmt.Errorf("astilibav: avformat.AvformatOpenInput on %s failed: %w", path, NewAvError(ret))
		return
	}

	// Make sure the input is properly closed
	c.Add(func() error {
		avformat.AvformatCloseInput(ctxFormat)
		return nil
	})

	// Check whether probe has been cancelled
	if err = ctx.Err(); err != nil {
		err = fmt.Errorf("astilibav: probing has been cancelled: %w", err)
		return
	}

	// Retrieve stream information
	if ret := ctxFormat.AvformatFindStreamInfo(nil); ret < 0 {
		err = fmt.Errorf("astilibav: ctxFormat.AvformatFindStreamInfo on %s failed: %w", path, NewAvError(ret))
		return
	}

	// Check whether probe has been cancelled
	if err = ctx.Err(); err != nil {
		err = fmt.Errorf("astilibav: probing has been cancelled: %w", err)
		return
	}

	// Create media
	m = astiplayer.Media{Path: path}
	if d := ctxFormat.Duration(); d > 0 {
		// Expressed in AV_TIME_BASE units
		m.Duration = time.Duration(d) * time.Microsecond
	}

	// Loop through streams
	for _, s := range ctxFormat.Streams() {
		m.Streams = append(m.Streams, newMediaStream(s))
	}
	return
}

func newMediaStream(s *avformat.Stream) (ms astiplayer.MediaStream) {
	// Shared
	ms = astiplayer.MediaStream{
		Index:     s.Index(),
		MediaType: mediaTypeName(s.CodecParameters().CodecType()),
	}
	if d := avcodec.AvcodecDescriptorGet(s.CodecParameters().CodecId()); d != nil {
		ms.Codec = d.Name()
	}
	if tb := s.TimeBase(); tb.ToDouble() > 0 {
		ms.TimeBase = tb.String()
	}

	// Video
	if ms.MediaType == astiplayer.MediaTypeVideo {
		if fr := streamFrameRate(s); fr.ToDouble() > 0 {
			ms.FrameRate = fr.String()
		}
	}
	return
}

func streamFrameRate(s *avformat.Stream) avutil.Rational {
	if v := s.AvgFrameRate(); v.Num() > 0 {
		return v
	}
	return s.RFrameRate()
}

func mediaTypeName(t avcodec.MediaType) string {
	switch t {
	case avutil.AVMEDIA_TYPE_ATTACHMENT:
		return astiplayer.MediaTypeAttachment
	case avutil.AVMEDIA_TYPE_AUDIO:
		return astiplayer.MediaTypeAudio
	case avutil.AVMEDIA_TYPE_DATA:
		return astiplayer.MediaTypeData
	case avutil.AVMEDIA_TYPE_SUBTITLE:
		return astiplayer.MediaTypeSubtitle
	case avutil.AVMEDIA_TYPE_VIDEO:
		return astiplayer.MediaTypeVideo
	default:
		return astiplayer.MediaTypeUnknown
	}
}
