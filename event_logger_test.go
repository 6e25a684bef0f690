package astiplayer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockedLogger struct {
	m    *sync.Mutex
	msgs map[string]int
}

func newMockedLogger() *mockedLogger {
	return &mockedLogger{
		m:    &sync.Mutex{},
		msgs: make(map[string]int),
	}
}

func (l *mockedLogger) Fatal(v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprint(v...)]++
	os.Exit(1)
}
func (l *mockedLogger) Fatalf(format string, v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprintf(format, v...)]++
	os.Exit(1)
}
func (l *mockedLogger) Print(v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprint(v...)]++
}
func (l *mockedLogger) Printf(format string, v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprintf(format, v...)]++
}

func (l *mockedLogger) count(msg string) int {
	l.m.Lock()
	defer l.m.Unlock()
	return l.msgs[msg]
}

func (l *mockedLogger) reset() {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs = make(map[string]int)
}

func TestEventLogger(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml)
	WithMessageMerging(time.Hour)(nil, l)

	// Diagnostics are merged on source and description
	for _, d := range []string{"d1", "d2", "d3"} {
		l.handle(Event{Name: EventNameError, Payload: &MessageError{Debug: d, Description: "failed to insert sink", Source: "demuxer_1"}})
	}
	l.handle(Event{Name: EventNameError, Payload: &MessageError{Debug: "d1", Description: "failed to insert sink", Source: "demuxer_2"}})
	l.handle(Event{Name: EventNameWarning, Payload: &MessageError{Debug: "d1", Description: "failed to insert sink", Source: "demuxer_1"}})

	// Pads ignored are merged on media type
	l.handle(Event{Name: EventNamePadIgnored, Payload: EventPadIgnored{MediaType: "text/x-raw", Pad: "src_2"}})
	l.handle(Event{Name: EventNamePadIgnored, Payload: EventPadIgnored{MediaType: "text/x-raw", Pad: "src_3"}})

	// Other events are never merged
	l.handle(Event{Name: EventNameMediaLoaded, Payload: "/tmp/a.mp4"})
	l.handle(Event{Name: EventNameMediaLoaded, Payload: "/tmp/a.mp4"})

	require.Equal(t, map[string]int{
		"astiplayer: demuxer_1: failed to insert sink (debug: d1)": 2,
		"astiplayer: demuxer_2: failed to insert sink (debug: d1)": 1,
		"astiplayer: pad src_2 with media type text/x-raw is ignored":  1,
		"astiplayer: media /tmp/a.mp4 is loaded":                       2,
	}, ml.msgs)

	// Closing flushes merged diagnostics
	ml.reset()
	l.Close()
	require.Equal(t, map[string]int{
		"astiplayer: message repeated 2 more time(s), last one was: astiplayer: demuxer_1: failed to insert sink (debug: d3)": 1,
		"astiplayer: message repeated 1 more time(s), last one was: astiplayer: pad src_3 with media type text/x-raw is ignored": 1,
	}, ml.msgs)
	require.Empty(t, l.ms)
}

func TestEventLoggerPeriod(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml)
	WithMessageMerging(20*time.Millisecond)(nil, l)
	l.Start(context.Background())
	defer l.Close()

	e := Event{Name: EventNameWarning, Payload: &MessageError{Description: "failed to get media type from pad src_0", Source: "demuxer_1"}}
	l.handle(e)
	l.handle(e)
	require.Eventually(t, func() bool {
		return ml.count("astiplayer: message repeated 1 more time(s), last one was: "+diagnosticMessage(e)) == 1
	}, time.Second, 5*time.Millisecond)

	// A new period starts
	l.handle(e)
	require.Equal(t, 2, ml.count(diagnosticMessage(e)))
}

func TestEventLoggerWithoutMerging(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml).Start(context.Background())
	e := Event{Name: EventNameError, Payload: errors.New("astiplayer: removing source_1 failed")}
	l.handle(e)
	l.handle(e)
	l.Close()
	require.Equal(t, map[string]int{"astiplayer: removing source_1 failed": 2}, ml.msgs)
}

func TestEventHandlerLog(t *testing.T) {
	ml := newMockedLogger()
	eh := NewEventHandler()
	l := eh.Log(ml).Start(context.Background())
	defer l.Close()

	eh.Emit(Event{Name: EventNameMediaLoaded, Payload: "/tmp/a.mp4"})
	require.Equal(t, 1, ml.count("astiplayer: media /tmp/a.mp4 is loaded"))

	eh.Emit(Event{Name: EventNamePadLinked, Payload: EventPadLinked{MediaType: "video/x-raw", Pad: "src_0", Sink: "binsink"}})
	require.Equal(t, 1, ml.count("astiplayer: pad src_0 (video/x-raw) is linked to binsink"))

	eh.Emit(Event{Name: EventNamePipelineStateChanged, Payload: EventPipelineStateChanged{NewState: StatePlaying, OldState: StatePaused}})
	require.Equal(t, 1, ml.count("astiplayer: pipeline state changed from paused to playing"))

	eh.Emit(Event{Name: EventNameWarning, Payload: &MessageError{Description: "d", Source: "demuxer_1"}})
	require.Equal(t, 1, ml.count("astiplayer: demuxer_1: d"))

	// Positions are not logged
	eh.Emit(Event{Name: EventNamePosition, Payload: time.Second})
	require.Equal(t, 4, len(ml.msgs))
}
