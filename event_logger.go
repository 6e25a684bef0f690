package astiplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
)

type logLevel string

const (
	logLevelDebug logLevel = "debug"
	logLevelError logLevel = "error"
	logLevelInfo  logLevel = "info"
	logLevelWarn  logLevel = "warn"
)

// EventLogger writes player events to a logger.
// When merging is enabled, diagnostics sharing the same level, source and description
// are written once and then counted until the merging period is reached.
type EventLogger struct {
	cancel context.CancelFunc
	l      astikit.SeverityLogger
	m      *sync.Mutex // Locks ms
	ms     map[eventLoggerKey]*eventLoggerMerge
	period time.Duration
}

type eventLoggerKey struct {
	key   string
	level logLevel
}

type eventLoggerMerge struct {
	count int
	last  string
	since time.Time
}

// WithMessageMerging merges diagnostics sharing the same source and description during the provided period.
// Bus warnings tend to come in bursts, one per streaming thread.
func WithMessageMerging(period time.Duration) EventHandlerLogOption {
	return func(_ *EventHandler, l *EventLogger) {
		l.period = period
	}
}

func newEventLogger(i astikit.StdLogger) *EventLogger {
	return &EventLogger{
		l:  astikit.AdaptStdLogger(i),
		m:  &sync.Mutex{},
		ms: make(map[eventLoggerKey]*eventLoggerMerge),
	}
}

// Start starts flushing merged diagnostics once their period is reached
func (l *EventLogger) Start(ctx context.Context) *EventLogger {
	// Merging is disabled
	if l.period <= 0 {
		return l
	}

	// Create context
	ctx, l.cancel = context.WithCancel(ctx)

	// Flush in a goroutine
	go func() {
		t := time.NewTicker(max(l.period/2, time.Millisecond))
		defer t.Stop()
		for {
			select {
			case n := <-t.C:
				l.flush(func(m *eventLoggerMerge) bool { return n.Sub(m.since) >= l.period })
			case <-ctx.Done():
				return
			}
		}
	}()
	return l
}

// Close stops the event logger and flushes pending merged diagnostics
func (l *EventLogger) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	l.flush(func(*eventLoggerMerge) bool { return true })
}

func (l *EventLogger) flush(fn func(m *eventLoggerMerge) bool) {
	l.m.Lock()
	defer l.m.Unlock()
	for k, m := range l.ms {
		if !fn(m) {
			continue
		}
		if m.count > 0 {
			l.write(k.level, fmt.Sprintf("astiplayer: message repeated %d more time(s), last one was: %s", m.count, m.last))
		}
		delete(l.ms, k)
	}
}

func (l *EventLogger) handle(e Event) {
	switch e.Name {
	case EventNameEOS:
		l.write(logLevelInfo, "astiplayer: end of stream reached")
	case EventNameError:
		l.diagnostic(logLevelError, e)
	case EventNameMediaLoaded:
		l.write(logLevelInfo, fmt.Sprintf("astiplayer: media %s is loaded", e.Payload))
	case EventNameMediaProbed:
		if m, ok := e.Payload.(Media); ok {
			l.write(logLevelDebug, fmt.Sprintf("astiplayer: media %s has %d stream(s)", m.Path, len(m.Streams)))
		}
	case EventNameMediaUnloaded:
		l.write(logLevelInfo, fmt.Sprintf("astiplayer: media %s is unloaded", e.Payload))
	case EventNamePadIgnored:
		if v, ok := e.Payload.(EventPadIgnored); ok {
			l.merge(logLevelDebug, "pad.ignored."+v.MediaType, fmt.Sprintf("astiplayer: pad %s with media type %s is ignored", v.Pad, v.MediaType))
		}
	case EventNamePadLinked:
		if v, ok := e.Payload.(EventPadLinked); ok {
			l.write(logLevelInfo, fmt.Sprintf("astiplayer: pad %s (%s) is linked to %s", v.Pad, v.MediaType, v.Sink))
		}
	case EventNamePipelineStateChanged:
		if v, ok := e.Payload.(EventPipelineStateChanged); ok {
			l.write(logLevelInfo, fmt.Sprintf("astiplayer: pipeline state changed from %s to %s", v.OldState, v.NewState))
		}
	case EventNamePlayerClosed:
		l.write(logLevelDebug, "astiplayer: player is closed")
	case EventNameWarning:
		l.diagnostic(logLevelWarn, e)
	}
}

// Bus diagnostics are merged on their source and description, debug details vary from one message to another
func (l *EventLogger) diagnostic(lv logLevel, e Event) {
	// Get message
	msg := diagnosticMessage(e)

	// Get key
	key := msg
	if err, ok := e.Payload.(error); ok {
		var me *MessageError
		if errors.As(err, &me) {
			key = me.Source + ":" + me.Description
		}
	}
	l.merge(lv, key, msg)
}

func diagnosticMessage(e Event) (msg string) {
	if err, ok := e.Payload.(error); ok {
		msg = err.Error()
	} else {
		msg = fmt.Sprintf("%v", e.Payload)
	}
	if v, ok := e.Target.(Element); ok {
		msg += " (" + v.Name() + ")"
	}
	return
}

func (l *EventLogger) merge(lv logLevel, key, msg string) {
	// Merging is disabled
	if l.period <= 0 {
		l.write(lv, msg)
		return
	}

	// Lock
	l.m.Lock()
	defer l.m.Unlock()

	// Message has already been written during this period
	k := eventLoggerKey{key: key, level: lv}
	if m, ok := l.ms[k]; ok {
		m.count++
		m.last = msg
		return
	}

	// Write
	l.ms[k] = &eventLoggerMerge{since: time.Now()}
	l.write(lv, msg)
}

func (l *EventLogger) write(lv logLevel, msg string) {
	switch lv {
	case logLevelDebug:
		l.l.Debug(msg)
	case logLevelError:
		l.l.Error(msg)
	case logLevelWarn:
		l.l.Warn(msg)
	default:
		l.l.Info(msg)
	}
}
