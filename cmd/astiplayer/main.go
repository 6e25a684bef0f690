package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer"
	astigst "github.com/asticode/go-astiplayer/gstreamer"
	astilibav "github.com/asticode/go-astiplayer/libav"
)

func main() {
	// Parse flags
	flag.Parse()

	// Create logger
	l := log.New(log.Writer(), log.Prefix(), log.Flags())

	// Create configuration
	c, err := newConfiguration()
	if err != nil {
		l.Fatal(fmt.Errorf("main: creating configuration failed: %w", err))
	}

	// Create event handler
	eh := astiplayer.NewEventHandler()

	// Create server
	srv := astiplayer.NewServer(astiplayer.ServerOptions{Logger: l})
	srv.EventHandlerAdapter(eh)

	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: l})

	// Log event handler
	var os []astiplayer.EventHandlerLogOption
	if c.Log.MessageMergingPeriod.Duration > 0 {
		os = append(os, astiplayer.WithMessageMerging(c.Log.MessageMergingPeriod.Duration))
	}
	defer eh.Log(l, os...).Start(w.Context()).Close()

	// Handle signals
	w.HandleSignals()

	// Create closer
	cl := astikit.NewCloser()
	defer func() {
		if err := cl.Close(); err != nil {
			l.Println(fmt.Errorf("main: closing failed: %w", err))
		}
	}()

	// Create stater
	s := astiplayer.NewStater(c.Stats.Period.Duration, eh)
	if c.Stats.PSUtil {
		s.AddPSUtilStats()
	}

	// Create framework
	f := astigst.NewFramework(c.GStreamer)
	cl.Add(f.Close)

	// Create player
	l.Printf("main: probing with %s", astilibav.Version)
	p, err := astiplayer.NewPlayer(c.Player.Options(astilibav.NewProber(eh)), f, eh, cl, s)
	if err != nil {
		l.Fatal(fmt.Errorf("main: creating player failed: %w", err))
	}
	srv.SetPlayer(p)

	// Quit on end of stream or fatal error
	adaptEventHandler(eh, w)

	// Run main loop
	go f.Run()

	// Start stater
	go s.Start(w.Context())
	defer s.Stop()

	// Serve
	if c.Server.Addr != "" {
		serve(w, c.Server.Addr, srv.Handler(), l)
	}

	// Load input
	if *input != "" {
		if err = loadAndPlay(w.Context(), p, *input); err != nil {
			l.Fatal(fmt.Errorf("main: loading and playing %s failed: %w", *input, err))
		}
	}

	// Wait
	w.Wait()
}

func adaptEventHandler(eh *astiplayer.EventHandler, w *astikit.Worker) {
	for _, n := range []astiplayer.EventName{
		astiplayer.EventNameEOS,
		astiplayer.EventNameError,
	} {
		eh.AddForEventName(n, func(e astiplayer.Event) bool {
			// Only errors coming from the pipeline are fatal
			if e.Name == astiplayer.EventNameError {
				var me *astiplayer.MessageError
				if err, ok := e.Payload.(error); !ok || !errors.As(err, &me) {
					return false
				}
			}
			w.Stop()
			return true
		})
	}
}

func loadAndPlay(ctx context.Context, p *astiplayer.Player, path string) (err error) {
	// Load
	if err = p.Load(ctx, path); err != nil {
		err = fmt.Errorf("main: loading failed: %w", err)
		return
	}

	// Play
	if err = p.Play(); err != nil {
		err = fmt.Errorf("main: playing failed: %w", err)
		return
	}
	return
}

func serve(w *astikit.Worker, addr string, h http.Handler, l *log.Logger) {
	// Create server
	s := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	// Listen
	go func() {
		l.Printf("main: serving on %s", addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Println(fmt.Errorf("main: serving on %s failed: %w", addr, err))
			w.Stop()
		}
	}()

	// Shutdown
	go func() {
		<-w.Context().Done()
		if err := s.Shutdown(context.Background()); err != nil {
			l.Println(fmt.Errorf("main: shutting down server failed: %w", err))
		}
	}()
}
