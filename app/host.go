package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// MaxLineSize bounds one command line on the input.
const MaxLineSize = 16 << 20

// Serve runs an engine fed with one JSON command per line from in, writing
// one JSON response per line to out. It returns once the engine has stopped
// and everything it emitted is written.
func Serve(ctx context.Context, cfg *Config, in io.Reader, out io.Writer,
	store StoreFactory, transport TransportFactory) (err error) {

	responses := make(ChanEmitter, cfg.QueueSize)
	eng := New(cfg, store, transport, responses)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.Run(ctx)
		return nil
	})
	g.Go(func() error { return readCommands(ctx, in, eng, responses) })
	g.Go(func() error { return writeResponses(out, responses, eng.Done()) })
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(eng.Stats().Collectors()...)
		srv := &http.Server{
			Addr:    cfg.MetricsListen,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() (err error) {
			log.I.Ln("serving metrics on", cfg.MetricsListen)
			if err = srv.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			return
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-eng.Done():
			}
			return srv.Close()
		})
	}
	return g.Wait()
}

// readCommands feeds the engine until the input ends or the engine stops.
// Commands that fail to parse are answered with an error response.
func readCommands(ctx context.Context, in io.Reader, eng *Engine,
	out Emitter) (err error) {

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	// a read from in cannot be interrupted, so the scanner is left behind
	// when the engine stops first
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64<<10), MaxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-eng.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-eng.Done():
			return
		case err = <-scanErr:
			log.D.Ln("end of input")
			eng.CloseInput()
			if chk.E(err) {
				return
			}
			return nil
		case line := <-lines:
			cmd, id, err := ParseCommand(line)
			if chk.D(err) {
				out.Emit(NewError(id, err))
				continue
			}
			if errors.Is(eng.Send(cmd), ErrClosed) {
				return nil
			}
		}
	}
}

// writeResponses writes until the engine has stopped and nothing it emitted
// is left.
func writeResponses(w io.Writer, responses ChanEmitter,
	done <-chan struct{}) (err error) {

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	write := func(r Response) error {
		if err := enc.Encode(r); chk.E(err) {
			return err
		}
		return bw.Flush()
	}
	for {
		select {
		case r := <-responses:
			if err = write(r); err != nil {
				return
			}
		case <-done:
			for {
				select {
				case r := <-responses:
					if err = write(r); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
