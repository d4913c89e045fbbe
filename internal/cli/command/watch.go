package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/dirstore-go/internal/cli/output"
	"github.com/yndnr/dirstore-go/internal/infra/fswatch"
	"github.com/yndnr/dirstore-go/internal/infra/shutdown"
	"github.com/yndnr/dirstore-go/internal/telemetry/metric"
	"github.com/yndnr/dirstore-go/pkg/dirstore"
)

const shutdownTimeout = 10 * time.Second

// rescanEvent is printed for every rescan in json/yaml output.
type rescanEvent struct {
	Time    time.Time `json:"time" yaml:"time"`
	Changed []string  `json:"changed" yaml:"changed"`
	Entries int       `json:"entries" yaml:"entries"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-verify the directory whenever entries change",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9100)",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a burst of changes triggers a rescan",
			},
		},
		Action: watchDir,
	}
}

func watchDir(c *cli.Context) error {
	e := envFrom(c)

	debounce := e.cfg.Watch.Debounce
	if c.IsSet("debounce") {
		debounce = c.Duration("debounce")
	}
	metricsAddr := e.cfg.Watch.MetricsAddr
	if c.IsSet("metrics-addr") {
		metricsAddr = c.String("metrics-addr")
	}

	reg := metric.NewRegistry()
	opts := e.dirOptions(dirstore.WithObserver(reg))

	rescan := func(changed []string) {
		ev := rescanEvent{Time: time.Now(), Changed: changed}
		set, err := e.codec.Restore(e.cfg.Dir, opts)
		if err != nil {
			ev.Error = err.Error()
			e.log.Error("rescan failed", "dir", e.cfg.Dir, "error", err)
		} else {
			ev.Entries = set.Len()
			e.log.Info("rescanned", "dir", e.cfg.Dir, "entries", ev.Entries, "changed", changed)
		}
		if e.format == output.FormatTable {
			status := fmt.Sprintf("entries=%d", ev.Entries)
			if ev.Error != "" {
				status = "error=" + ev.Error
			}
			fmt.Fprintf(e.out, "%s rescan %s changed=%v\n", ev.Time.Format(time.RFC3339), status, changed)
			return
		}
		if err := e.render(ev); err != nil {
			e.log.Warn("failed to write rescan event", "error", err)
		}
	}

	w := fswatch.New(e.cfg.Dir,
		fswatch.WithLogger(e.slogger()),
		fswatch.WithDebounce(debounce),
		fswatch.WithHiddenPrefix(e.cfg.HiddenPrefix),
		fswatch.WithRateLimit(rate.Limit(e.cfg.Watch.MaxRescansPerSecond), 1),
	)
	w.OnChange(func(_ context.Context, keys []string) { rescan(keys) })

	rescan(nil)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	h := shutdown.NewHandler(shutdownTimeout)

	watchDone := make(chan error, 1)
	go func() {
		err := w.Run(ctx)
		watchDone <- err
		if err != nil {
			h.Trigger()
		}
	}()
	h.OnShutdown(func(context.Context) error {
		cancel()
		return <-watchDone
	})

	if metricsAddr != "" {
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			cancel()
			<-watchDone
			return fmt.Errorf("listen %s: %w", metricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Error("metrics server failed", "error", err)
			}
		}()
		e.log.Info("serving metrics", "addr", ln.Addr().String())
		h.OnShutdown(srv.Shutdown)
	}

	return h.Wait(c.Context)
}
