package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nyiyui.ca/hato/railnet/config"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/kujo"
	"nyiyui.ca/hato/railnet/metrics"
	"nyiyui.ca/hato/railnet/notify"
	"nyiyui.ca/hato/railnet/sakuragi"
	"nyiyui.ca/hato/railnet/store"
	"nyiyui.ca/hato/railnet/tal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guide with the viewer stream, the API, and the status page",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "localhost:8080", "address to serve on")
	serveCmd.Flags().Duration("tick", 100*time.Millisecond, "tick interval")
	serveCmd.Flags().String("trace", "", "append every viewer-sync event to this file")
	serveCmd.Flags().StringSlice("cors-origins", []string{"*"}, "origins allowed to use the API")
	serveCmd.Flags().Duration("simulate", 0, "move routed trains one rail per interval (0 disables)")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("tick", serveCmd.Flags().Lookup("tick"))
	viper.BindPFlag("trace", serveCmd.Flags().Lookup("trace"))
	viper.BindPFlag("cors_origins", serveCmd.Flags().Lookup("cors-origins"))
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(s.DB)
	if err != nil {
		return err
	}
	defer st.Close()
	w, trains, err := loadWorld(cmd, s, st)
	if err != nil {
		return err
	}
	if err := st.ReplaceAll(w.Cells()); err != nil {
		return err
	}
	st.Track(w)

	feed := grid.NewFeed()
	for _, o := range trains {
		feed.Put(o)
	}
	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}
	g := tal.NewGuide(tal.GuideConf[grid.Pos]{
		Comment: "serve",
		Oracle:  w,
		Feed:    feed,
		Starts:  w.Anchors(),
		Metrics: collector,
	})
	defer g.Close()
	w.OnChange(g.MarkDirty)

	ks := kujo.NewServer(kujo.Conf[grid.Pos]{
		Guide:       g,
		ParsePos:    grid.ParsePos,
		Metrics:     collector,
		CORSOrigins: s.CORSOrigins,
	})
	mux := http.NewServeMux()
	mux.Handle("/", ks)
	mux.Handle("/status/", http.StripPrefix("/status", sakuragi.New(sakuragi.Conf[grid.Pos]{Comment: "railnet", Guide: g})))
	srv := &http.Server{Addr: s.Listen, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Run(ctx, s.Tick) })
	eg.Go(func() error { return ks.Run(ctx) })
	eg.Go(func() error {
		zap.S().Infow("serving", "listen", s.Listen)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if every, _ := cmd.Flags().GetDuration("simulate"); every > 0 {
		sim := grid.NewSimulator("serve", feed)
		eg.Go(func() error { return sim.Run(ctx, g, every) })
	}
	if s.World != "" {
		watcher, err := config.NewWatcher(s.World)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return watcher.Run(ctx, func(l *config.Layout) {
				cells, err := l.Descriptors()
				if err != nil {
					zap.S().Warnw("ignoring layout", "err", err)
					return
				}
				w.Replace(cells)
			})
		})
	}
	if s.Trace != "" {
		f, err := os.OpenFile(s.Trace, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		r := notify.NewRecorder[tal.Event[grid.Pos]](f)
		eg.Go(func() error { return r.Run(ctx, g.EventMux) })
	}
	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
