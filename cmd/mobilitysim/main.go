// mobilitysim runs a mobility scenario: it loads segments and model
// configuration from a YAML file, drives the shared timer queue, and prints
// the link, node, and model events the models emit. Metrics are exposed on
// /metrics and tracing is configured from MOBILITY_TRACING_* environment
// variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haveagr8day/core/core"
	"github.com/haveagr8day/core/internal/logging"
	"github.com/haveagr8day/core/internal/observability"
	"github.com/haveagr8day/core/scenario"
	"github.com/haveagr8day/core/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "configs/scenario.yaml", "path to the scenario YAML file")
	metricsAddr := flag.String("metrics", ":9100", "listen address for the /metrics endpoint (empty to disable)")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.Error(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewMobilityCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.Error(err))
		os.Exit(1)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(ctx, "metrics server failed", logging.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info(ctx, "metrics listening", logging.String("addr", *metricsAddr))
	}

	scn, err := scenario.Load(*scenarioPath)
	if err != nil {
		log.Error(ctx, "scenario load failed",
			logging.String("path", *scenarioPath),
			logging.Error(err))
		os.Exit(1)
	}

	bcast := core.NewFanout()
	bcast.OnLink(func(ev core.LinkEvent) {
		fmt.Printf("link %s: n%d <-> n%d (segment %d)\n",
			ev.Type, ev.Node1ID, ev.Node2ID, ev.NetworkID)
	})
	bcast.OnNode(func(ev core.NodeEvent) {
		fmt.Printf("move %s: (%.1f, %.1f)\n", ev.Name, ev.Position.X, ev.Position.Y)
	})
	bcast.OnModel(func(ev core.ModelEvent) {
		fmt.Printf("model %s on segment %d: %s (t=%.1fs end=%.1fs)\n",
			ev.Model, ev.NetworkID, ev.State, ev.Start, ev.End)
	})

	registry := core.NewRegistry()
	queue := timectrl.NewEventQueue(nil)
	coord := core.NewCoordinator(core.CoordinatorDeps{
		Registry: registry,
		Queue:    queue,
		Bcast:    bcast,
		Log:      log,
		Metrics:  collector,
		Session:  scn.SessionInfo(),
	})

	if err := scenario.Apply(scn, registry, coord, log); err != nil {
		log.Error(ctx, "scenario apply failed", logging.Error(err))
		os.Exit(1)
	}

	go queue.Run(ctx)
	coord.Startup()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-time.After(*duration):
		case <-sig:
		}
	} else {
		<-sig
	}

	log.Info(ctx, "shutting down")
	cancel()
}
