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

	"weather-etl/internal/config"
	"weather-etl/internal/extract"
	"weather-etl/internal/metrics"
	"weather-etl/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run a single extraction and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	client := extract.NewClient(cfg.APIKey)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := extract.Run(ctx, client, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		return
	}

	reg := metrics.NewRegistry()
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		reg.ExtractRuns.Inc()
		res, err := extract.Run(ctx, client, cfg)
		reg.LocationsSkipped.Add(float64(len(res.Skipped)))
		if err != nil {
			reg.ExtractFailures.Inc()
			fmt.Printf("⚠️ extraction failed: %v\n", err)
			return
		}
		reg.RowsExtracted.Add(float64(res.Rows))
		reg.LastSuccessUnix.SetToCurrentTime()
	}

	sched := scheduler.New(cfg.ExtractInterval, job)
	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ start scheduler: %v\n", err)
		os.Exit(1)
	}
	defer sched.Stop()
	fmt.Printf("🌤 Extractor daemon: every %s, metrics on %s\n", cfg.ExtractInterval, cfg.MetricsAddr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("⚠️ metrics server stopped: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("⚠️ metrics shutdown: %v\n", err)
	}
}
