package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navfuse/internal/config"
	"navfuse/internal/feed"
	"navfuse/internal/gnss"
	"navfuse/internal/hub"
	"navfuse/internal/imu"
	"navfuse/internal/metrics"
	"navfuse/internal/pps"
	"navfuse/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logBuf := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	// Time discipline first: every sample stamp goes through the correlator.
	corr := pps.NewCorrelator(time.Now, m)
	ppsSvc := pps.New(cfg.PPS, corr)
	if err := ppsSvc.Start(ctx); err != nil {
		log.Fatalf("pps init failed: %v", err)
	}

	gnssSvc := gnss.New(cfg.GNSS, m)
	if err := gnssSvc.Start(ctx); err != nil {
		log.Fatalf("gnss init failed: %v", err)
	}

	imuSvc := imu.New(cfg.IMU, corr, m)
	if err := imuSvc.Start(ctx); err != nil {
		log.Fatalf("imu init failed: %v", err)
	}

	h := hub.New(cfg.Hub, m)

	// Multiplex both source streams onto the hub. Disabled sources hand
	// over nil channels, which never fire.
	var fixes <-chan gnss.Fix
	if cfg.GNSS.Enable {
		fixes = gnssSvc.Updates()
	}
	var samples <-chan imu.Sample
	if cfg.IMU.Enable {
		samples = imuSvc.Samples()
	}

	muxCtx, muxCancel := context.WithCancel(context.Background())
	muxDone := make(chan struct{})
	go func() {
		defer close(muxDone)
		feed.Run(muxCtx, fixes, samples, h, m)
	}()

	src := web.Sources{
		GNSS:        gnssSvc.Snapshot,
		Clock:       corr.Snapshot,
		IMU:         imuSvc.Snapshot,
		Subscribers: h.Count,
	}

	srvCtx, srvCancel := context.WithCancel(context.Background())
	srvDone := make(chan error, 1)
	go func() {
		srvDone <- web.Serve(srvCtx, cfg.Listen, web.Handler(h, src, logBuf, m))
	}()

	log.Printf("navfuse starting listen=%s", cfg.Listen)
	<-ctx.Done()
	log.Printf("navfuse stopping")

	// Leaf-first: stop the producers, let the mux flush what is in flight,
	// then close subscribers and the server.
	ppsSvc.Close()
	imuSvc.Close()
	gnssSvc.Close()

	select {
	case <-muxDone:
	case <-time.After(2 * time.Second):
		muxCancel()
		<-muxDone
	}
	muxCancel()

	h.CloseAll()
	srvCancel()
	if err := <-srvDone; err != nil && err != context.Canceled {
		log.Printf("http server: %v", err)
	}
}
