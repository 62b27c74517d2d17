// Command bears-receiver accepts file transfers from bears-sender clients
// over UDP (spec.md §2), one connection per peer address. It wires
// pkg/transport and pkg/receiver together in the teacher's core/main.go
// shutdown style: signal-driven, with the event loop run in a goroutine.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ComedyRotten/bears-tp/internal/config"
	"github.com/ComedyRotten/bears-tp/internal/logging"
	"github.com/ComedyRotten/bears-tp/internal/metrics"
	"github.com/ComedyRotten/bears-tp/pkg/receiver"
	"github.com/ComedyRotten/bears-tp/pkg/transport"
)

func main() {
	cfg, err := config.ParseReceiver(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bears-receiver:", err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Debug: cfg.Debug, LogFile: cfg.LogFile})
	log.Infof("bears-receiver listening on :%d, writing into %s", cfg.Port, cfg.OutDir)

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to prepare output directory")
	}

	t, err := transport.ListenUDP(fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.WithError(err).Fatal("failed to bind UDP socket")
	}
	defer t.Close()

	reg := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := <-reg.Serve(cfg.MetricsAddr); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	srv := receiver.NewServer(t, receiver.FileSinkOpener(cfg.OutDir),
		receiver.WithIdleTimeout(time.Duration(cfg.IdleTimeout)*time.Second),
		receiver.WithMetrics(reg),
		receiver.WithLogger(log.Logger),
	)

	stop := make(chan struct{})
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(stop)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Fatal("receiver loop failed")
		}
	case sig := <-sigChan:
		log.Warnf("received signal %v, shutting down", sig)
		close(stop)
		<-errChan
		log.Success("bears-receiver stopped")
	}
}
