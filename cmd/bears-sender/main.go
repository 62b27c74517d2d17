// Command bears-sender transfers one file to a bears-receiver over UDP
// (spec.md §2). It wires pkg/transport, pkg/chunker and pkg/sender together
// the way the teacher's core/main.go wires config, logger and server.Server:
// load flags, build the pieces, run, handle signals for graceful shutdown.
package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ComedyRotten/bears-tp/internal/config"
	"github.com/ComedyRotten/bears-tp/internal/logging"
	"github.com/ComedyRotten/bears-tp/internal/metrics"
	"github.com/ComedyRotten/bears-tp/pkg/chunker"
	"github.com/ComedyRotten/bears-tp/pkg/sender"
	"github.com/ComedyRotten/bears-tp/pkg/transport"
)

func main() {
	cfg, err := config.ParseSender(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bears-sender:", err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Debug: cfg.Debug, LogFile: cfg.LogFile})
	log.Infof("bears-sender starting, target %s:%d", cfg.Host, cfg.Port)

	src, basename, err := openSource(cfg.File)
	if err != nil {
		log.WithError(err).Fatal("failed to open source")
	}

	t, err := transport.DialUDP(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		log.WithError(err).Fatal("failed to dial receiver")
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

	// DialUDP already fixed the remote peer on the socket itself, so Send
	// needs no destination address; nil takes UDPTransport's connected-write
	// path rather than WriteToUDP.
	var peer transport.Addr

	// The reference CLI seeds its initial sequence number with
	// randint(0, 65535); pkg/sender itself takes whatever initial offset the
	// chunker is built with, so this is purely a CLI-layer choice.
	initialSeqno := uint32(rand.Intn(65536))
	ck := chunker.New(src, basename, initialSeqno)
	sess, err := sender.New(t, peer, ck,
		sender.WithTimeout(time.Duration(cfg.Timeout)*time.Second),
		sender.WithMetrics(reg),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize session")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		for !sess.Done() {
			if err := sess.Step(); err != nil {
				errChan <- err
				return
			}
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Fatal("transfer failed")
		}
		log.Success("transfer of %s complete", basename)
	case sig := <-sigChan:
		log.Warnf("received signal %v, aborting transfer", sig)
		os.Exit(1)
	}
}

// openSource resolves the -f flag to a seekable byte source and the
// basename the `start` frame should carry. When path is empty, the whole
// of stdin is buffered into memory and named "stdin" (os.Stdin itself isn't
// seekable, and pkg/chunker needs Reset to reseek to zero).
func openSource(path string) (chunker.Source, string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "stdin", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(path), nil
}
