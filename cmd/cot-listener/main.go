package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/cot"
	"github.com/saviobatista/sbs2cot/internal/logging"
	"github.com/saviobatista/sbs2cot/internal/nats"
)

func main() {
	if err := runListener(); err != nil {
		fmt.Fprintf(os.Stderr, "cot-listener: %v\n", err)
		os.Exit(1)
	}
}

func runListener() error {
	_ = godotenv.Load()
	listenAddr, natsURL, natsSubject := parseEnvironment()

	log, err := logging.New(os.Getenv("LOG_LEVEL"), "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if natsURL != "" {
		client, err := nats.New(natsURL, natsSubject, "")
		if err != nil {
			return err
		}
		defer client.Close()
		if _, err := client.SubscribeCoT(func(subject, runID string, payload []byte) {
			printEvent(log, "nats", payload)
		}); err != nil {
			return err
		}
		log.Infow("listening for mirrored events", "url", natsURL, "subject", natsSubject+".>")
	}

	pc, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on udp %s: %w", listenAddr, err)
	}
	log.Infow("listening for CoT datagrams", "addr", pc.LocalAddr().String())

	return serve(ctx, pc, func(payload []byte) { printEvent(log, "udp", payload) })
}

// parseEnvironment extracts environment variable parsing logic for testability
func parseEnvironment() (string, string, string) {
	listenAddr := os.Getenv("COT_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8087"
	}
	natsSubject := os.Getenv("NATS_SUBJECT")
	if natsSubject == "" {
		natsSubject = nats.DefaultSubject
	}
	return listenAddr, os.Getenv("NATS_URL"), natsSubject
}

// serve hands every datagram to handle until ctx is done; pc is closed on return
func serve(ctx context.Context, pc net.PacketConn, handle func(payload []byte)) error {
	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()
	defer pc.Close()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if n == 0 {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(payload)
	}
}

func printEvent(log *zap.SugaredLogger, source string, payload []byte) {
	event, err := cot.Parse(payload)
	if err != nil {
		log.Warnw("failed to parse CoT event", "source", source, "err", err, "payload", string(payload))
		return
	}
	log.Infow("event",
		"source", source,
		"uid", event.UID,
		"callsign", event.Detail.Contact.Callsign,
		"lat", float64(event.Point.Lat),
		"lon", float64(event.Point.Lon),
		"hae", float64(event.Point.Hae),
		"course", float64(event.Detail.Track.Course),
		"speed", float64(event.Detail.Track.Speed),
		"stale", event.Stale,
	)
}
