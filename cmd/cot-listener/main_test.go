package main

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseEnvironment(t *testing.T) {
	t.Setenv("COT_LISTEN_ADDR", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("NATS_SUBJECT", "")

	addr, natsURL, subject := parseEnvironment()
	if addr != ":8087" {
		t.Errorf("Expected default :8087, got %s", addr)
	}
	if natsURL != "" {
		t.Errorf("Expected empty NATS URL, got %s", natsURL)
	}
	if subject != "cot.events" {
		t.Errorf("Expected default subject, got %s", subject)
	}

	t.Setenv("COT_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("NATS_SUBJECT", "tracks")
	addr, _, subject = parseEnvironment()
	if addr != "127.0.0.1:9999" || subject != "tracks" {
		t.Errorf("Expected overrides, got %s %s", addr, subject)
	}
}

func TestServe_DeliversDatagrams(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	received := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, pc, func(p []byte) { received <- p }) }()

	sender, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer sender.Close()
	if _, err := sender.Write([]byte("<event/>")); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	select {
	case p := <-received:
		if string(p) != "<event/>" {
			t.Errorf("Unexpected payload %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No datagram delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}

func TestPrintEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	payload := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<event version="2.0" uid="ICAO-ABC123" type="a-f-A" how="m-g" time="2024-01-01T00:00:00Z" start="2024-01-01T00:00:00Z" stale="2024-01-01T00:01:00Z">` +
		`<point lat="40" lon="-74" hae="3048" ce="9999999" le="9999999"></point>` +
		`<detail><contact callsign="ABC123 Alt:10000ft"></contact><track course="90" speed="128.611"></track></detail></event>`

	printEvent(log, "udp", []byte(payload))
	printEvent(log, "udp", []byte("not xml"))

	events := logs.FilterMessage("event").All()
	if len(events) != 1 {
		t.Fatalf("Expected one event log, got %d", len(events))
	}
	if uid := events[0].ContextMap()["uid"]; uid != "ICAO-ABC123" {
		t.Errorf("Expected uid ICAO-ABC123, got %v", uid)
	}
	if logs.FilterMessage("failed to parse CoT event").Len() != 1 {
		t.Error("Expected a parse failure to be logged")
	}
}
