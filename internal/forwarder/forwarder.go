// Package forwarder reads the SBS feed and sends each translated record as a
// CoT datagram. It owns both sockets and reconnects the feed when it breaks.
package forwarder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/config"
	"github.com/saviobatista/sbs2cot/internal/cot"
	"github.com/saviobatista/sbs2cot/internal/parser"
	"github.com/saviobatista/sbs2cot/internal/stats"
)

// MaxLineSize bounds a single SBS line; longer lines break the connection
const MaxLineSize = 64 * 1024

// Dialer opens the upstream TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Publisher receives a copy of every datagram payload
type Publisher interface {
	PublishCoT(uid string, payload []byte) error
}

// StateObserver is told when the forwarder enters or leaves Streaming.
// *health.Handler satisfies it.
type StateObserver interface {
	SetReady(ready bool)
}

// Option configures a Forwarder
type Option func(*Forwarder)

// WithDialer replaces the upstream dialer
func WithDialer(d Dialer) Option {
	return func(f *Forwarder) { f.dialer = d }
}

// WithTimer replaces the timer used for reconnect waits
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(f *Forwarder) { f.newTimer = newTimer }
}

// WithMirror publishes every event payload to p as well
func WithMirror(p Publisher) Option {
	return func(f *Forwarder) { f.mirror = p }
}

// WithStats records counters into s
func WithStats(s *stats.Stats) Option {
	return func(f *Forwarder) { f.stats = s }
}

// WithObserver reports Streaming transitions to o
func WithObserver(o StateObserver) Option {
	return func(f *Forwarder) { f.observer = o }
}

// WithClock replaces the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

// Forwarder moves records from the SBS stream to the CoT consumer
type Forwarder struct {
	sbsAddr        string
	cotAddr        string
	reconnectDelay time.Duration
	idleTimeout    time.Duration

	dialer   Dialer
	newTimer func() backoff.Timer
	mirror   Publisher
	stats    *stats.Stats
	observer StateObserver
	now      func() time.Time
	log      *zap.SugaredLogger

	disconnectedAt time.Time
}

// New creates a forwarder for the addresses in cfg
func New(cfg *config.Config, log *zap.SugaredLogger, opts ...Option) *Forwarder {
	f := &Forwarder{
		sbsAddr:        cfg.SBSAddr(),
		cotAddr:        cfg.CoTAddr(),
		reconnectDelay: cfg.ReconnectDelay,
		idleTimeout:    cfg.IdleTimeout,
		dialer:         &net.Dialer{KeepAlive: 2 * time.Second},
		newTimer:       func() backoff.Timer { return &clockTimer{} },
		now:            time.Now,
		log:            log,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.stats == nil {
		f.stats = stats.New()
	}
	return f
}

// Run connects, streams and reconnects until ctx is cancelled or a fatal
// error occurs. It returns ctx.Err() on cancellation.
func (f *Forwarder) Run(ctx context.Context) error {
	udp, err := openDatagramSender(f.cotAddr)
	if err != nil {
		return fmt.Errorf("failed to open CoT socket to %s: %w", f.cotAddr, err)
	}
	defer udp.Close()

	f.log.Infow("forwarding SBS feed", "sbs_addr", f.sbsAddr, "cot_addr", f.cotAddr)

	for {
		conn, err := f.connect(ctx)
		if err != nil {
			return err
		}

		f.setStreaming(true)
		err = f.stream(ctx, conn, udp)
		f.setStreaming(false)
		f.disconnectedAt = time.Now()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warnw("upstream stream broken, reconnecting", "sbs_addr", f.sbsAddr, "err", err)

		if err := f.pause(ctx); err != nil {
			return err
		}
	}
}

// connect dials until it succeeds, ctx is done or the address is unusable
func (f *Forwarder) connect(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	dial := func() error {
		c, err := f.dialer.DialContext(ctx, "tcp", f.sbsAddr)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isPermanentDialError(err) {
				return backoff.Permanent(fmt.Errorf("cannot connect to %s: %w", f.sbsAddr, err))
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.stats.IncrementDialFailures()
		if f.disconnectedAt.IsZero() {
			f.disconnectedAt = time.Now()
		}
		f.log.Infow("upstream not available, retrying", "sbs_addr", f.sbsAddr, "retry_in", wait, "err", err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(f.reconnectDelay), ctx)
	if err := backoff.RetryNotifyWithTimer(dial, b, notify, f.newTimer()); err != nil {
		return nil, err
	}

	f.configureKeepalive(conn)
	f.logReconnect()
	return conn, nil
}

// stream forwards lines until the connection fails or ctx is done
func (f *Forwarder) stream(ctx context.Context, conn net.Conn, udp io.Writer) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)

	f.extendDeadline(conn)
	for scanner.Scan() {
		f.extendDeadline(conn)
		f.handleLine(scanner.Bytes(), udp)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read from %s failed: %w", f.sbsAddr, err)
	}
	return io.EOF
}

func (f *Forwarder) handleLine(raw []byte, udp io.Writer) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return
	}
	f.stats.IncrementLinesRead()

	if !utf8.Valid(line) {
		f.stats.IncrementInvalidLines()
		f.log.Debugw("skipping line with invalid UTF-8", "len", len(line))
		return
	}

	record, err := parser.ParseRecord(string(line))
	if err != nil {
		f.stats.IncrementInvalidLines()
		f.log.Debugw("skipping line", "line", string(line), "err", err)
		return
	}
	f.stats.IncrementParsedRecords()
	f.stats.IncrementTransmission(parser.Transmission(record))

	event, err := cot.Build(record, f.now())
	if err != nil {
		f.stats.IncrementEventsDeclined()
		f.log.Debugw("no event for record", "hex_ident", record.HexIdent, "err", err)
		return
	}

	payload, err := event.Marshal()
	if err != nil {
		f.stats.IncrementEventsDeclined()
		f.log.Warnw("failed to encode event", "uid", event.UID, "err", err)
		return
	}

	if _, err := udp.Write(payload); err != nil {
		f.stats.IncrementSendFailures()
		f.log.Warnw("failed to send CoT datagram", "uid", event.UID, "cot_addr", f.cotAddr, "err", err)
	} else {
		f.stats.IncrementEventsSent()
	}

	if f.mirror != nil {
		err := f.mirror.PublishCoT(event.UID, payload)
		f.stats.IncrementMirror(err)
		if err != nil {
			f.log.Warnw("failed to mirror event", "uid", event.UID, "err", err)
		}
	}
}

// pause waits one reconnect delay after a broken stream
func (f *Forwarder) pause(ctx context.Context) error {
	t := f.newTimer()
	t.Start(f.reconnectDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func (f *Forwarder) extendDeadline(conn net.Conn) {
	if f.idleTimeout <= 0 {
		return
	}
	if err := conn.SetReadDeadline(time.Now().Add(f.idleTimeout)); err != nil {
		f.log.Warnw("failed to set read deadline", "sbs_addr", f.sbsAddr, "err", err)
	}
}

func (f *Forwarder) configureKeepalive(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		f.log.Warnw("failed to set keepalive", "sbs_addr", f.sbsAddr, "err", err)
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		f.log.Warnw("failed to set no delay", "sbs_addr", f.sbsAddr, "err", err)
	}
}

func (f *Forwarder) logReconnect() {
	if f.disconnectedAt.IsZero() {
		f.log.Infow("connected to upstream", "sbs_addr", f.sbsAddr)
		return
	}
	down := time.Since(f.disconnectedAt)
	f.disconnectedAt = time.Time{}
	if down < 10*time.Second {
		f.log.Infow("connection hiccup recovered", "sbs_addr", f.sbsAddr, "down_seconds", down.Seconds())
		return
	}
	f.log.Infow("connection reestablished", "sbs_addr", f.sbsAddr, "down_minutes", down.Minutes())
}

func (f *Forwarder) setStreaming(streaming bool) {
	f.stats.SetConnected(streaming)
	if f.observer != nil {
		f.observer.SetReady(streaming)
	}
}

// isPermanentDialError reports dial errors that retrying cannot fix
func isPermanentDialError(err error) bool {
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	var parseErr *net.ParseError
	return errors.As(err, &parseErr)
}

// datagramSender sends each payload to dst from an unconnected socket.
// Sends never observe ICMP errors from an absent consumer.
type datagramSender struct {
	conn net.PacketConn
	dst  net.Addr
}

func openDatagramSender(addr string) (*datagramSender, error) {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}
	return &datagramSender{conn: conn, dst: dst}, nil
}

func (s *datagramSender) Write(payload []byte) (int, error) {
	return s.conn.WriteTo(payload, s.dst)
}

func (s *datagramSender) Close() error {
	return s.conn.Close()
}

type clockTimer struct {
	timer *time.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
