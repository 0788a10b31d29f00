// Package simulator produces fake SBS traffic for development and tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const hexDigits = "0123456789ABCDEF"

// Generator builds random MSG,3 airborne position lines
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator with a deterministic seed
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Line returns one 22-field SBS line without a line terminator
func (g *Generator) Line() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	date := now.Format("2006/01/02")
	clock := now.Format("15:04:05.000")

	hex := make([]byte, 6)
	for i := range hex {
		hex[i] = hexDigits[g.rnd.IntN(len(hexDigits))]
	}

	fields := []string{
		"MSG", "3", "1", "1", string(hex), "1",
		date, clock, date, clock,
		fmt.Sprintf("FAKE%d ", 100+g.rnd.IntN(900)),
		strconv.Itoa(1000 + g.rnd.IntN(39001)),
		strconv.Itoa(100 + g.rnd.IntN(401)),
		strconv.Itoa(g.rnd.IntN(360)),
		strconv.FormatFloat(g.rnd.Float64()*180-90, 'f', -1, 64),
		strconv.FormatFloat(g.rnd.Float64()*360-180, 'f', -1, 64),
		strconv.Itoa(g.rnd.IntN(10001) - 5000),
		"7000", "0", "0", "0", "0",
	}
	return strings.Join(fields, ",")
}

// Server streams lines to every connected client at a fixed interval
type Server struct {
	listener net.Listener
	interval time.Duration
	next     func() string
	log      *zap.SugaredLogger
	wg       sync.WaitGroup

	closed    chan struct{}
	closeOnce sync.Once
}

// Listen opens a TCP listener that serves lines produced by next
func Listen(addr string, interval time.Duration, next func() string, log *zap.SugaredLogger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Server{
		listener: listener,
		interval: interval,
		next:     next,
		log:      log,
		closed:   make(chan struct{}),
	}, nil
}

// Addr returns the listening address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts clients until ctx is done or Close is called, then waits
// for client writers
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.log.Infow("client connected", "remote", conn.RemoteAddr().String())
		s.wg.Add(1)
		go s.stream(conn)
	}
}

// Close stops accepting clients and ends every client stream
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
	})
	return err
}

func (s *Server) stream(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := conn.Write([]byte(s.next() + "\r\n")); err != nil {
			s.log.Infow("client disconnected", "remote", conn.RemoteAddr().String(), "err", err)
			return
		}

		select {
		case <-s.closed:
			return
		case <-ticker.C:
		}
	}
}
