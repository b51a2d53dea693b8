// Package control is the line-oriented command channel of the fixture. The
// only command is START, which requests a batch exactly like the button.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config selects the channel. Port "-" reads stdin; empty disables it.
type Config struct {
	Port string
	Baud int
}

const stdinPort = "-"

type Service struct {
	cfg Config

	pending  atomic.Bool
	commands atomic.Uint64
	ignored  atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	port io.ReadWriteCloser
}

func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) Enabled() bool {
	return strings.TrimSpace(s.cfg.Port) != ""
}

// Start opens the channel and begins reading lines in the background.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("control service is nil")
	}
	if !s.Enabled() {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	port := strings.TrimSpace(s.cfg.Port)
	var r io.Reader
	if port == stdinPort {
		r = os.Stdin
	} else {
		baud := s.cfg.Baud
		if baud == 0 {
			baud = 115200
		}
		p, err := openPortFn(port, baud)
		if err != nil {
			return fmt.Errorf("control: open %s baud=%d: %w", port, baud, err)
		}
		s.port = p
		r = p
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("control: listening on %s", port)
		s.read(childCtx, r)
	}()
	return nil
}

func (s *Service) read(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(skipTimeouts{ctx: ctx, r: r})
	sc.Buffer(make([]byte, 0, 256), 4096)
	for sc.Scan() {
		s.handle(sc.Text())
	}
	if ctx.Err() != nil {
		return
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	log.Printf("control: read stopped: %v", err)
}

func (s *Service) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.EqualFold(line, "START") {
		s.commands.Add(1)
		s.pending.Store(true)
		return
	}
	s.ignored.Add(1)
}

// Take reports whether a START arrived since the last call and clears it.
// Several STARTs between two calls count as one.
func (s *Service) Take() bool {
	return s.pending.Swap(false)
}

// Writer is the serial port for diagnostic output, nil when the channel is
// disabled or reads stdin.
func (s *Service) Writer() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	return s.port
}

// Counts returns the number of STARTs received and lines ignored.
func (s *Service) Counts() (commands, ignored uint64) {
	return s.commands.Load(), s.ignored.Load()
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	port := s.port
	s.cancel = nil
	s.port = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		_ = port.Close()
	}
	// The stdin reader may stay blocked in Read until the process exits.
	if port != nil {
		s.wg.Wait()
	}
}
