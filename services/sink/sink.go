// Package sink writes received frames as text lines to stdout, a file or a
// TCP peer, one line per frame. The rtlwmbus format ("T1;<rssi>;<HEX>") is
// what existing wM-Bus decoders read from rtl_wmbus.
//
// The service waits for its configuration on config/sink and supervises one
// link at a time, reconnecting with exponential backoff.
package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/services/internal/retry"
	"wmbus-radio-go/types"
)

var (
	topicConfig = config.Topic("sink")
	topicFrames = bus.T("wmbus", bus.SingleLevel, "frame")
	topicState  = bus.T("sink", "state")
)

// New returns a sink service bound to conn.
func New(conn *bus.Connection, log zerolog.Logger) *Service {
	return &Service{conn: conn, log: log.With().Str("service", "sink").Logger()}
}

// Service supervises the current link.
type Service struct {
	conn *bus.Connection
	log  zerolog.Logger

	mu      sync.Mutex
	curRun  context.CancelFunc
	curDone chan struct{}
	lines   atomic.Uint64
	dups    atomic.Uint64
}

// Lines counts frame lines written.
func (s *Service) Lines() uint64 { return s.lines.Load() }

// Duplicates counts frames suppressed by the dedup window.
func (s *Service) Duplicates() uint64 { return s.dups.Load() }

// Run blocks until ctx is cancelled. On return the current link has flushed
// and closed its writer.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.stopCurrent()

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, ok := msg.Payload.(config.SinkConfig)
			if !ok {
				s.publishState("error", "config_decode_failed", fmt.Errorf("unexpected payload %T", msg.Payload))
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

// stopCurrent cancels the current link and waits for it to exit.
func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.curDone
	s.curRun, s.curDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Service) reconfigure(parent context.Context, cfg config.SinkConfig) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.curDone = cancel, done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

func (s *Service) runLink(ctx context.Context, cfg config.SinkConfig) {
	tr, err := newTransport(cfg)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	if tr == nil {
		s.publishState("idle", "disabled", nil)
		return
	}

	backoff := retry.Backoff(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.log.Warn().Err(err).Str("transport", tr.String()).Dur("retry_in", delay).Msg("sink open failed")
			s.publishState("degraded", "open_failed_retrying", err)
			if !retry.Sleep(ctx, delay) {
				return
			}
			continue
		}

		sub := s.conn.Subscribe(topicFrames)
		s.log.Info().Str("transport", tr.String()).Msg("sink up")
		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, sub, w, lineFormat(cfg.Format), newDedup(cfg.DedupWindow))
		s.conn.Unsubscribe(sub)
		_ = w.Close()
		if err == nil {
			return
		}
		delay := backoff()
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("sink link lost")
		s.publishState("degraded", "link_lost_retrying", err)
		if !retry.Sleep(ctx, delay) {
			return
		}
	}
}

// handleLink forwards frame events to w until ctx ends or a write fails.
func (s *Service) handleLink(ctx context.Context, sub *bus.Subscription, w io.Writer, format func([]byte, types.Frame) []byte, dd *dedup) error {
	bw := bufio.NewWriter(w)
	line := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return bw.Flush()
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			ev, ok := msg.Payload.(types.FrameEvent)
			if !ok {
				continue
			}
			if dd.seen(ev.Frame) {
				s.dups.Add(1)
				s.log.Debug().Str("radio_id", ev.Radio).Str("hex", ev.Hex).Msg("duplicate frame dropped")
			} else {
				line = append(format(line[:0], ev.Frame), '\n')
				if _, err := bw.Write(line); err != nil {
					return err
				}
				s.lines.Add(1)
			}
			// flush per burst, not per line
			if len(sub.Channel()) == 0 {
				if err := bw.Flush(); err != nil {
					return err
				}
			}
		}
	}
}

func lineFormat(name string) func([]byte, types.Frame) []byte {
	if name == "hex" {
		return func(dst []byte, f types.Frame) []byte { return append(dst, f.AsHex()...) }
	}
	return func(dst []byte, f types.Frame) []byte { return f.AppendRTLWMBus(dst) }
}

const dedupCapacity = 1024

// dedup remembers payloads written within the window. A nil dedup never
// reports a duplicate.
type dedup struct {
	cache *ttlcache.Cache[string, struct{}]
}

func newDedup(window time.Duration) *dedup {
	if window <= 0 {
		return nil
	}
	return &dedup{cache: ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](window),
		ttlcache.WithCapacity[string, struct{}](dedupCapacity),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)}
}

func (d *dedup) seen(f types.Frame) bool {
	if d == nil {
		return false
	}
	key := string(f.Data())
	if d.cache.Has(key) {
		return true
	}
	d.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return false
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level, // "up", "degraded", "error", "idle"
		"status": status,
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport opens the sink's output.
type Transport interface {
	Open(ctx context.Context) (io.WriteCloser, error)
	String() string
}

type transportFactory func(config.SinkConfig) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport adds or overrides a transport type.
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// newTransport returns nil, nil for a disabled sink.
func newTransport(cfg config.SinkConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "", "stdout":
		return writerTransport{name: "stdout", w: os.Stdout}, nil
	case "file":
		if cfg.Path == "" {
			return nil, errors.New("file sink requires path")
		}
		return fileTransport{path: cfg.Path}, nil
	case "tcp":
		if cfg.Address == "" {
			return nil, errors.New("tcp sink requires address")
		}
		return tcpTransport{addr: cfg.Address}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sink type: %q", cfg.Type)
	}
}

type writerTransport struct {
	name string
	w    io.Writer
}

func (t writerTransport) Open(context.Context) (io.WriteCloser, error) {
	return nopWriteCloser{t.w}, nil
}
func (t writerTransport) String() string { return t.name }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type fileTransport struct{ path string }

func (t fileTransport) Open(context.Context) (io.WriteCloser, error) {
	return os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
func (t fileTransport) String() string { return "file:" + t.path }

type tcpTransport struct{ addr string }

func (t tcpTransport) Open(ctx context.Context) (io.WriteCloser, error) {
	d := net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", t.addr)
}
func (t tcpTransport) String() string { return "tcp:" + t.addr }
