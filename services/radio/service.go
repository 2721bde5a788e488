package radio

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/errcode"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/services/internal/retry"
	"wmbus-radio-go/types"
)

// Topic layout, all under wmbus/<id>/:
//
//	frame        types.FrameEvent per dispatched frame
//	state        types.RadioState, retained
//	stats        types.Stats, retained, every stats interval
//	ctl/restart  request: restart RX, reply "ok"
//	ctl/stats    request: reply types.Stats
const topicRoot = "wmbus"

func FrameTopic(id string) bus.Topic { return bus.T(topicRoot, id, "frame") }
func StateTopic(id string) bus.Topic { return bus.T(topicRoot, id, "state") }
func StatsTopic(id string) bus.Topic { return bus.T(topicRoot, id, "stats") }
func ctlTopic(id string) bus.Topic   { return bus.T(topicRoot, id, "ctl", bus.SingleLevel) }

const (
	defaultStatsInterval = time.Second
	setupBackoffMin      = 500 * time.Millisecond
	setupBackoffMax      = 30 * time.Second
)

// ServiceConfig configures one radio service.
type ServiceConfig struct {
	ID            string
	Pipeline      Options
	StatsInterval time.Duration
	Logger        *zerolog.Logger
}

// OptionsFrom maps the pipeline section onto receiver options.
func OptionsFrom(p config.PipelineConfig) Options {
	return Options{
		QueueSize:    p.QueueSize,
		PollInterval: p.PollInterval,
		FrameGap:     p.FrameGap,
		MaxFrameLen:  p.MaxFrameLen,
	}
}

// Service owns a radio: it runs setup with retry, arms the data-ready
// interrupt, runs the receiver and mirrors frames, state and counters on the
// bus.
type Service struct {
	conn  *bus.Connection
	radio *Radio
	cfg   ServiceConfig
	log   zerolog.Logger
	rx    *Receiver
}

// NewService builds a service. Handlers added to Receiver() before Run see
// every frame.
func NewService(conn *bus.Connection, r *Radio, cfg ServiceConfig) *Service {
	if cfg.ID == "" {
		cfg.ID = "rf0"
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = defaultStatsInterval
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("service", "radio").Str("radio_id", cfg.ID).Logger()
	}
	if cfg.Pipeline.Logger == nil {
		cfg.Pipeline.Logger = &log
	}
	s := &Service{conn: conn, radio: r, cfg: cfg, log: log}
	s.rx = NewReceiver(r.Dev, cfg.Pipeline)
	s.rx.AddFrameHandler(s.publishFrame)
	return s
}

// Receiver exposes the pipeline for handler registration.
func (s *Service) Receiver() *Receiver { return s.rx }

// Run blocks until ctx is cancelled. It returns an error only when setup
// fails in a way retrying cannot fix.
func (s *Service) Run(ctx context.Context) error {
	s.publishState(types.LevelIdle, "setting_up", nil)

	backoff := retry.Backoff(setupBackoffMin, setupBackoffMax)
	for {
		err := s.radio.Dev.Setup()
		if err == nil {
			break
		}
		if errcode.Of(err) == errcode.InvalidConfig {
			s.publishState(types.LevelError, "setup_failed", err)
			return err
		}
		delay := backoff()
		s.log.Error().Err(err).Dur("retry_in", delay).Msg("radio setup failed")
		s.publishState(types.LevelError, "setup_failed_retrying", err)
		if !retry.Sleep(ctx, delay) {
			s.publishState(types.LevelStopped, "stopped", nil)
			return nil
		}
	}

	if pin := s.radio.DataPin; pin != nil {
		disarm, err := s.rx.AttachIRQ(pin, types.EdgeRising)
		if err != nil {
			s.log.Warn().Err(err).Msg("data pin interrupt unavailable, polling only")
		} else {
			defer disarm()
		}
	}

	ctl := s.conn.Subscribe(ctlTopic(s.cfg.ID))
	defer s.conn.Unsubscribe(ctl)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.rx.Start(rctx)
	s.publishState(types.LevelReceiving, "rx_started", nil)
	s.log.Info().Str("chip", s.radio.Dev.Name()).Msg("receiving")

	tick := time.NewTicker(s.cfg.StatsInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-s.rx.Done()
			s.publishStats()
			s.publishState(types.LevelStopped, "stopped", nil)
			return nil
		case <-tick.C:
			s.publishStats()
		case msg, ok := <-ctl.Channel():
			if !ok {
				return nil
			}
			s.handleControl(msg)
		}
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	switch msg.Topic[len(msg.Topic)-1] {
	case "restart":
		s.rx.RequestRestart()
		s.conn.Reply(msg, "ok", false)
	case "stats":
		s.conn.Reply(msg, s.rx.Stats(), false)
	default:
		s.conn.Reply(msg, errcode.Unsupported, false)
	}
}

func (s *Service) publishFrame(f types.Frame) error {
	s.conn.Publish(s.conn.NewMessage(FrameTopic(s.cfg.ID), types.FrameEvent{
		ID:    ulid.MustNew(ulid.Timestamp(f.ReceivedAt()), ulid.DefaultEntropy()).String(),
		Radio: s.cfg.ID,
		Frame: f,
		RSSI:  f.RSSI(),
		Hex:   f.AsHex(),
		TS:    f.ReceivedAt().UnixMilli(),
	}, false))
	return nil
}

func (s *Service) publishStats() {
	s.conn.Publish(s.conn.NewMessage(StatsTopic(s.cfg.ID), s.rx.Stats(), true))
}

func (s *Service) publishState(level types.Level, status string, err error) {
	st := types.RadioState{
		Radio:  s.cfg.ID,
		Chip:   s.radio.Dev.Name(),
		Level:  level,
		Status: status,
		TS:     time.Now().UnixMilli(),
	}
	if ds, ok := s.radio.Dev.(types.Stater); ok {
		st.Driver = ds.State().String()
	}
	if err != nil {
		st.Error = string(errcode.Of(err))
	}
	s.conn.Publish(s.conn.NewMessage(StateTopic(s.cfg.ID), st, true))
}
