package heartbeat

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/types"
)

const defaultInterval = 30 * time.Second

var (
	topicConfigHeartbeat = config.Topic("heartbeat")
	topicStats           = bus.T("wmbus", bus.SingleLevel, "stats")
)

type Service struct {
	log   zerolog.Logger
	stats map[string]types.Stats
	beats uint64
}

// New returns a heartbeat service logging through log.
func New(log zerolog.Logger) *Service {
	return &Service{
		log:   log.With().Str("service", "heartbeat").Logger(),
		stats: make(map[string]types.Stats),
	}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	statsSub := conn.Subscribe(topicStats)
	defer conn.Unsubscribe(statsSub)

	interval := defaultInterval
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("heartbeat service stopping")
			return
		case <-tick.C:
			s.beat()
		case msg := <-statsSub.Channel():
			if st, ok := msg.Payload.(types.Stats); ok && len(msg.Topic) >= 2 {
				s.stats[msg.Topic[1]] = st
			}
		case msg := <-cfgSub.Channel():
			hc, ok := msg.Payload.(config.HeartbeatConfig)
			if !ok || hc.Interval <= 0 {
				s.log.Warn().Interface("payload", msg.Payload).Msg("ignoring heartbeat config")
				continue
			}
			if hc.Interval != interval {
				interval = hc.Interval
				tick.Reset(interval)
				s.log.Info().Dur("interval", interval).Msg("heartbeat interval set")
			}
		}
	}
}

// beat logs one line per radio seen on the stats topic.
func (s *Service) beat() {
	s.beats++
	if len(s.stats) == 0 {
		s.log.Info().Uint64("beat", s.beats).Msg("heartbeat")
		return
	}
	ids := make([]string, 0, len(s.stats))
	for id := range s.stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := s.stats[id]
		s.log.Info().
			Uint64("beat", s.beats).
			Str("radio_id", id).
			Uint64("frames", st.FramesReceived).
			Uint64("bytes", st.BytesReceived).
			Uint64("dropped", st.BytesDropped).
			Uint64("overflows", st.Overflows).
			Uint64("restarts", st.Restarts).
			Uint64("read_errors", st.ReadErrors).
			Msg("heartbeat")
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
