package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/types"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) lines() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(s.b.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if json.Unmarshal([]byte(l), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func beats(buf *syncBuffer) []map[string]any {
	var out []map[string]any
	for _, l := range buf.lines() {
		if l["message"] == "heartbeat" {
			out = append(out, l)
		}
	}
	return out
}

func TestHeartbeat_ReportsStatsPerRadio(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb_test")

	conn.Publish(conn.NewMessage(config.Topic("heartbeat"), config.HeartbeatConfig{Interval: 10 * time.Millisecond}, true))
	conn.Publish(conn.NewMessage(bus.T("wmbus", "rf1", "stats"), types.Stats{FramesReceived: 3, BytesReceived: 60}, true))
	conn.Publish(conn.NewMessage(bus.T("wmbus", "rf0", "stats"), types.Stats{FramesReceived: 7, Overflows: 1}, true))

	buf := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, New(zerolog.New(buf)).Start(ctx, b.NewConnection("heartbeat")))

	require.Eventually(t, func() bool { return len(beats(buf)) >= 2 }, time.Second, 5*time.Millisecond)

	got := beats(buf)[:2]
	assert.Equal(t, "rf0", got[0]["radio_id"])
	assert.EqualValues(t, 7, got[0]["frames"])
	assert.EqualValues(t, 1, got[0]["overflows"])
	assert.Equal(t, "rf1", got[1]["radio_id"])
	assert.EqualValues(t, 60, got[1]["bytes"])
	assert.Equal(t, "heartbeat", got[0]["service"])
}

func TestHeartbeat_BeatsWithoutRadios(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb_test")
	conn.Publish(conn.NewMessage(config.Topic("heartbeat"), config.HeartbeatConfig{Interval: 5 * time.Millisecond}, true))

	buf := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, New(zerolog.New(buf)).Start(ctx, b.NewConnection("heartbeat")))

	require.Eventually(t, func() bool { return len(beats(buf)) >= 3 }, time.Second, 5*time.Millisecond)
	for _, l := range beats(buf) {
		assert.NotContains(t, l, "radio_id")
	}
}

func TestHeartbeat_IgnoresBadConfig(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb_test")
	conn.Publish(conn.NewMessage(config.Topic("heartbeat"), map[string]any{"interval": 1.0}, true))

	buf := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, New(zerolog.New(buf)).Start(ctx, b.NewConnection("heartbeat")))

	require.Eventually(t, func() bool {
		for _, l := range buf.lines() {
			if l["message"] == "ignoring heartbeat config" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, beats(buf))
}
