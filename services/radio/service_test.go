package radio

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/drivers/cc1101/ccsim"
	"wmbus-radio-go/errcode"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/types"
)

func waitMsg(t *testing.T, sub *bus.Subscription, match func(*bus.Message) bool) *bus.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if match(m) {
				return m
			}
		case <-deadline:
			t.Fatalf("timeout waiting on %s", sub.Topic())
			return nil
		}
	}
}

func openSim(t *testing.T, chip *ccsim.Chip, mhz float64) *Radio {
	t.Helper()
	r, err := OpenSimulated(chip, mhz, nil)
	require.NoError(t, err)
	return r
}

func stateIs(level types.Level) func(*bus.Message) bool {
	return func(m *bus.Message) bool {
		st, ok := m.Payload.(types.RadioState)
		return ok && st.Level == level
	}
}

func TestServicePublishesFramesAndState(t *testing.T) {
	b := bus.NewBus(32)
	conn := b.NewConnection("radio")
	client := b.NewConnection("client")

	chip := ccsim.New()
	svc := NewService(conn, openSim(t, chip, 868.95), ServiceConfig{
		ID:       "rf0",
		Pipeline: Options{PollInterval: 2 * time.Millisecond, FrameGap: 10 * time.Millisecond},
	})

	stateSub := client.Subscribe(StateTopic("rf0"))
	frameSub := client.Subscribe(bus.T("wmbus", "+", "frame"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	rx := waitMsg(t, stateSub, stateIs(types.LevelReceiving))
	assert.Equal(t, "receiving", rx.Payload.(types.RadioState).Driver)

	chip.SetRSSIRaw(0xB0)
	chip.Inject([]byte{0xAB, 0xCD})

	m := waitMsg(t, frameSub, func(*bus.Message) bool { return true })
	ev, ok := m.Payload.(types.FrameEvent)
	require.True(t, ok)
	assert.Equal(t, "rf0", ev.Radio)
	assert.Equal(t, "ABCD", ev.Hex)
	assert.Equal(t, int8(-114), ev.RSSI)
	assert.Equal(t, "T1;-114;ABCD", ev.Frame.AsRTLWMBus())
	id, err := ulid.ParseStrict(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.TS, int64(id.Time()))

	// control: stats request
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	reply, err := client.RequestWait(ctx2, client.NewMessage(bus.T("wmbus", "rf0", "ctl", "stats"), nil, false))
	require.NoError(t, err)
	st, ok := reply.Payload.(types.Stats)
	require.True(t, ok)
	assert.EqualValues(t, 1, st.FramesReceived)
	assert.EqualValues(t, 2, st.BytesReceived)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	waitMsg(t, stateSub, stateIs(types.LevelStopped))
}

func TestServiceRetriesUnresponsiveChip(t *testing.T) {
	b := bus.NewBus(32)
	conn := b.NewConnection("radio")
	client := b.NewConnection("client")

	chip := ccsim.New()
	chip.SetVersion(0xFF)
	svc := NewService(conn, openSim(t, chip, 868.95), ServiceConfig{ID: "rf1"})
	stateSub := client.Subscribe(StateTopic("rf1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	m := waitMsg(t, stateSub, stateIs(types.LevelError))
	assert.Equal(t, string(errcode.ChipNotResponding), m.Payload.(types.RadioState).Error)
	assert.Equal(t, "uninitialized", m.Payload.(types.RadioState).Driver)
	assert.NotContains(t, chip.Strobes(), byte(0x34))

	chip.SetVersion(0x14)
	waitMsg(t, stateSub, stateIs(types.LevelReceiving))
	assert.Equal(t, byte(ccsim.MarcRX), chip.MarcState())
}

func TestServiceInvalidFrequencyIsTerminal(t *testing.T) {
	b := bus.NewBus(8)
	svc := NewService(b.NewConnection("radio"), openSim(t, ccsim.New(), 100), ServiceConfig{})
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errcode.InvalidConfig, errcode.Of(err))
}

func TestOptionsFrom(t *testing.T) {
	o := OptionsFrom(config.LoadDefaultConfig().Pipeline)
	assert.Equal(t, 256, o.QueueSize)
	assert.Equal(t, 4*time.Millisecond, o.PollInterval)
	assert.Equal(t, 20*time.Millisecond, o.FrameGap)
	assert.Equal(t, 512, o.MaxFrameLen)
}
