package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicHelpers(t *testing.T) {
	tp := Parse("wmbus/rf0/frame")
	assert.Equal(t, T("wmbus", "rf0", "frame"), tp)
	assert.Equal(t, "wmbus/rf0/frame", tp.String())

	base := T("wmbus", "rf0")
	ctl := base.Append("ctl", "restart")
	assert.Equal(t, "wmbus/rf0/ctl/restart", ctl.String())
	assert.Len(t, base, 2, "Append must not modify the receiver")

	// Append on a slice with spare capacity must not alias.
	spare := make(Topic, 2, 8)
	copy(spare, base)
	a := spare.Append("state")
	b := spare.Append("stats")
	assert.Equal(t, "wmbus/rf0/state", a.String())
	assert.Equal(t, "wmbus/rf0/stats", b.String())
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"wmbus/rf0/frame", "wmbus/rf0/frame", true},
		{"wmbus/rf0/frame", "wmbus/rf1/frame", false},
		{"wmbus/+/frame", "wmbus/rf1/frame", true},
		{"wmbus/+/frame", "wmbus/rf1/state", false},
		{"wmbus/+/frame", "wmbus/frame", false},
		{"wmbus/rf0/ctl/+", "wmbus/rf0/ctl/restart", true},
		{"wmbus/rf0/ctl/+", "wmbus/rf0/ctl", false},
		{"wmbus/rf0/ctl/+", "wmbus/rf0/ctl/stats/extra", false},
		{"wmbus/#", "wmbus", true},
		{"wmbus/#", "wmbus/rf0/stats", true},
		{"wmbus/rf0/#", "wmbus/rf1/stats", false},
		{"#", "config/sink", true},
		{"config/+", "config/heartbeat", true},
		{"+/+", "sink/state", true},
		{"+/+", "wmbus/rf0/state", false},
	}
	for _, tc := range cases {
		t.Run(tc.pattern+" <- "+tc.topic, func(t *testing.T) {
			b := NewBus(4)
			c := b.NewConnection("match")
			s := c.Subscribe(Parse(tc.pattern))
			c.Publish(b.NewMessage(Parse(tc.topic), "x", false))
			if tc.want {
				got := receive(t, s)
				assert.Equal(t, tc.topic, got.Topic.String())
			} else {
				assertQuiet(t, s)
			}
		})
	}
}

func TestEachMatchingSubscriptionGetsOneCopy(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("radio")
	subs := []*Subscription{
		c.Subscribe(T("wmbus", "rf0", "frame")),
		c.Subscribe(T("wmbus", "+", "frame")),
		c.Subscribe(T("wmbus", "#")),
	}

	c.Publish(b.NewMessage(T("wmbus", "rf0", "frame"), "ABCD", false))
	for _, s := range subs {
		assert.Equal(t, "ABCD", receive(t, s).Payload)
		assertQuiet(t, s)
	}
}

func TestRetainedStateReplayedPerRadio(t *testing.T) {
	b := NewBus(8)
	pub := b.NewConnection("radio")
	pub.Publish(b.NewMessage(T("wmbus", "rf0", "state"), "receiving", true))
	pub.Publish(b.NewMessage(T("wmbus", "rf1", "state"), "error", true))
	pub.Publish(b.NewMessage(T("wmbus", "rf0", "stats"), "stats-rf0", true))
	pub.Publish(b.NewMessage(T("wmbus", "rf0", "frame"), "not kept", false))
	// a newer retained value replaces the stored one
	pub.Publish(b.NewMessage(T("wmbus", "rf1", "state"), "receiving", true))

	c := b.NewConnection("monitor")

	states := collect(t, c.Subscribe(T("wmbus", "+", "state")), 2)
	assert.ElementsMatch(t, []string{"wmbus/rf0/state=receiving", "wmbus/rf1/state=receiving"}, states)

	rf0 := collect(t, c.Subscribe(T("wmbus", "rf0", "#")), 2)
	assert.ElementsMatch(t, []string{"wmbus/rf0/state=receiving", "wmbus/rf0/stats=stats-rf0"}, rf0)

	frames := c.Subscribe(T("wmbus", "+", "frame"))
	assertQuiet(t, frames)
}

func TestRetainedNilPayloadClears(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("cfg")
	c.Publish(b.NewMessage(T("config", "sink"), "stdout", true))
	c.Publish(b.NewMessage(T("config", "heartbeat"), "30s", true))
	c.Publish(b.NewMessage(T("config", "sink"), nil, true))
	// clearing an unknown topic is a no-op
	c.Publish(b.NewMessage(T("config", "radio", "spi"), nil, true))

	got := collect(t, c.Subscribe(T("config", "#")), 1)
	assert.Equal(t, []string{"config/heartbeat=30s"}, got)
}

func TestSlowSubscriberLosesOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("sink")
	s := c.Subscribe(T("wmbus", "+", "frame"))

	for i := 1; i <= 5; i++ {
		c.Publish(b.NewMessage(T("wmbus", "rf0", "frame"), fmt.Sprintf("f%d", i), false))
	}
	assert.Equal(t, []string{"wmbus/rf0/frame=f4", "wmbus/rf0/frame=f5"}, collect(t, s, 2))
	assertQuiet(t, s)
	assert.EqualValues(t, 3, s.Dropped())
}

func TestUnsubscribeAndDisconnectCloseChannels(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("heartbeat")

	s := c.Subscribe(T("wmbus", "+", "stats"))
	s.Unsubscribe()
	c.Unsubscribe(s)
	_, ok := <-s.Channel()
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		c.Publish(b.NewMessage(T("wmbus", "rf0", "stats"), "x", false))
	})

	s1 := c.Subscribe(T("config", "heartbeat"))
	s2 := c.Subscribe(T("wmbus", "#"))
	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		_, ok := <-s.Channel()
		assert.False(t, ok)
	}
	assert.Equal(t, "heartbeat", c.ID())
	assert.Equal(t, T("wmbus", "#"), s2.Topic())
}

func TestControlRequestReply(t *testing.T) {
	b := NewBus(4)
	radio := b.NewConnection("radio")
	ctl := radio.Subscribe(T("wmbus", "rf0", "ctl", SingleLevel))
	defer radio.Unsubscribe(ctl)

	go func() {
		for m := range ctl.Channel() {
			radio.Reply(m, m.Topic[len(m.Topic)-1]+":ok", false)
		}
	}()

	client := b.NewConnection("cli")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var replyTopics []string
	for _, cmd := range []string{"restart", "stats"} {
		req := client.NewMessage(T("wmbus", "rf0", "ctl", cmd), nil, false)
		reply, err := client.RequestWait(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, cmd+":ok", reply.Payload)
		assert.Equal(t, req.ReplyTo, reply.Topic)
		assert.Equal(t, T("_reply", "cli"), req.ReplyTo[:2])
		replyTopics = append(replyTopics, req.ReplyTo.String())
	}
	assert.NotEqual(t, replyTopics[0], replyTopics[1], "each request gets its own reply topic")
}

func TestRequestWithoutResponderTimesOut(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("cli")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.RequestWait(ctx, c.NewMessage(T("wmbus", "rf9", "ctl", "stats"), nil, false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplyIgnoresPlainMessages(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("radio")
	all := c.Subscribe(T("#"))

	c.Reply(b.NewMessage(T("wmbus", "rf0", "ctl", "stats"), nil, false), "ignored", false)
	assertQuiet(t, all)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func receive(t *testing.T, s *Subscription) *Message {
	t.Helper()
	select {
	case m, ok := <-s.Channel():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("no message on %s", s.Topic())
		return nil
	}
}

func assertQuiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.Channel():
		t.Fatalf("unexpected message on %s: %s", s.Topic(), m.Topic)
	case <-time.After(30 * time.Millisecond):
	}
}

// collect reads n messages rendered as "topic=payload".
func collect(t *testing.T, s *Subscription, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for len(out) < n {
		m := receive(t, s)
		out = append(out, fmt.Sprintf("%s=%v", m.Topic, m.Payload))
	}
	return out
}
