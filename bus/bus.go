// Package bus is a small in-process pub/sub broker with MQTT-style topic
// wildcards, retained messages and request/reply.
//
// Subscriber queues are bounded; a slow subscriber loses its oldest queued
// messages, never blocks a publisher.
package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Wildcard tokens, valid in subscriptions only.
const (
	SingleLevel = "+"
	MultiLevel  = "#" // must be last; also matches the parent level
)

// Topic is a sequence of levels.
type Topic []string

// T builds a topic from levels.
func T(levels ...string) Topic { return Topic(levels) }

// Parse splits a slash-separated topic string.
func Parse(s string) Topic { return Topic(strings.Split(s, "/")) }

func (t Topic) String() string { return strings.Join(t, "/") }

// Append returns a new topic with levels appended; t is not modified.
func (t Topic) Append(levels ...string) Topic {
	out := make(Topic, 0, len(t)+len(levels))
	out = append(out, t...)
	return append(out, levels...)
}

// Message is one published value.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// Subscription is a bounded queue of messages matching one pattern.
type Subscription struct {
	pattern Topic
	ch      chan *Message
	conn    *Connection
	dropped atomic.Uint64
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// Dropped counts messages discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// deliver enqueues m, dropping the oldest queued message when full.
// Caller holds the bus lock, so no other publisher races the retry.
func (s *Subscription) deliver(m *Message) {
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- m:
	default:
		s.dropped.Add(1)
	}
}

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok string, create bool) *node {
	c := n.children[tok]
	if c == nil && create {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		c = &node{}
		n.children[tok] = c
	}
	return c
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.retained == nil
}

// Bus routes messages between connections.
type Bus struct {
	mu       sync.Mutex
	subs     *node // pattern trie
	retained *node // concrete topic trie
	qLen     int
	replySeq atomic.Uint64
}

// NewBus creates a bus with the given per-subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{subs: &node{}, retained: &node{}, qLen: queueLen}
}

// NewMessage builds a message.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription. A retained message
// replaces the stored value for its topic; a retained nil payload clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.storeRetained(msg)
	}
	match(b.subs, msg.Topic, func(s *Subscription) { s.deliver(msg) })
}

func (b *Bus) storeRetained(msg *Message) {
	if msg.Payload != nil {
		n := b.retained
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		n.retained = msg
		return
	}
	path := make([]*node, 0, len(msg.Topic)+1)
	n := b.retained
	for _, tok := range msg.Topic {
		path = append(path, n)
		if n = n.child(tok, false); n == nil {
			return
		}
	}
	n.retained = nil
	prune(path, msg.Topic, n)
}

// match calls fn for each subscription in the pattern trie matching topic.
func match(n *node, topic Topic, fn func(*Subscription)) {
	if c := n.children[MultiLevel]; c != nil {
		for _, s := range c.subs {
			fn(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	if c := n.children[topic[0]]; c != nil {
		match(c, topic[1:], fn)
	}
	if c := n.children[SingleLevel]; c != nil {
		match(c, topic[1:], fn)
	}
}

// collectRetained calls fn for each retained message whose topic matches the
// pattern.
func collectRetained(n *node, pattern Topic, fn func(*Message)) {
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	switch pattern[0] {
	case MultiLevel:
		walkRetained(n, fn)
	case SingleLevel:
		for _, c := range n.children {
			collectRetained(c, pattern[1:], fn)
		}
	default:
		if c := n.children[pattern[0]]; c != nil {
			collectRetained(c, pattern[1:], fn)
		}
	}
}

func walkRetained(n *node, fn func(*Message)) {
	if n.retained != nil {
		fn(n.retained)
	}
	for _, c := range n.children {
		walkRetained(c, fn)
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.pattern {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)
	collectRetained(b.retained, sub.pattern, sub.deliver)
}

func (b *Bus) removeSubscription(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := make([]*node, 0, len(sub.pattern)+1)
	n := b.subs
	for _, tok := range sub.pattern {
		path = append(path, n)
		if n = n.child(tok, false); n == nil {
			return false
		}
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	prune(path, sub.pattern, n)
	return found
}

// prune removes empty nodes bottom-up. path[i] is the parent of topic[i].
func prune(path []*node, topic Topic, leaf *node) {
	n := leaf
	for i := len(topic) - 1; i >= 0; i-- {
		if !n.empty() {
			return
		}
		parent := path[i]
		delete(parent.children, topic[i])
		n = parent
	}
}

// Connection groups subscriptions owned by one client.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. Retained
// messages matching the pattern are queued immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if c.bus.removeSubscription(sub) {
		close(sub.ch)
	}
}

// Disconnect closes all subscriptions of this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		if c.bus.removeSubscription(s) {
			close(s.ch)
		}
	}
}

// Request publishes msg with a fresh ReplyTo topic and returns the
// subscription on which replies arrive. The caller unsubscribes.
func (c *Connection) Request(msg *Message) *Subscription {
	seq := c.bus.replySeq.Add(1)
	msg.ReplyTo = T("_reply", c.id, strconv.FormatUint(seq, 10))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait sends a request and waits for the first reply or ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its ReplyTo topic. Requests without ReplyTo are
// ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}
