// Package events carries row-level change notifications between the store writers
// and the components reacting to them (notification trigger, admin live view).
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topic names the table a change belongs to.
type Topic string

const (
	TopicContactRequests     Topic = "contact_requests"
	TopicContactRequestNotes Topic = "contact_request_notes"
	TopicOrders              Topic = "orders"
	TopicOrderNotes          Topic = "order_notes"
	TopicCachedEmails        Topic = "cached_emails"
	TopicSettings            Topic = "settings"
	TopicTelegramChats       Topic = "telegram_chat_ids"
)

// Action describes what happened to the row.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const defaultBufferSize = 16

var knownTopics = map[Topic]struct{}{
	TopicContactRequests:     {},
	TopicContactRequestNotes: {},
	TopicOrders:              {},
	TopicOrderNotes:          {},
	TopicCachedEmails:        {},
	TopicSettings:            {},
	TopicTelegramChats:       {},
}

// Change is a single row-level notification.
type Change struct {
	Topic     Topic     `json:"topic"`
	Action    Action    `json:"action"`
	RecordID  string    `json:"id"`
	Timestamp time.Time `json:"at"`
}

// Publisher accepts change notifications.
type Publisher interface {
	Publish(change Change)
}

// NopPublisher discards every change.
type NopPublisher struct{}

func (NopPublisher) Publish(Change) {}

// BusConfig configures a Bus.
type BusConfig struct {
	BufferSize int
	Logger     *zap.Logger
}

// Bus fans changes out to subscribers. Publishes are serialized, so every subscriber
// observes changes in publish order. A Subscribe subscriber whose buffer is full misses
// the change; a SubscribeQueued subscriber never does.
type Bus struct {
	publishMu   sync.Mutex
	mu          sync.RWMutex
	subscribers map[Topic]map[int64]*subscriber
	nextID      int64
	bufferSize  int
	logger      *zap.Logger
}

type subscriber struct {
	id     int64
	stream chan Change
	queue  *changeQueue
}

// deliver hands the change over without blocking the publisher.
func (s *subscriber) deliver(change Change) bool {
	if s.queue != nil {
		s.queue.push(change)
		return true
	}
	select {
	case s.stream <- change:
		return true
	default:
		return false
	}
}

// changeQueue is an unbounded FIFO drained into a subscriber stream by one goroutine.
type changeQueue struct {
	mu      sync.Mutex
	pending []Change
	wake    chan struct{}
	stop    chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{wake: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (q *changeQueue) push(change Change) {
	q.mu.Lock()
	q.pending = append(q.pending, change)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *changeQueue) take() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

// drain forwards queued changes in order until the subscription stops.
func (q *changeQueue) drain(stream chan<- Change) {
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}
		for _, change := range q.take() {
			select {
			case stream <- change:
			case <-q.stop:
				return
			}
		}
	}
}

// NewBus constructs an empty Bus.
func NewBus(cfg BusConfig) *Bus {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[Topic]map[int64]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers interest in the given topics. The subscription ends when ctx is
// cancelled or the returned cleanup is called, whichever happens first.
func (b *Bus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Change, func()) {
	return b.subscribe(ctx, false, topics)
}

// SubscribeQueued is Subscribe without loss: changes the consumer has not taken yet
// wait in an unbounded queue instead of being dropped. Publish still never blocks.
func (b *Bus) SubscribeQueued(ctx context.Context, topics ...Topic) (<-chan Change, func()) {
	return b.subscribe(ctx, true, topics)
}

func (b *Bus) subscribe(ctx context.Context, queued bool, topics []Topic) (<-chan Change, func()) {
	if len(topics) == 0 {
		ch := make(chan Change)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{stream: make(chan Change, b.bufferSize)}
	if queued {
		sub.queue = newChangeQueue()
		go sub.queue.drain(sub.stream)
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	for _, topic := range topics {
		if _, ok := b.subscribers[topic]; !ok {
			b.subscribers[topic] = make(map[int64]*subscriber)
		}
		b.subscribers[topic][sub.id] = sub
	}
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, topic := range topics {
				registered := b.subscribers[topic]
				if registered == nil {
					continue
				}
				delete(registered, sub.id)
				if len(registered) == 0 {
					delete(b.subscribers, topic)
				}
			}
			if sub.queue != nil {
				close(sub.queue.stop)
			}
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers the change to every current subscriber of its topic without blocking.
func (b *Bus) Publish(change Change) {
	if change.Topic == "" || change.Action == "" {
		return
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	registered := b.subscribers[change.Topic]
	targets := make([]*subscriber, 0, len(registered))
	for _, sub := range registered {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.deliver(change) {
			b.logger.Warn("change dropped for slow subscriber",
				zap.String("topic", string(change.Topic)),
				zap.String("action", string(change.Action)),
				zap.String("record_id", change.RecordID),
				zap.Int64("subscriber_id", sub.id))
		}
	}
}

// SubscriberCount reports how many subscriptions currently include the topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// ParseTopics turns a comma separated list into known topics. An empty list selects every topic.
func ParseTopics(raw string) ([]Topic, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AllTopics(), nil
	}
	topics := make([]Topic, 0)
	seen := make(map[Topic]struct{})
	for _, part := range strings.Split(trimmed, ",") {
		topic := Topic(strings.TrimSpace(part))
		if topic == "" {
			continue
		}
		if _, ok := knownTopics[topic]; !ok {
			return nil, fmt.Errorf("unknown topic %q", topic)
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics, nil
}

// AllTopics lists every topic in a stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicContactRequests,
		TopicContactRequestNotes,
		TopicOrders,
		TopicOrderNotes,
		TopicCachedEmails,
		TopicSettings,
		TopicTelegramChats,
	}
}
