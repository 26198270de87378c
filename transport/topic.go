// Package transport carries messages between the frame source, the pipeline and consumers.
// Every stream has a queue depth of one: a slow subscriber only ever sees the newest message.
package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/segfront/ros"
)

// ErrTopicClosed is returned when publishing to a closed topic.
var ErrTopicClosed = errors.New("topic closed")

// A Topic fans a stream of messages out to subscribers, each with a depth one queue that drops
// the oldest message when full.
type Topic[T any] struct {
	name string

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	latest T
	has    bool
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewTopic returns an open topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, subs: map[*Subscription[T]]struct{}{}}
}

// Name is the name the topic was created with.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscription receives messages published after it was created.
type Subscription[T any] struct {
	topic *Topic[T]
	ch    chan T
	once  sync.Once
}

// C returns the channel messages are delivered on. It is closed when the subscription or the
// topic is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close stops delivery to s.
func (s *Subscription[T]) Close() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	if _, ok := s.topic.subs[s]; ok {
		delete(s.topic.subs, s)
		s.close()
	}
}

func (s *Subscription[T]) close() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a new subscriber. Subscribing to a closed topic returns a subscription
// whose channel is already closed.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{topic: t, ch: make(chan T, 1)}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		sub.close()
		return sub
	}
	t.subs[sub] = struct{}{}
	return sub
}

// Publish delivers v to every subscriber without blocking, replacing anything a subscriber has
// not consumed yet.
func (t *Topic[T]) Publish(v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.Wrap(ErrTopicClosed, t.name)
	}
	t.latest, t.has = v, true
	t.published.Inc()
	for sub := range t.subs {
		select {
		case sub.ch <- v:
			continue
		default:
		}
		select {
		case <-sub.ch:
			t.dropped.Inc()
		default:
		}
		select {
		case sub.ch <- v:
		default:
			t.dropped.Inc()
		}
	}
	return nil
}

// Latest returns the most recently published message.
func (t *Topic[T]) Latest() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.has
}

// Stats returns how many messages were published and how many were dropped across all
// subscribers.
func (t *Topic[T]) Stats() (published, dropped uint64) {
	return t.published.Load(), t.dropped.Load()
}

// Close closes the topic and every subscription.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		sub.close()
	}
	t.subs = nil
}

// Forward calls fn with every message received on sub until ctx is done or sub is closed.
func Forward[T any](ctx context.Context, sub *Subscription[T], fn func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}

// Topics is the set of streams the pipeline reads from and publishes to.
type Topics struct {
	Images        *Topic[*ros.Image]
	Results       *Topic[*ros.Result]
	Visualization *Topic[*ros.Image]
}

// NewTopics creates the three streams with the given names.
func NewTopics(input, result, visualization string) *Topics {
	return &Topics{
		Images:        NewTopic[*ros.Image](input),
		Results:       NewTopic[*ros.Result](result),
		Visualization: NewTopic[*ros.Image](visualization),
	}
}

// PublishResult implements the pipeline's publisher.
func (ts *Topics) PublishResult(ctx context.Context, res *ros.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ts.Results.Publish(res)
}

// PublishVisualization implements the pipeline's publisher.
func (ts *Topics) PublishVisualization(ctx context.Context, img *ros.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ts.Visualization.Publish(img)
}

// Close closes every stream.
func (ts *Topics) Close() {
	ts.Images.Close()
	ts.Results.Close()
	ts.Visualization.Close()
}
