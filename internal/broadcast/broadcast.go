package broadcast

import "sync"

// Subscription is the receiving end of a Broadcaster. It only sees messages
// published after it was created.
type Subscription[T any] struct {
	id   uint64
	ch   chan T
	done chan struct{}
	once sync.Once
}

// C returns the channel messages are delivered on. It is closed once the
// subscription has been unregistered.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close marks the subscriber as gone. The broadcaster unregisters it on the
// next publish.
func (s *Subscription[T]) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed when Close has been called.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

type Option func(*options)

type options struct {
	onDrop func()
}

// WithDropHook registers a callback invoked each time a buffered message is
// discarded for a lagging subscriber.
func WithDropHook(fn func()) Option {
	return func(o *options) { o.onDrop = fn }
}

// Broadcaster fans every published message out to all current subscribers.
// Each subscriber has a bounded buffer; when it is full the oldest buffered
// message is dropped so Publish never blocks.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	size   int
	closed bool
	onDrop func()
}

func New[T any](size int, opts ...Option) *Broadcaster[T] {
	if size < 1 {
		size = 1
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcaster[T]{
		subs:   make(map[uint64]*Subscription[T]),
		size:   size,
		onDrop: o.onDrop,
	}
}

func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		id:   b.nextID,
		ch:   make(chan T, b.size),
		done: make(chan struct{}),
	}
	b.nextID++
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Calling it
// more than once is harmless.
func (b *Broadcaster[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	sub.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub)
}

// Publish delivers msg to every live subscriber and returns how many were
// reached. With no subscribers the message is discarded.
func (b *Broadcaster[T]) Publish(msg T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, sub := range b.subs {
		select {
		case <-sub.done:
			b.remove(sub)
			continue
		default:
		}

		select {
		case sub.ch <- msg:
			delivered++
			continue
		default:
		}

		// buffer full: make room by discarding the oldest message
		select {
		case <-sub.ch:
			if b.onDrop != nil {
				b.onDrop()
			}
		default:
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
	return delivered
}

// Len returns the number of registered subscribers, including any that have
// closed but not yet been swept by a publish.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters every subscriber. Later subscriptions are returned
// already closed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.Close()
		b.remove(sub)
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	if cur, ok := b.subs[sub.id]; !ok || cur != sub {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}
