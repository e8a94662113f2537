package bus

import (
	"errors"
	"sync"
)

// Topics carried between UI panels and background work.
const (
	TopicFileSelect   = "file.select"
	TopicFileGenerate = "file.generate"
	TopicBoardChanged = "board.changed"
)

var (
	ErrTopicNotSubscribed = errors.New("topic is not subscribed")
	ErrTopicQueueFull     = errors.New("topic queue is full")
)

// Event is a small notification between decoupled parts of the program.
// Name and Body are topic-dependent; file topics put the file name in Name.
type Event struct {
	Topic string
	Name  string
	Body  string
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan Event),
		buffer: buffer,
	}
}

func (b *Bus) Subscribe(topic string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[topic]; ok {
		return ch
	}
	ch := make(chan Event, b.buffer)
	b.subs[topic] = ch
	return ch
}

func (b *Bus) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[topic]
	if !ok {
		return
	}
	delete(b.subs, topic)
	close(ch)
}

func (b *Bus) Publish(ev Event) error {
	b.mu.RLock()
	ch, ok := b.subs[ev.Topic]
	b.mu.RUnlock()
	if !ok {
		return ErrTopicNotSubscribed
	}

	select {
	case ch <- ev:
		return nil
	default:
		return ErrTopicQueueFull
	}
}
