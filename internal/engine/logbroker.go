package engine

import "sync"

const (
	// subscriberBufferSize is the channel buffer for each log subscriber.
	// Lines are dropped if a subscriber falls this far behind.
	subscriberBufferSize = 64

	// backlogSize is how many recent lines a new subscriber is replayed.
	backlogSize = 32

	// maxClosedTopics is how many destroyed instances keep their backlog.
	// Older ones are forgotten and subscribe as an empty closed stream.
	maxClosedTopics = 16
)

// LogBroker fans engine log lines out to subscribers, one topic per engine
// instance. It is safe for concurrent use.
//
// Topics exist from Open until they are evicted some time after Close. A
// subscriber to an id without a topic gets a closed channel instead of
// blocking forever.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
	closed []string // closed topic ids, oldest first
}

type logTopic struct {
	subs    map[int]chan string
	nextID  int
	closed  bool
	backlog []string
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// Open creates the topic for a new instance. Opening an existing topic is a
// no-op.
func (b *LogBroker) Open(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[instanceID]; !ok {
		b.topics[instanceID] = &logTopic{subs: make(map[int]chan string)}
	}
}

// Subscribe returns a channel of log lines for the given instance, primed
// with its recent backlog, and an unsubscribe function. If the instance is
// destroyed or unknown the channel holds whatever backlog is left and is
// closed.
func (b *LogBroker) Subscribe(instanceID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBufferSize)
	t, ok := b.topics[instanceID]
	if !ok {
		close(ch)
		return ch, func() {}
	}

	for _, line := range t.backlog {
		ch <- line
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a log line to all subscribers of the given instance.
// Lines are dropped for subscribers whose buffers are full, and for
// instances that are not open.
func (b *LogBroker) Publish(instanceID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok || t.closed {
		return
	}

	if len(t.backlog) == backlogSize {
		t.backlog = append(t.backlog[:0], t.backlog[1:]...)
	}
	t.backlog = append(t.backlog, line)

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
			// Never block the engine thread on a slow reader.
		}
	}
}

// Close signals that the instance is gone. All subscriber channels are
// closed and future Subscribe calls get the backlog on a closed channel
// until the topic is evicted.
func (b *LogBroker) Close(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok || t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, instanceID)
	if len(b.closed) > maxClosedTopics {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}

// Len returns the number of retained topics, open and closed.
func (b *LogBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
