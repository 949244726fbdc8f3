package channels

import (
	"sync"
	"time"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// MessageQueue is the bounded, debounced inbound-message queue spec.md
// section 4.7 describes: messages enqueue per key (typically a chat
// session id), oldest entries are dropped once MaxSize is reached, and
// the handler drains the buffered batch, in order, once DebounceMs of
// quiescence has elapsed since the last enqueue for that key. Clear empties
// a key's buffer without invoking the handler, unlike a natural flush.
type MessageQueue struct {
	mu         sync.Mutex
	buffers    map[string]*queueBuffer
	debounceMs time.Duration
	maxSize    int
	onDrain    func(key string, messages []*models.Message)
}

type queueBuffer struct {
	items []*models.Message
	timer *time.Timer
}

// NewMessageQueue constructs a MessageQueue. maxSize <= 0 means unbounded.
func NewMessageQueue(debounceMs time.Duration, maxSize int, onDrain func(key string, messages []*models.Message)) *MessageQueue {
	return &MessageQueue{
		buffers:    make(map[string]*queueBuffer),
		debounceMs: debounceMs,
		maxSize:    maxSize,
		onDrain:    onDrain,
	}
}

// Enqueue adds a message under key, dropping the oldest buffered message
// for that key if MaxSize is already reached, and (re)arms the debounce
// timer.
func (q *MessageQueue) Enqueue(key string, msg *models.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	buf, ok := q.buffers[key]
	if !ok {
		buf = &queueBuffer{}
		q.buffers[key] = buf
	}

	buf.items = append(buf.items, msg)
	if q.maxSize > 0 && len(buf.items) > q.maxSize {
		drop := len(buf.items) - q.maxSize
		buf.items = buf.items[drop:]
	}

	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(q.debounceMs, func() { q.drain(key) })
}

func (q *MessageQueue) drain(key string) {
	q.mu.Lock()
	buf, ok := q.buffers[key]
	if !ok {
		q.mu.Unlock()
		return
	}
	items := buf.items
	delete(q.buffers, key)
	q.mu.Unlock()

	if len(items) == 0 || q.onDrain == nil {
		return
	}
	q.onDrain(key, items)
}

// Clear empties every buffered key without invoking the drain handler.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, buf := range q.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(q.buffers, key)
	}
}

// ClearKey empties a single key's buffer without invoking the drain handler.
func (q *MessageQueue) ClearKey(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if buf, ok := q.buffers[key]; ok {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(q.buffers, key)
	}
}

// PendingCount returns the number of buffered messages across all keys.
func (q *MessageQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, buf := range q.buffers {
		n += len(buf.items)
	}
	return n
}
