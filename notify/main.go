// Package notify fans values out to subscribers.
package notify

import (
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const multiplexerTimeout = 200 * time.Millisecond

const senderQueue = 64

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// MultiplexerSender is the sending half of a Multiplexer. Values are delivered to subscribers in the order
// they were sent.
type MultiplexerSender[E any] struct {
	m     *Multiplexer[E]
	queue chan E
	// closedLock is held for reading while queueing.
	closedLock sync.RWMutex
	closed     bool
}

// Send queues e for delivery and returns without waiting for subscribers. Values sent after Close are
// dropped.
func (ms *MultiplexerSender[E]) Send(e E) {
	ms.closedLock.RLock()
	defer ms.closedLock.RUnlock()
	if ms.closed {
		zap.S().Debugw("dropping value sent after close", "multiplexer", ms.m.comment)
		return
	}
	ms.m.setCurrent(e)
	ms.queue <- e
}

// Close stops delivery once everything already sent has been delivered.
func (ms *MultiplexerSender[E]) Close() {
	ms.closedLock.Lock()
	defer ms.closedLock.Unlock()
	if ms.closed {
		return
	}
	ms.closed = true
	close(ms.queue)
}

func (ms *MultiplexerSender[E]) loop() {
	for e := range ms.queue {
		ms.m.send(e)
	}
}

func NewMultiplexerSender[E any](comment string) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		comment: comment,
	}
	ms := &MultiplexerSender[E]{m: m, queue: make(chan E, senderQueue)}
	go ms.loop()
	return ms, m
}

type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
	currentLock     sync.RWMutex
	current         E
}

// Current returns the value sent last, or the zero value.
func (m *Multiplexer[E]) Current() E {
	m.currentLock.RLock()
	defer m.currentLock.RUnlock()
	return m.current
}

func (m *Multiplexer[E]) setCurrent(e E) {
	m.currentLock.Lock()
	defer m.currentLock.Unlock()
	m.current = e
}

func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, subscriber[E]{
		ch:      c,
		comment: comment,
	})
}

func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

func (m *Multiplexer[E]) send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- e:
		case <-time.After(multiplexerTimeout):
			m.timeout(sub, e)
		}
	}
}

func (m *Multiplexer[E]) timeout(sub subscriber[E], e E) {
	if ce := zap.L().Check(zap.DebugLevel, "dumping goroutines"); ce != nil {
		pprof.Lookup("goroutine").WriteTo(os.Stderr, 1)
	}
	zap.S().Warnw("subscriber timed out, dropping value",
		"multiplexer", m.comment,
		"subscriber", sub.comment,
		"value", e)
}
