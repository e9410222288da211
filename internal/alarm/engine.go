package alarm

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrEngineStopped = errors.New("alarm: engine stopped")

// Fired is an alarm that reached its trigger instant.
type Fired struct {
	Slot    int64
	At      time.Time
	Payload Payload
}

type queueItem struct {
	slot    int64
	at      time.Time
	payload Payload
}

type alarmQueue []queueItem

func (q alarmQueue) Len() int { return len(q) }

func (q alarmQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q alarmQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *alarmQueue) Push(x any) {
	*q = append(*q, x.(queueItem))
}

func (q *alarmQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// Engine is an in-process Scheduler: a single timer loop over a min-heap of
// pending alarms. Registering a slot that is already queued replaces the
// previous entry, so the at-most-one-pending-alarm-per-slot invariant holds
// without consulting the queue's consumer.
type Engine struct {
	mu      sync.Mutex
	queue   alarmQueue
	out     chan Fired
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

// NewEngine creates an engine whose fired-event channel buffers bufferSize
// events before dropping.
func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(alarmQueue, 0),
		out:    make(chan Fired, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C returns the channel on which fired alarms are delivered.
func (e *Engine) C() <-chan Fired {
	return e.out
}

// Start begins the timer loop. Calling Start twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

// Stop shuts the loop down and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// RegisterOneShot queues (or replaces) the alarm pending at slot.
func (e *Engine) RegisterOneShot(slot int64, at time.Time, p Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}

	e.removeLocked(slot)
	heap.Push(&e.queue, queueItem{slot: slot, at: at, payload: p})
	e.signalWakeup()
	return nil
}

// Cancel removes the pending alarm at slot, if any. Never errors.
func (e *Engine) Cancel(slot int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removeLocked(slot) {
		e.signalWakeup()
	}
	return nil
}

// Pending reports whether slot currently holds a queued alarm, and its
// trigger instant if so.
func (e *Engine) Pending(slot int64) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, item := range e.queue {
		if item.slot == slot {
			return item.at, true
		}
	}
	return time.Time{}, false
}

// Dropped returns the number of fired alarms discarded because the output
// channel was full.
func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) removeLocked(slot int64) bool {
	for i, item := range e.queue {
		if item.slot == slot {
			heap.Remove(&e.queue, i)
			return true
		}
	}
	return false
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			due := e.popDue(time.Now())
			for _, ev := range due {
				select {
				case e.out <- ev:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return time.Time{}, false
	}
	return e.queue[0].at, true
}

func (e *Engine) popDue(now time.Time) []Fired {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Fired, 0)
	for len(e.queue) > 0 {
		next := e.queue[0]
		if next.at.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(queueItem)
		out = append(out, Fired{Slot: item.slot, At: item.at, Payload: item.payload})
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
