package engine

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize     = 1024                   // ring buffer size
	MaxEventsPerSec     = 10000                  // global rate limit
	MaxEventsPerAgent   = 100                    // per-agent rate limit per second
	BatchFlushSize      = 64                     // events per batch write
	BatchFlushInterval  = 100 * time.Millisecond // how often to flush
	AgentLimiterCleanup = 5 * time.Minute        // idle per-agent limiters are dropped after this
)

// EventLog is a bounded, rate-limited event log written as JSON lines by a
// background goroutine. When the buffer is full the oldest events are
// dropped; Emit never blocks the simulation.
type EventLog struct {
	mu        sync.Mutex
	buffer    [EventBufferSize]Event
	writeHead uint64 // next sequence to assign
	readHead  uint64 // next sequence to flush

	globalLimiter *rate.Limiter
	agentLimiters sync.Map // map[string]*agentLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out   io.WriteCloser
	outMu sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type agentLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// EventLogStats is a point-in-time view of the log counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// NewEventLog creates a stopped event log.
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and starts the writer. An empty path
// keeps events in memory only (they are still counted and rate limited).
func (el *EventLog) Start(filePath string) error {
	var out io.WriteCloser
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = file
	}
	return el.StartWriter(out)
}

// StartWriter starts the writer on an arbitrary sink. out may be nil.
// Calling it on a running log is a no-op; a stopped log cannot restart.
func (el *EventLog) StartWriter(out io.WriteCloser) error {
	select {
	case <-el.stopChan:
		if out != nil {
			out.Close()
		}
		return ErrEventLogStopped
	default:
	}

	if !el.running.CompareAndSwap(false, true) {
		if out != nil {
			out.Close()
		}
		return nil
	}

	el.outMu.Lock()
	el.out = out
	el.outMu.Unlock()

	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the sink. Safe to call twice.
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.outMu.Lock()
		if el.out != nil {
			el.out.Close()
			el.out = nil
		}
		el.outMu.Unlock()
	})
}

// Emit adds an event. Returns false if the log is stopped or the event was
// rate limited.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.AgentID != "" && !el.agentLimiter(event.AgentID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	el.writeHead++
	event.Sequence = el.writeHead
	if el.writeHead-el.readHead > EventBufferSize {
		// Overwrite the oldest pending event.
		el.readHead++
		el.droppedCount.Add(1)
	}
	el.buffer[event.Sequence%EventBufferSize] = event
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and emits an event in one call.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, agentID string, payload interface{}) bool {
	return el.Emit(NewEvent(eventType, tickNum, agentID, payload))
}

func (el *EventLog) agentLimiter(agentID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.agentLimiters.Load(agentID); ok {
		entry := v.(*agentLimiterEntry)
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	entry := &agentLimiterEntry{
		limiter: rate.NewLimiter(MaxEventsPerAgent, MaxEventsPerAgent/10),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.agentLimiters.LoadOrStore(agentID, entry)
	return actual.(*agentLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			// Drain everything still buffered.
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(AgentLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupAgentLimiters(time.Now().Add(-AgentLimiterCleanup))
		}
	}
}

func (el *EventLog) cleanupAgentLimiters(cutoff time.Time) {
	el.agentLimiters.Range(func(key, value interface{}) bool {
		if value.(*agentLimiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			el.agentLimiters.Delete(key)
		}
		return true
	})
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch appends newline-delimited JSON to the sink.
func (el *EventLog) flushBatch(batch []Event) {
	el.outMu.Lock()
	defer el.outMu.Unlock()

	if el.out == nil {
		return
	}

	w := bufio.NewWriter(el.out)
	enc := json.NewEncoder(w)
	for _, event := range batch {
		if err := enc.Encode(event); err != nil {
			continue
		}
	}
	w.Flush()
}

// Stats returns the current counters.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}
