package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samcharles93/textcat/internal/logger"
)

// PredictionSaver is the part of Store used by AsyncLogger.
type PredictionSaver interface {
	SavePrediction(ctx context.Context, p Prediction) error
}

// AsyncLogger writes predictions on a background goroutine so request
// handlers never wait on the database. When the queue is full new records
// are dropped and counted; the drop warning is logged at most once per
// minute.
type AsyncLogger struct {
	saver   PredictionSaver
	log     logger.Logger
	queue   chan Prediction
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	dropped  int
	dropWarn rate.Sometimes
	done     chan struct{}
}

func NewAsyncLogger(saver PredictionSaver, log logger.Logger, buffer int) *AsyncLogger {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.Discard()
	}
	a := &AsyncLogger{
		saver:   saver,
		log:     log,
		queue:   make(chan Prediction, buffer),
		timeout:  5 * time.Second,
		dropWarn: rate.Sometimes{First: 1, Interval: time.Minute},
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Log enqueues p and reports whether it was accepted.
func (a *AsyncLogger) Log(p Prediction) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- p:
		return true
	default:
		a.dropped++
		a.dropWarn.Do(func() {
			a.log.Warn("prediction log queue full, dropping records", "dropped", a.dropped)
		})
		return false
	}
}

func (a *AsyncLogger) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting records and waits until the queue is drained.
func (a *AsyncLogger) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for p := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.saver.SavePrediction(ctx, p); err != nil {
			a.log.Warn("prediction log write failed", "id", p.ID, "error", err)
		}
		cancel()
	}
}
