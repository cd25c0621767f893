package storage

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 1024
	flushInterval = 100 * time.Millisecond
	flushBatch    = 64
)

// LogWriter writes events as structured JSON through zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *EnforcementEvent) {
	w.logger.Info("enforcement_event",
		zap.String("request_id", event.RequestID),
		zap.Time("timestamp", event.Timestamp),
		zap.String("mode", event.Mode),
		zap.String("direction", event.Direction),
		zap.Bool("success", event.Success),
		zap.Bool("has_violations", event.HasViolations),
		zap.String("reason", event.Reason),
		zap.Strings("detector_names", event.DetectorNames),
		zap.Bools("detector_triggered", event.DetectorTriggered),
		zap.Float64s("detector_scores", event.DetectorScores),
		zap.Float64("latency_ms", event.LatencyMs),
		zap.String("payload_hash", event.PayloadHash),
		zap.Uint32("payload_size", event.PayloadSize),
		zap.String("payload_preview", event.PayloadPreview),
		zap.String("error", event.Error),
	)
}

func (w *LogWriter) Close() {}

// AsyncWriter buffers events and hands them to a sink from a background
// goroutine. Write() is non-blocking: events are dropped when the buffer
// is full.
type AsyncWriter struct {
	sink    EventWriter
	buffer  chan *EnforcementEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	once    sync.Once
	logger  *zap.Logger
}

// NewAsyncWriter starts the flush loop in front of sink.
func NewAsyncWriter(sink EventWriter, logger *zap.Logger) *AsyncWriter {
	w := &AsyncWriter{
		sink:    sink,
		buffer:  make(chan *EnforcementEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

func (w *AsyncWriter) Write(event *EnforcementEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("event buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains buffered events into the sink, then closes the sink.
// Safe to call more than once.
func (w *AsyncWriter) Close() {
	w.once.Do(func() {
		close(w.done)
		<-w.flushed
		w.sink.Close()
	})
}

func (w *AsyncWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*EnforcementEvent, 0, flushBatch)
	flush := func() {
		for _, e := range batch {
			w.sink.Write(e)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				default:
					break drainLoop
				}
			}
			flush()
			return
		}
	}
}
