package generationhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thumbforge/server/internal/port/inbound"
)

// HeartbeatLine is written when the stream has been idle for a heartbeat
// interval. NDJSON readers skip lines starting with ':'.
const HeartbeatLine = ": keep-alive\n"

// Stream writes generation events as newline-delimited JSON. It is safe for
// concurrent use. After the first failed write all further output is dropped,
// so a disconnected client never stalls the job.
type Stream struct {
	mu        sync.Mutex
	w         io.Writer
	flusher   http.Flusher
	lastWrite time.Time
	err       error
	logger    *zap.Logger
}

// NewStream creates a new NDJSON stream on w. w is flushed after every line
// when it implements http.Flusher.
func NewStream(w io.Writer, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	flusher, _ := w.(http.Flusher)
	return &Stream{
		w:         w,
		flusher:   flusher,
		lastWrite: time.Now(),
		logger:    logger,
	}
}

// Emit writes one event line.
func (s *Stream) Emit(event inbound.GenerationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode stream event",
			zap.String("type", string(event.EventType())),
			zap.Error(err),
		)
		return
	}
	s.write(append(data, '\n'))
}

// KeepAlive writes a heartbeat line unconditionally.
func (s *Stream) KeepAlive() {
	s.write([]byte(HeartbeatLine))
}

// Flush commits buffered output, including response headers.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && s.flusher != nil {
		s.flusher.Flush()
	}
}

// Err returns the first write failure, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartHeartbeat writes a heartbeat whenever nothing was written for interval.
// The returned function stops the heartbeat and waits for it to exit.
func (s *Stream) StartHeartbeat(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.idleFor() >= interval {
					s.KeepAlive()
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (s *Stream) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastWrite)
}

func (s *Stream) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	if _, err := s.w.Write(line); err != nil {
		s.err = err
		s.logger.Info("stream client went away, dropping further events", zap.Error(err))
		return
	}
	s.lastWrite = time.Now()
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Compile-time interface check
var _ inbound.EventSink = (*Stream)(nil)
