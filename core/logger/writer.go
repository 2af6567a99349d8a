package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
)

// sink receives every line at or above min.
type sink struct {
	w   io.Writer
	min slog.Level
}

func allLevels(w io.Writer) sink { return sink{w: w, min: math.MinInt} }

type line struct {
	level slog.Level
	data  []byte
}

type bufferedSink struct {
	buf *bufio.Writer
	min slog.Level
}

// asyncWriter moves formatting output off the caller's goroutine and fans
// each line out to the sinks whose level threshold it meets.
type asyncWriter struct {
	queue    chan line
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once

	sinks []bufferedSink

	mu  sync.Mutex
	err error
}

func newAsyncWriter(bufSize int, sinks ...sink) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan line, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, s := range sinks {
		if s.w == nil {
			continue
		}
		w.sinks = append(w.sinks, bufferedSink{buf: bufio.NewWriterSize(s.w, bufSize), min: s.min})
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.queue:
			if !ok {
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.write(l))
		case ack := <-w.flushReq:
			ack <- w.flushAll()
		}
	}
}

// Write queues a copy of p. It blocks only when the queue is full.
func (w *asyncWriter) Write(level slog.Level, p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- line{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush blocks until queued lines reach the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.firstErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains the queue and returns the first write error seen.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) write(l line) error {
	for _, s := range w.sinks {
		if l.level < s.min {
			continue
		}
		if _, err := s.buf.Write(l.data); err != nil {
			return err
		}
		if err := s.buf.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushAll() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
