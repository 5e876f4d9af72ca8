// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Shutdown when called twice.
var ErrQueueClosed = errors.New("mail queue closed")

// Outcomes reported to a Recorder.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordMail(template, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMail(string, string) {}

// sendTimeout bounds a single delivery attempt.
const sendTimeout = 30 * time.Second

// Queue hands messages to a fixed pool of workers. Enqueue never blocks;
// when the buffer is full the message is dropped and logged.
type Queue struct {
	sender  Sender
	metrics Recorder
	jobs    chan Message
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts workers goroutines draining a buffer of size messages.
func NewQueue(sender Sender, workers, size int, metrics Recorder) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}

	q := &Queue{
		sender:  sender,
		metrics: metrics,
		jobs:    make(chan Message, size),
	}
	for range workers {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue schedules msg for delivery and reports whether it was accepted.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		slog.Warn("email_dropped", "reason", "queue_closed", "to", msg.To, "template", string(msg.Template))
		q.metrics.RecordMail(string(msg.Template), OutcomeDropped)
		return false
	}

	select {
	case q.jobs <- msg:
		return true
	default:
		slog.Warn("email_dropped", "reason", "queue_full", "to", msg.To, "template", string(msg.Template))
		q.metrics.RecordMail(string(msg.Template), OutcomeDropped)
		return false
	}
}

// Shutdown stops accepting messages and waits until the buffer is drained
// or ctx expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("email_queue_shutdown_timeout", "pending", len(q.jobs))
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for msg := range q.jobs {
		q.deliver(msg)
	}
}

func (q *Queue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := q.sender.Send(ctx, msg); err != nil {
		slog.Error("email_send_failed", "to", msg.To, "template", string(msg.Template), "error", err)
		q.metrics.RecordMail(string(msg.Template), OutcomeFailed)
		return
	}

	slog.Debug("email_sent", "to", msg.To, "template", string(msg.Template))
	q.metrics.RecordMail(string(msg.Template), OutcomeSent)
}
