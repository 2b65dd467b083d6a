package report

import (
	"log/slog"
	"time"

	"github.com/voicekit/agent/internal/latency"
)

// Pump decouples the conversation pipeline from disk writes: turns are
// handed off through a buffered channel and flushed by a background
// goroutine, periodically and on Close. All methods are nil-safe.
type Pump struct {
	r    *Reporter
	ch   chan latency.Turn
	done chan struct{}
}

// NewPump starts the background writer. interval controls the periodic
// flush; Close performs the final one. Must call Close when done.
func NewPump(r *Reporter, interval time.Duration) *Pump {
	p := &Pump{
		r:    r,
		ch:   make(chan latency.Turn, 64),
		done: make(chan struct{}),
	}
	go p.drain(interval)
	return p
}

// Append hands a closed turn to the writer goroutine. When the channel is
// full the row is buffered synchronously instead of dropped.
func (p *Pump) Append(t latency.Turn) {
	if p == nil {
		return
	}
	select {
	case p.ch <- t:
	default:
		p.r.Append(t)
	}
}

// Close drains pending turns, flushes, and stops the writer goroutine.
func (p *Pump) Close() {
	if p == nil {
		return
	}
	close(p.ch)
	<-p.done
}

func (p *Pump) drain(interval time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-p.ch:
			if !ok {
				p.flush()
				return
			}
			p.r.Append(t)
		case <-ticker.C:
			p.flush()
		}
	}
}

// flush logs failures and moves on; rows stay buffered for the next attempt.
func (p *Pump) flush() {
	if err := p.r.Flush(); err != nil {
		slog.Error("metrics report flush failed, rows retained", "path", p.r.Path(), "error", err)
	}
}
