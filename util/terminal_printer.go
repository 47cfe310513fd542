package util

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// TerminalPrinter periodically redraws one terminal line per worker.
type TerminalPrinter struct {
	outputs   []*WorkerOutput
	frequency time.Duration
	doneCh    chan struct{}

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(frequency time.Duration) *TerminalPrinter {
	return &TerminalPrinter{
		outputs:   make([]*WorkerOutput, 0),
		frequency: frequency,
		doneCh:    make(chan struct{}),

		writer:  uilive.New(),
		writers: make([]io.Writer, 0),
	}
}

// NewOutput allocates a terminal line. Call for every worker before Start.
func (p *TerminalPrinter) NewOutput() *WorkerOutput {
	out := NewWorkerOutput()
	p.outputs = append(p.outputs, out)
	p.writers = append(p.writers, p.writer.Newline())
	return out
}

func (p *TerminalPrinter) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-p.doneCh:
				p.writer.Stop()
				return
			case <-ctx.Done():
				p.writer.Stop()
				return
			case <-time.After(p.frequency):
				p.print()
			}
		}
	}()
}

func (p *TerminalPrinter) Stop() {
	close(p.doneCh)
}

func (p *TerminalPrinter) print() {
	for i, output := range p.outputs {
		fmt.Fprint(p.writers[i], output.Get()+"\n")
	}
	p.writer.Flush()
}

// WorkerOutput holds the current status line of one worker.
type WorkerOutput struct {
	mu        *sync.Mutex
	printable string
}

func NewWorkerOutput() *WorkerOutput {
	return &WorkerOutput{
		mu: new(sync.Mutex),
	}
}

// Set replaces the status line.
func (o *WorkerOutput) Set(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printable = s
}

// Get returns the current status line.
func (o *WorkerOutput) Get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.printable
}
