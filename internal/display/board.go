package display

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

// Renderer redraws one job's live timer. It is called from the job's own
// goroutine, so implementations shared across jobs must be safe for concurrent use.
type Renderer func(id string, elapsed time.Duration)

// Board keeps one ticker per visible open job and re-renders its elapsed time.
// It only reads work logs; state changes go through the store.
type Board struct {
	Render   Renderer
	Interval time.Duration
	Now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	mu     sync.Mutex
	job    worklog.WorkLog
	cancel context.CancelFunc
}

func NewBoard(render Renderer) *Board {
	return &Board{
		Render:   render,
		Interval: common.DisplayTickInterval,
		Now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Sync makes the running tickers match logs: open jobs get a ticker (or have
// their snapshot refreshed), everything else is stopped.
func (b *Board) Sync(ctx context.Context, logs []worklog.WorkLog) {
	b.mu.Lock()
	defer b.mu.Unlock()

	visible := make(map[string]bool, len(logs))
	for _, l := range logs {
		if !l.Status.Open() {
			continue
		}
		visible[l.ID] = true
		if e, ok := b.entries[l.ID]; ok {
			e.mu.Lock()
			e.job = l
			e.mu.Unlock()
			continue
		}
		ectx, cancel := context.WithCancel(ctx)
		e := &entry{job: l, cancel: cancel}
		b.entries[l.ID] = e
		b.wg.Add(1)
		go b.run(ectx, e)
	}
	for id, e := range b.entries {
		if !visible[id] {
			e.cancel()
			delete(b.entries, id)
		}
	}
}

// Visible returns the ids with a running ticker, sorted.
func (b *Board) Visible() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop cancels every ticker and waits for them to exit.
func (b *Board) Stop() {
	b.mu.Lock()
	for id, e := range b.entries {
		e.cancel()
		delete(b.entries, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Board) run(ctx context.Context, e *entry) {
	defer b.wg.Done()
	t := time.NewTicker(b.Interval)
	defer t.Stop()

	b.render(e)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.render(e)
		}
	}
}

func (b *Board) render(e *entry) {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()
	b.Render(job.ID, worklog.Elapsed(job, b.Now()))
}
