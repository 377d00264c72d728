package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/metrics"
)

// ErrNoResult marks a probe whose fetch returned without resolving it
var ErrNoResult = errors.New("fetch returned without a result")

// Relauncher restarts the backends without blocking the caller
type Relauncher interface {
	RelaunchAll()
}

// Sequencer issues probes on a fixed interval
type Sequencer struct {
	seq        *Sequence
	fetcher    Fetcher
	relauncher Relauncher
	metrics    *metrics.Collector
	logger     *log.Logger

	total    int
	interval time.Duration
	trigger  int

	fetches sync.WaitGroup
	done    chan struct{}
}

// NewSequencer creates a sequencer appending to seq
func NewSequencer(cfg config.ProbeConfig, seq *Sequence, f Fetcher, r Relauncher, m *metrics.Collector, logger *log.Logger) *Sequencer {
	return &Sequencer{
		seq:        seq,
		fetcher:    f,
		relauncher: r,
		metrics:    m,
		logger:     logger,
		total:      cfg.Total,
		interval:   cfg.Interval,
		trigger:    cfg.RelaunchTriggerIndex,
		done:       make(chan struct{}),
	}
}

// Run issues the probes. For each index it waits one interval, appends a new
// probe and starts its fetch. Right after issuing the probe at the trigger
// index it calls RelaunchAll. Run returns once every probe is issued or ctx
// is cancelled; fetches may still be in flight.
func (s *Sequencer) Run(ctx context.Context) error {
	defer close(s.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for i := 0; i < s.total; i++ {
		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.logger.Info("sequencer cancelled", "issued", i)
			return ctx.Err()
		case <-timer.C:
		}

		p := New(i)
		s.seq.Append(p)
		s.launch(ctx, p)

		if i == s.trigger {
			s.logger.Info("relaunch triggered", "seq", i)
			s.relauncher.RelaunchAll()
		}
	}

	s.logger.Info("all probes issued", "total", s.total)
	return nil
}

func (s *Sequencer) launch(ctx context.Context, p *Probe) {
	s.metrics.ProbeStarted()
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		defer s.finish(p)
		defer func() {
			if r := recover(); r != nil {
				p.Fail(fmt.Errorf("probe panicked: %v", r))
				s.logger.Error("probe panicked", "seq", p.Seq, "panic", r)
			}
		}()
		s.fetcher.Fetch(ctx, p)
	}()
}

// finish makes sure the probe is terminal and records it
func (s *Sequencer) finish(p *Probe) {
	p.Fail(ErrNoResult)
	snap := p.Snapshot()
	s.metrics.ProbeFinished(snap.State.String(), Reason(snap.Err), snap.Elapsed)
}

// Done is closed when Run returns
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// WaitFetches blocks until every started fetch has returned. Call it after Done is closed.
func (s *Sequencer) WaitFetches() {
	s.fetches.Wait()
}
