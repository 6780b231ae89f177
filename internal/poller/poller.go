package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"sitmon/internal/ingest"
	"sitmon/internal/models"
)

// Poller triggers a full refresh cycle on a fixed interval. It has no
// ingestion logic of its own; the ingestor's single-flight gate makes an
// overlap with a manual refresh harmless.
type Poller struct {
	ingestor *ingest.Ingestor
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastRun  time.Time
	running  bool
}

func New(ingestor *ingest.Ingestor, interval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		ingestor: ingestor,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	log.Printf("Starting background refresh poller with interval: %v", p.interval)

	p.wg.Add(1)
	go p.pollLoop()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	log.Println("Stopping background refresh poller...")
	p.cancel()
	p.wg.Wait()
	log.Println("Background refresh poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runCycle()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) runCycle() {
	result, err := p.ingestor.Refresh("")
	if err != nil {
		log.Printf("Scheduled refresh failed: %v", err)
		return
	}

	if result.Skipped {
		log.Printf("Scheduled refresh skipped, another cycle is in flight")
	} else {
		log.Printf("Scheduled refresh completed at %s", result.RefreshedAt)
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.mu.Unlock()
}

// ForceRefresh triggers a cycle outside the regular schedule.
func (p *Poller) ForceRefresh() (*models.RefreshResult, error) {
	log.Println("Force refresh requested")
	result, err := p.ingestor.Refresh("")
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.mu.Unlock()
	return result, nil
}

func (p *Poller) IsPolling() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// LastRun returns when the poller last completed a scheduled cycle.
func (p *Poller) LastRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}
