package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// OverdueMarker moves unpaid bills past their due date to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// Manager runs the job queue and the periodic overdue sweep
type Manager struct {
	queue         *Queue
	overdue       OverdueMarker
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager creates a manager. overdue may be nil to disable the sweep.
func NewManager(queue *Queue, overdue OverdueMarker, sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return &Manager{queue: queue, overdue: overdue, sweepInterval: sweepInterval}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.overdue != nil {
		m.sweepTicker = time.NewTicker(m.sweepInterval)
		m.wg.Add(1)
		go m.overdueWorker()
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// overdueWorker marks overdue bills on every tick
func (m *Manager) overdueWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started overdue sweep (interval: %s)", m.sweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Overdue sweep stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.RunOverdueSweepOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Overdue sweep error: %v", err)
			}
		}
	}
}

// RunOverdueSweepOnce runs a single overdue sweep.
func (m *Manager) RunOverdueSweepOnce(ctx context.Context) (int, error) {
	if m.overdue == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	n, err := m.overdue.MarkOverdue(ctx, time.Now())
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Infof("[JobQueue Manager] Marked %d bills overdue", n)
	}
	return n, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
