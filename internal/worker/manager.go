package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"circleshare/internal/queue"
)

const (
	defaultWorkerCount  = 2
	defaultBatchSize    = 10
	defaultBlockTimeout = 5 * time.Second
)

// ManagerConfig tunes the consumer pool. Zero values take the defaults.
type ManagerConfig struct {
	WorkerCount  int
	BatchSize    int64
	BlockTimeout time.Duration
}

// Manager runs a pool of goroutines consuming the social stream through one
// consumer group, so each event is handled exactly once across the pool.
type Manager struct {
	consumer queue.Consumer
	handler  *Handler
	cfg      ManagerConfig

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	return &Manager{consumer: consumer, handler: handler, cfg: cfg}
}

// Start creates the consumer group and launches the pool. Stop blocks until
// every worker has drained.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamSocial, queue.ConsumerGroupSocial); err != nil {
		return err
	}

	log.Printf("[Manager] Starting %d workers: stream=%s group=%s",
		m.cfg.WorkerCount, queue.StreamSocial, queue.ConsumerGroupSocial)

	for i := 1; i <= m.cfg.WorkerCount; i++ {
		m.wg.Add(1)
		go m.run(fmt.Sprintf("worker-%d", i))
	}
	return nil
}

func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] All workers stopped")
}

func (m *Manager) run(name string) {
	defer m.wg.Done()

	// Replay anything a previous incarnation of this consumer left unacked.
	for {
		pending, err := m.consumer.ReadPending(m.ctx, queue.StreamSocial, queue.ConsumerGroupSocial, name, m.cfg.BatchSize)
		if err != nil || len(pending) == 0 {
			if err != nil {
				log.Printf("[%s] pending read failed: %v", name, err)
			}
			break
		}
		log.Printf("[%s] replaying %d pending messages", name, len(pending))
		m.dispatch(name, pending)
	}

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[%s] shutting down", name)
			return
		default:
		}

		messages, err := m.consumer.Read(m.ctx, queue.StreamSocial, queue.ConsumerGroupSocial,
			name, m.cfg.BatchSize, m.cfg.BlockTimeout)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			log.Printf("[%s] read failed: %v", name, err)
			time.Sleep(time.Second)
			continue
		}
		m.dispatch(name, messages)
	}
}

// dispatch handles a batch and acks every message, including ones whose
// handler errored: retrying a poison event forever would stall the group.
func (m *Manager) dispatch(name string, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(m.ctx, msg.Event); err != nil {
			log.Printf("[%s] handle failed: msgID=%s err=%v", name, msg.ID, err)
		}
		if err := m.consumer.Ack(m.ctx, queue.StreamSocial, queue.ConsumerGroupSocial, msg.ID); err != nil {
			log.Printf("[%s] ack failed: msgID=%s err=%v", name, msg.ID, err)
		}
	}
}
