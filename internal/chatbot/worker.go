package chatbot

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

const (
	defaultConcurrency = 4
	laneBuffer         = 32
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) error
}

// WorkerConfig holds the dependencies of the bus consumer.
type WorkerConfig struct {
	Bus         domain.MessageBus
	Handler     Handler
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Concurrency int // number of lanes (default 4)
}

// Worker drains the bus into a fixed set of lanes. A phone always hashes to
// the same lane and each lane handles its messages one at a time in arrival
// order, so one phone's messages never overtake each other while different
// lanes run concurrently.
type Worker struct {
	bus         domain.MessageBus
	handler     Handler
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	wg          sync.WaitGroup
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		bus:         cfg.Bus,
		handler:     cfg.Handler,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
	}
}

// Run consumes inbound messages until ctx is done or the bus is closed.
// After a bus close the lanes finish everything already queued; after a
// cancel queued messages are dropped.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", "concurrency", w.concurrency)

	lanes := make([]chan domain.InboundMessage, w.concurrency)
	for i := range lanes {
		lanes[i] = make(chan domain.InboundMessage, laneBuffer)
		w.wg.Add(1)
		go w.runLane(ctx, lanes[i])
	}
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		w.wg.Wait()
	}()

	inbound := w.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				w.logger.Info("inbound channel closed, worker stopping")
				return
			}
			select {
			case lanes[laneFor(msg.From, len(lanes))] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) runLane(ctx context.Context, lane <-chan domain.InboundMessage) {
	defer w.wg.Done()
	for msg := range lane {
		if ctx.Err() != nil {
			w.logger.Warn("dropping queued message", "phone", msg.From, "message_id", msg.MessageID)
			continue
		}
		w.process(ctx, msg)
	}
}

// laneFor maps a phone to a lane index.
func laneFor(phone string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(phone))
	return int(h.Sum32() % uint32(n))
}

func (w *Worker) process(ctx context.Context, msg domain.InboundMessage) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		w.metrics.Processed(start, err)
		if err != nil {
			w.logger.Error("message processing failed",
				"phone", msg.From,
				"message_id", msg.MessageID,
				"error", err,
			)
		}
	}()
	err = w.handler.Handle(ctx, msg)
}
