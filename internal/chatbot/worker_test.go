package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"floorbot/internal/bus"
	"floorbot/internal/domain"
)

type recordingHandler struct {
	mu       sync.Mutex
	handled  []string
	byPhone  map[string][]string
	inFlight map[string]int
	overlap  bool
	fail     map[string]error
	panics   map[string]bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		inFlight: make(map[string]int),
		byPhone:  make(map[string][]string),
		fail:     make(map[string]error),
		panics:   make(map[string]bool),
	}
}

func (h *recordingHandler) Handle(_ context.Context, msg domain.InboundMessage) error {
	h.mu.Lock()
	h.inFlight[msg.From]++
	if h.inFlight[msg.From] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	h.mu.Lock()
	h.inFlight[msg.From]--
	h.handled = append(h.handled, msg.MessageID)
	h.byPhone[msg.From] = append(h.byPhone[msg.From], msg.MessageID)
	err := h.fail[msg.MessageID]
	p := h.panics[msg.MessageID]
	h.mu.Unlock()
	if p {
		panic("handler exploded")
	}
	return err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerProcessesUntilBusClosed(t *testing.T) {
	b := bus.New(50, quietLogger())
	h := newRecordingHandler()
	h.fail["m3"] = errors.New("store down")
	h.panics["m5"] = true
	w := NewWorker(WorkerConfig{Bus: b, Handler: h, Logger: quietLogger(), Concurrency: 4})

	phones := []string{"551100000001", "551100000002", "551100000003"}
	ids := []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}
	for i, id := range ids {
		b.Publish(domain.InboundMessage{From: phones[i%len(phones)], MessageID: id})
	}
	b.Close()

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after bus close")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.ElementsMatch(t, ids, h.handled)
	require.False(t, h.overlap, "two messages of one phone ran concurrently")
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	b := bus.New(10, quietLogger())
	defer b.Close()
	w := NewWorker(WorkerConfig{Bus: b, Handler: newRecordingHandler(), Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorkerDrivesMachine(t *testing.T) {
	h := newHarness(t)
	b := bus.New(10, quietLogger())
	w := NewWorker(WorkerConfig{Bus: b, Handler: h.machine, Logger: quietLogger()})

	b.Publish(domain.InboundMessage{From: testPhone, MessageID: "a", Type: "text", Text: "oi"})
	b.Publish(domain.InboundMessage{From: testPhone, MessageID: "b", Type: "interactive", InteractiveID: "request_quote"})
	b.Close()
	w.Run(context.Background())

	require.Equal(t, domain.StepQuoteProjectType, h.store.state(testPhone).Step)
	in := h.store.byDirection(domain.DirectionInbound)
	require.Len(t, in, 2)
	require.Equal(t, "a", in[0].ProviderID)
	require.Equal(t, "b", in[1].ProviderID)
}

func TestWorkerKeepsArrivalOrderPerPhone(t *testing.T) {
	b := bus.New(200, quietLogger())
	h := newRecordingHandler()
	w := NewWorker(WorkerConfig{Bus: b, Handler: h, Logger: quietLogger(), Concurrency: 4})

	phones := []string{"5511", "5522", "5533", "5544", "5555"}
	want := make(map[string][]string)
	for i := 0; i < 20; i++ {
		for _, p := range phones {
			id := fmt.Sprintf("%s-%02d", p, i)
			want[p] = append(want[p], id)
			b.Publish(domain.InboundMessage{From: p, MessageID: id})
		}
	}
	b.Close()
	w.Run(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.False(t, h.overlap)
	for _, p := range phones {
		require.Equal(t, want[p], h.byPhone[p], "phone %s", p)
	}
}

func TestWorkerStoresPhotosInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	h.advance(t, domain.StepQuotePhotos)
	b := bus.New(10, quietLogger())
	w := NewWorker(WorkerConfig{Bus: b, Handler: h.machine, Logger: quietLogger(), Concurrency: 4})

	for _, id := range []string{"photoA", "photoB", "photoC"} {
		b.Publish(domain.InboundMessage{
			From: testPhone, MessageID: "wamid." + id, Type: "image", MediaID: id, MediaType: "image",
		})
	}
	b.Close()
	w.Run(context.Background())

	require.Equal(t, []string{"photoA", "photoB", "photoC"}, h.store.state(testPhone).Data.Photos)
}

func TestLaneForIsStableAndInRange(t *testing.T) {
	for _, p := range []string{"", "5511999990000", "5511999990001", "x"} {
		l := laneFor(p, 4)
		require.GreaterOrEqual(t, l, 0)
		require.Less(t, l, 4)
		require.Equal(t, l, laneFor(p, 4))
	}
	require.Zero(t, laneFor("5511999990000", 1))
}
