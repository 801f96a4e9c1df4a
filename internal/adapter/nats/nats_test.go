package nats

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
)

const testStream = "LEDGER_TEST"

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, testStream)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// testEvent builds a valid ledger event whose subject is unique per test.
func testEvent(t *testing.T, typ event.Type) (string, []byte) {
	t.Helper()
	ev := event.LedgerEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Subject:   strings.ReplaceAll(t.Name(), "/", "_"),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return messagequeue.SubjectFor(typ), data
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject, data := testEvent(t, event.TypeWalletCreated)

	var (
		mu       sync.Mutex
		received *event.LedgerEvent
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got event.LedgerEvent
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.Type != event.TypeWalletCreated {
		t.Fatalf("unexpected message: %+v", received)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject, data := testEvent(t, event.TypeHumanFlagged)

	const wantReqID = "req-abc-123"
	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

// consumeDLQ returns a channel receiving the first dead letter for subject.
func consumeDLQ(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	c, err := q.js.CreateOrUpdateConsumer(ctx, testStream, jetstream.ConsumerConfig{
		FilterSubject: dlqPrefix + subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	out := make(chan []byte, 1)
	var once sync.Once
	sub, err := c.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestQueue_DLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectFor(event.TypeEscrowOpened)

	dlq := consumeDLQ(t, q, subject)
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != "not-json" {
			t.Errorf("DLQ data = %q, want %q", data, "not-json")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_DLQ_RetryExhaustion(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject, data := testEvent(t, event.TypeWalletSpent)

	dlq := consumeDLQ(t, q, subject)
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error {
		return errAlwaysFail
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// Start at the retry limit so the first failure dead-letters.
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case got := <-dlq:
		if string(got) != string(data) {
			t.Errorf("DLQ data = %q, want %q", got, data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-ledger", 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "wallet.a", []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "wallet.a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "1" {
		t.Errorf("value = %q, want 1", entry.Value())
	}
	if err := kv.Delete(ctx, "wallet.a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "wallet.a"); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestRetryCount(t *testing.T) {
	h := nats.Header{}
	if retryCount(h) != 0 {
		t.Fatal("missing header should count as 0")
	}
	h.Set(headerRetryCount, "2")
	if retryCount(h) != 2 {
		t.Fatalf("retryCount = %d", retryCount(h))
	}
	h.Set(headerRetryCount, "x")
	if retryCount(h) != 0 {
		t.Fatal("garbage header should count as 0")
	}
}

// errAlwaysFail is a sentinel error used by handlers that should always fail.
var errAlwaysFail = errSentinel("handler always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
