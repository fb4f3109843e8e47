package kafka

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPublishDropsWhenFull(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1, zap.NewNop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Publish("order.created", []byte("o1"), []byte("{}"))
		p.Publish("order.created", []byte("o2"), []byte("{}"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full inbox")
	}
	if n := len(p.inbox); n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 4, zap.NewNop())
	p.Close()
	p.Close()
	p.Publish("payment.updated", []byte("o1"), []byte("{}"))
	if n := len(p.inbox); n != 0 {
		t.Fatalf("queued after close = %d", n)
	}
}
