package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inverter-drive/internal/config"
)

type fakeStream struct {
	args   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(maxLen int64) (*StreamProducer, *fakeStream) {
	fake := &fakeStream{}
	return &StreamProducer{rdb: fake, stream: "drive:samples", maxLen: maxLen, logger: zap.NewNop()}, fake
}

func TestProduceBuildsXAddArgs(t *testing.T) {
	p, fake := newTestProducer(10000)
	if err := p.Produce(context.Background(), "", "DRIVE-001", map[string]int{"tick": 3}); err != nil {
		t.Fatal(err)
	}
	if err := p.Produce(context.Background(), "drive:faults", "DRIVE-001", "x"); err != nil {
		t.Fatal(err)
	}
	if len(fake.args) != 2 {
		t.Fatalf("expected 2 XADD calls, got %d", len(fake.args))
	}

	a := fake.args[0]
	if a.Stream != "drive:samples" || a.MaxLen != 10000 || !a.Approx {
		t.Errorf("unexpected stream args %+v", a)
	}
	values, ok := a.Values.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected values type %T", a.Values)
	}
	if values["key"] != "DRIVE-001" || values["message"] != `{"tick":3}` {
		t.Errorf("unexpected values %v", values)
	}
	if fake.args[1].Stream != "drive:faults" {
		t.Errorf("expected topic to override the stream, got %q", fake.args[1].Stream)
	}
}

func TestProduceWithoutMaxLenDoesNotTrim(t *testing.T) {
	p, fake := newTestProducer(0)
	if err := p.Produce(context.Background(), "", "k", 1); err != nil {
		t.Fatal(err)
	}
	if a := fake.args[0]; a.MaxLen != 0 || a.Approx {
		t.Errorf("expected no trimming, got %+v", a)
	}
}

func TestProduceWrapsClientError(t *testing.T) {
	p, fake := newTestProducer(0)
	fake.err = errors.New("connection refused")
	if err := p.Produce(context.Background(), "", "k", 1); !errors.Is(err, fake.err) {
		t.Errorf("expected wrapped client error, got %v", err)
	}
	if err := p.Produce(context.Background(), "", "k", func() {}); err == nil {
		t.Error("expected marshal error")
	}
	p.Close()
	if !fake.closed {
		t.Error("expected client closed")
	}
}

func TestNewStreamProducerValidates(t *testing.T) {
	if _, err := NewStreamProducer(config.RedisConfig{}, config.RedisStreamConfig{Stream: "s"}, zap.NewNop()); err == nil {
		t.Error("expected empty addr rejected")
	}
	if _, err := NewStreamProducer(config.RedisConfig{Addr: "localhost:6379"}, config.RedisStreamConfig{}, zap.NewNop()); err == nil {
		t.Error("expected empty stream rejected")
	}
}
