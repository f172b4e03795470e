package healthpinger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPingerCallsPingRepeatedly(t *testing.T) {
	var count int32
	p := New(5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	p.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	p.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestPingerStopBlocksUntilGoroutineExits(t *testing.T) {
	started := make(chan struct{})
	blockUntil := make(chan struct{})
	p := New(time.Millisecond, func(ctx context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-blockUntil
		return nil
	})

	p.Start(context.Background())
	<-started
	close(blockUntil)
	p.Stop()
}

func TestPingerStartTwiceIsNoOp(t *testing.T) {
	var count int32
	p := New(5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	p.Start(context.Background())
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	assert.Greater(t, atomic.LoadInt32(&count), int32(0))
}

func TestPingerStopWithoutStartIsNoOp(t *testing.T) {
	p := New(time.Second, func(ctx context.Context) error { return nil })
	p.Stop()
}
