package nats

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
)

var testNATSURL string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start nats container: %v\n", err)
		os.Exit(1)
	}

	testNATSURL, err = container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get nats url: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate nats container: %v\n", err)
	}
	os.Exit(code)
}

func testConnect(t *testing.T, subject string) *EventBus {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	bus, err := Connect(context.Background(), testNATSURL, subject)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bus.Close()
	})
	return bus
}

type collector struct {
	mu  sync.Mutex
	got []string
}

func (c *collector) handle(data []byte) {
	c.mu.Lock()
	c.got = append(c.got, string(data))
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestEventBus_FansOutInOrder(t *testing.T) {
	subject := "test.fanout"
	publisher := testConnect(t, subject)
	first := testConnect(t, subject)
	second := testConnect(t, subject)
	ctx := context.Background()

	var a, b collector
	stopA, err := first.Subscribe(ctx, a.handle)
	require.NoError(t, err)
	defer stopA()
	stopB, err := second.Subscribe(ctx, b.handle)
	require.NoError(t, err)
	defer stopB()

	want := []string{"1", "2", "3", "4", "5"}
	for _, msg := range want {
		require.NoError(t, publisher.Publish(ctx, []byte(msg)))
	}

	require.Eventually(t, func() bool {
		return len(a.snapshot()) == len(want) && len(b.snapshot()) == len(want)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}

func TestEventBus_StopEndsDelivery(t *testing.T) {
	bus := testConnect(t, "test.stop")
	ctx := context.Background()

	var c collector
	stop, err := bus.Subscribe(ctx, c.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, []byte("before")))
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	stop()
	stop()

	require.NoError(t, bus.Publish(ctx, []byte("after")))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"before"}, c.snapshot())
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, "nats://127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestEventBus_PingAfterClose(t *testing.T) {
	bus := testConnect(t, "test.ping")
	ctx := context.Background()

	require.NoError(t, bus.Ping(ctx))

	require.NoError(t, bus.Close())
	assert.Eventually(t, func() bool { return bus.Ping(ctx) != nil }, 5*time.Second, 10*time.Millisecond)
}
