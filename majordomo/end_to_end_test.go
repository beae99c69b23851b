// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/internal/metrics"
	"github.com/destiny/mdbroker/internal/testutil"
)

const testHeartbeat = 100 * time.Millisecond

func newTestBroker(t *testing.T, configure func(*BrokerOptions)) (*Broker, string) {
	t.Helper()

	endpoint, err := testutil.GetTestEndpoint()
	require.NoError(t, err)

	log := logging.Nop()
	opts := DefaultBrokerOptions()
	opts.HeartbeatInterval = testHeartbeat
	opts.Logger = &log
	opts.Metrics = metrics.NewCollector(t.Name())
	if configure != nil {
		configure(opts)
	}

	broker := NewBroker(endpoint, opts)
	require.NoError(t, broker.Bind())
	return broker, endpoint
}

// startBroker runs a broker until the test ends, then checks that stopping
// it left no goroutines behind.
func startBroker(t *testing.T) (*Broker, string) {
	t.Helper()

	leaks := goleak.IgnoreCurrent()
	broker, endpoint := newTestBroker(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broker.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
			goleak.VerifyNone(t, leaks)
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})

	return broker, endpoint
}

func startWorker(t *testing.T, endpoint string, service ServiceName, handler RequestHandler) *Worker {
	t.Helper()

	log := logging.Nop()
	worker, err := NewWorker(service, endpoint, handler, &WorkerOptions{
		HeartbeatInterval: testHeartbeat,
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		ReconnectInterval: testHeartbeat,
		Logger:            &log,
	})
	require.NoError(t, err)
	require.NoError(t, worker.Start())
	t.Cleanup(func() { worker.Stop() })
	return worker
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()

	log := logging.Nop()
	client := NewClient(endpoint, &ClientOptions{
		Timeout: 2 * time.Second,
		Retries: 3,
		Logger:  &log,
	})
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func waitForWorkers(t *testing.T, broker *Broker, n int) {
	t.Helper()
	testutil.WaitWithTimeout(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		stats, err := broker.Stats(ctx)
		return err == nil && stats.Workers == n
	}, 5*time.Second, 20*time.Millisecond)
}

func echo(_ context.Context, request [][]byte) ([][]byte, error) {
	return request, nil
}

func TestEndToEndEcho(t *testing.T) {
	broker, endpoint := startBroker(t)
	worker := startWorker(t, endpoint, "echo", echo)
	waitForWorkers(t, broker, 1)
	assert.True(t, worker.IsConnected())

	client := newTestClient(t, endpoint)
	tracker := testutil.NewMessageTracker()

	ctx, cancel := testutil.TestTimeoutContext(10 * time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("msg-%d", i)
		tracker.MarkSent(id)
		reply, err := client.Request(ctx, "echo", []byte(id), []byte("payload"))
		require.NoError(t, err)
		require.Len(t, reply, 2)
		assert.Equal(t, "payload", string(reply[1]))
		tracker.MarkReceived(string(reply[0]))
	}
	tracker.VerifyDelivery(t)
	assert.Equal(t, "msg-0", tracker.Order()[0])

	code, err := client.LookupService(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "200", code)

	code, err = client.LookupService(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "404", code)

	assert.Equal(t, uint64(10), worker.Stats().Replies)
	assert.Equal(t, ClientStats{Requests: 12, Replies: 12}, client.Stats())

	require.NoError(t, worker.Stop())
	waitForWorkers(t, broker, 0)

	code, err = client.LookupService(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "404", code)
}

func TestEndToEndHandlerError(t *testing.T) {
	broker, endpoint := startBroker(t)
	worker := startWorker(t, endpoint, "fail", func(context.Context, [][]byte) ([][]byte, error) {
		return nil, errors.New("boom")
	})
	defer worker.Stop()
	waitForWorkers(t, broker, 1)

	client := newTestClient(t, endpoint)
	ctx, cancel := testutil.TestTimeoutContext(10 * time.Second)
	defer cancel()

	reply, err := client.Request(ctx, "fail", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("Error: boom")}, reply)
	assert.Equal(t, uint64(1), worker.Stats().Errors)
}

func TestEndToEndLoadBalancing(t *testing.T) {
	broker, endpoint := startBroker(t)

	handler := func(name string) RequestHandler {
		return func(context.Context, [][]byte) ([][]byte, error) {
			return [][]byte{[]byte(name)}, nil
		}
	}
	w1 := startWorker(t, endpoint, "work", handler("w1"))
	defer w1.Stop()
	w2 := startWorker(t, endpoint, "work", handler("w2"))
	defer w2.Stop()
	waitForWorkers(t, broker, 2)

	client := newTestClient(t, endpoint)
	ctx, cancel := testutil.TestTimeoutContext(10 * time.Second)
	defer cancel()

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		reply, err := client.Request(ctx, "work", []byte("job"))
		require.NoError(t, err)
		require.Len(t, reply, 1)
		seen[string(reply[0])]++
	}
	// strictly alternating: each reply puts its worker at the back of the queue
	assert.Equal(t, map[string]int{"w1": 3, "w2": 3}, seen)
}

func TestClientTimeout(t *testing.T) {
	_, endpoint := startBroker(t)

	log := logging.Nop()
	client := NewClient(endpoint, &ClientOptions{
		Timeout: 100 * time.Millisecond,
		Retries: 2,
		Logger:  &log,
	})
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	_, err := client.Request(context.Background(), "nobody", []byte("x"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(2), client.Stats().Timeouts)
}

func TestClientNotConnected(t *testing.T) {
	client := NewClient("tcp://127.0.0.1:1", nil)
	_, err := client.Request(context.Background(), "echo")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNewWorkerValidation(t *testing.T) {
	_, err := NewWorker("", "tcp://127.0.0.1:1", echo, nil)
	assert.Error(t, err)

	_, err = NewWorker("mmi.service", "tcp://127.0.0.1:1", echo, nil)
	assert.Error(t, err)

	_, err = NewWorker("echo", "tcp://127.0.0.1:1", nil, nil)
	assert.Error(t, err)
}

// flood sends echo requests from a DEALER until stop is closed.
func flood(t *testing.T, endpoint string, stop <-chan struct{}) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity("flood")))
	require.NoError(t, socket.Dial(endpoint))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		msg := zmq4.NewMsgFrom(encodeClient(nil, "echo", []byte("x"))...)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := socket.Send(msg); err != nil {
				return
			}
		}
	}()

	return func() {
		cancel()
		socket.Close()
		wg.Wait()
	}
}

func TestCloseUnderLoad(t *testing.T) {
	for i := 0; i < 10; i++ {
		t.Run(fmt.Sprintf("round-%d", i), func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			broker, endpoint := newTestBroker(t, func(opts *BrokerOptions) {
				opts.MaxQueue = 64
				opts.Overflow = OverflowDropOldest
			})
			done := make(chan error, 1)
			go func() { done <- broker.Run(context.Background()) }()

			stop := make(chan struct{})
			release := flood(t, endpoint, stop)
			defer release()
			defer close(stop)

			testutil.WaitWithTimeout(t, func() bool {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				stats, err := broker.Stats(ctx)
				return err == nil && len(stats.Services) == 1 && stats.Services[0].Pending > 0
			}, 5*time.Second, 10*time.Millisecond)

			broker.Close()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after Close")
			}
		})
	}
}

func TestCloseRacingRunStartup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for i := 0; i < 20; i++ {
		broker, _ := newTestBroker(t, nil)

		done := make(chan error, 1)
		go func() { done <- broker.Run(context.Background()) }()
		broker.Close()

		select {
		case err := <-done:
			// Close won either before Run started or after it
			if !errors.Is(err, ErrBrokerClosed) {
				assert.NoError(t, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after Close")
		}

		_, err := broker.Stats(context.Background())
		assert.ErrorIs(t, err, ErrBrokerClosed)
	}
}
