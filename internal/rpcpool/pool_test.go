package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/solana"
	"pumpfun-engine/internal/solana/stub"
)

func testConfig() Config {
	return Config{
		MaxRetries:             3,
		Timeout:                2 * time.Second,
		MaxConcurrentEndpoints: 3,
		RetryDelay:             time.Millisecond,
	}
}

func stubPool(t *testing.T, cfg Config, clients ...solana.RPCClient) *Pool {
	t.Helper()
	endpoints := make([]*Endpoint, len(clients))
	for i, c := range clients {
		endpoints[i] = NewEndpoint(fmt.Sprintf("stub-%d", i), c)
	}
	p, err := NewWithEndpoints(cfg, endpoints, WithLogger(logging.Discard()), WithSeed(1))
	require.NoError(t, err)
	return p
}

// balanceServer answers getBalance with value after failing the first
// failures requests with HTTP 500. failures < 0 fails forever.
func balanceServer(t *testing.T, failures int, value uint64) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if failures < 0 || n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":%d}}`, value)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDo_EventuallyGoodEndpointWins(t *testing.T) {
	bad1, _ := balanceServer(t, -1, 0)
	bad2, _ := balanceServer(t, -1, 0)
	good, goodHits := balanceServer(t, 1, 42)

	cfg := testConfig()
	cfg.Endpoints = []string{bad1.URL, bad2.URL, good.URL}
	p, err := New(cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)

	got, err := Balance(context.Background(), p, "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
	assert.Equal(t, int32(2), goodHits.Load(), "good endpoint should succeed on its second attempt")
}

func TestDo_AllFailingNamesEveryEndpoint(t *testing.T) {
	var urls []string
	for i := 0; i < 3; i++ {
		srv, _ := balanceServer(t, -1, 0)
		urls = append(urls, srv.URL)
	}

	cfg := testConfig()
	cfg.Endpoints = urls
	p, err := New(cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)

	_, err = Balance(context.Background(), p, "wallet")
	require.Error(t, err)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, "getBalance", agg.Op)
	assert.False(t, agg.TimedOut)
	assert.ElementsMatch(t, p.Endpoints(), agg.Endpoints())
	for _, name := range agg.Endpoints() {
		assert.Len(t, agg.Errors[name], 3, "endpoint %s", name)
		assert.Contains(t, err.Error(), name)
	}
}

func TestDo_EmptyResultIsRetried(t *testing.T) {
	p := stubPool(t, testConfig(), stub.NewRPCClient())

	var calls atomic.Int32
	got, err := Do(context.Background(), p, "test", func(ctx context.Context, _ solana.RPCClient) (string, error) {
		if calls.Add(1) < 3 {
			return "", nil
		}
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	p := stubPool(t, cfg, stub.NewRPCClient(), stub.NewRPCClient())

	start := time.Now()
	_, err := Do(context.Background(), p, "slow", func(ctx context.Context, _ solana.RPCClient) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.True(t, agg.TimedOut)
	assert.Len(t, agg.Endpoints(), 2)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_RespectsMaxConcurrentEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentEndpoints = 2
	cfg.MaxRetries = 1

	clients := make([]solana.RPCClient, 5)
	for i := range clients {
		clients[i] = stub.NewRPCClient()
	}
	p := stubPool(t, cfg, clients...)

	var mu sync.Mutex
	used := make(map[solana.RPCClient]bool)
	_, err := Do(context.Background(), p, "count", func(ctx context.Context, c solana.RPCClient) (int, error) {
		mu.Lock()
		used[c] = true
		mu.Unlock()
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Len(t, used, 2)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Endpoints(), 2)
}

func TestDo_PermanentErrorStopsRetries(t *testing.T) {
	p := stubPool(t, testConfig(), stub.NewRPCClient())

	errRejected := errors.New("rejected")
	var calls atomic.Int32
	_, err := Do(context.Background(), p, "send", func(ctx context.Context, _ solana.RPCClient) (string, error) {
		calls.Add(1)
		return "", Permanent(errRejected)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRejected))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_LosersAreCancelled(t *testing.T) {
	fast := stub.NewRPCClient()
	slow := stub.NewRPCClient()
	cfg := testConfig()
	cfg.MaxRetries = 1
	p := stubPool(t, cfg, fast, slow)

	cancelled := make(chan struct{})
	got, err := Do(context.Background(), p, "race", func(ctx context.Context, c solana.RPCClient) (string, error) {
		if c == solana.RPCClient(fast) {
			return "fast", nil
		}
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", got)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("losing attempt was not cancelled")
	}
}

func TestDo_ParentCancellation(t *testing.T) {
	p := stubPool(t, testConfig(), stub.NewRPCClient())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, p, "cancelled", func(ctx context.Context, _ solana.RPCClient) (int, error) {
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.False(t, agg.TimedOut)
}

func TestWith_OverridesSettings(t *testing.T) {
	p := stubPool(t, testConfig(), stub.NewRPCClient())

	once := p.With(func(c *Config) { c.MaxRetries = 1 })
	assert.Equal(t, 1, once.Config().MaxRetries)
	assert.Equal(t, 3, p.Config().MaxRetries)
	assert.Equal(t, p.Endpoints(), once.Endpoints())
}

func TestNew_EndpointNames(t *testing.T) {
	p, err := New(Config{Endpoints: []string{
		"https://rpc.example.com/?api-key=secret",
		"https://rpc.example.com/v2/other-secret",
		"http://127.0.0.1:8899",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://rpc.example.com",
		"https://rpc.example.com#1",
		"http://127.0.0.1:8899",
	}, p.Endpoints())
}

func TestNew_NoEndpoints(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxConcurrentEndpoints, cfg.MaxConcurrentEndpoints)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, solana.CommitmentConfirmed, cfg.Commitment)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty(0))
	assert.True(t, isEmpty[*solana.Transaction](nil))
	assert.True(t, isEmpty[[]string](nil))
	assert.False(t, isEmpty("x"))
	assert.False(t, isEmpty(&solana.Transaction{}))
	assert.False(t, isEmpty(lamports{set: true}))
}
