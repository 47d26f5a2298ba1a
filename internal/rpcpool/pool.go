// Package rpcpool races Solana RPC calls across several endpoints and returns
// the first usable answer.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/solana"
)

// Default pool settings.
const (
	DefaultMaxRetries             = 3
	DefaultTimeout                = 30 * time.Second
	DefaultMaxConcurrentEndpoints = 3
	DefaultRetryDelay             = 500 * time.Millisecond
)

var (
	// ErrNoEndpoints is returned when a pool is built without endpoints.
	ErrNoEndpoints = errors.New("rpcpool: no endpoints configured")

	// ErrEmptyResult marks an attempt that succeeded with a zero value.
	ErrEmptyResult = errors.New("rpcpool: empty result")
)

// Config configures a Pool. Zero fields take the package defaults.
type Config struct {
	Endpoints              []string      `yaml:"endpoints"`
	MaxRetries             int           `yaml:"max_retries"`
	Timeout                time.Duration `yaml:"timeout"`
	MaxConcurrentEndpoints int           `yaml:"max_concurrent_endpoints"`
	RetryDelay             time.Duration `yaml:"retry_delay"`

	// RequestsPerSecond limits each endpoint; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Commitment        string  `yaml:"commitment"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxConcurrentEndpoints <= 0 {
		c.MaxConcurrentEndpoints = DefaultMaxConcurrentEndpoints
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Commitment == "" {
		c.Commitment = solana.CommitmentConfirmed
	}
	return c
}

// Endpoint is one RPC provider in the pool.
type Endpoint struct {
	// Name identifies the endpoint in errors and metrics. It never carries
	// the URL path or query, which often hold API keys.
	Name string

	Client  solana.RPCClient
	limiter *rate.Limiter
}

// NewEndpoint wraps a client under the given name.
func NewEndpoint(name string, client solana.RPCClient) *Endpoint {
	return &Endpoint{Name: name, Client: client}
}

// Pool holds the endpoint set and per-call settings. Calls share no state
// beyond the per-endpoint rate limiters.
type Pool struct {
	cfg       Config
	endpoints []*Endpoint
	logger    *logrus.Entry

	mu  *sync.Mutex
	rnd *rand.Rand
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *logrus.Entry) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithSeed makes endpoint selection deterministic.
func WithSeed(seed int64) Option {
	return func(p *Pool) {
		p.rnd = rand.New(rand.NewSource(seed))
	}
}

// New builds a pool of HTTP clients for cfg.Endpoints. Retries are owned by
// the pool, so the clients are created without their own retry loop.
func New(cfg Config, opts ...Option) (*Pool, error) {
	cfg = cfg.withDefaults()
	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	seen := make(map[string]int)
	for _, raw := range cfg.Endpoints {
		name := endpointName(raw)
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
		seen[endpointName(raw)]++

		client := solana.NewHTTPClient(raw,
			solana.WithTimeout(cfg.Timeout),
			solana.WithMaxRetries(0),
			solana.WithCommitment(cfg.Commitment),
		)
		endpoints = append(endpoints, NewEndpoint(name, client))
	}
	return NewWithEndpoints(cfg, endpoints, opts...)
}

// NewWithEndpoints builds a pool over pre-built endpoints.
func NewWithEndpoints(cfg Config, endpoints []*Endpoint, opts ...Option) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	for _, ep := range endpoints {
		if ep.limiter == nil {
			ep.limiter = rate.NewLimiter(limit, cfg.Burst)
		}
	}

	p := &Pool{
		cfg:       cfg,
		endpoints: endpoints,
		mu:        &sync.Mutex{},
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrDefault(p.logger, "rpcpool")
	return p, nil
}

// With returns a pool sharing this pool's endpoints and limiters with the
// settings adjusted by mutate. The endpoint list cannot be changed this way.
func (p *Pool) With(mutate func(*Config)) *Pool {
	cfg := p.cfg
	mutate(&cfg)
	cfg.Endpoints = p.cfg.Endpoints
	cp := *p
	cp.cfg = cfg.withDefaults()
	return &cp
}

// Config returns the effective settings.
func (p *Pool) Config() Config {
	return p.cfg
}

// Endpoints returns the endpoint names in configuration order.
func (p *Pool) Endpoints() []string {
	names := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		names[i] = ep.Name
	}
	return names
}

// pick returns a random subset of at most MaxConcurrentEndpoints endpoints.
func (p *Pool) pick() []*Endpoint {
	selected := make([]*Endpoint, len(p.endpoints))
	copy(selected, p.endpoints)

	p.mu.Lock()
	p.rnd.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	p.mu.Unlock()

	if len(selected) > p.cfg.MaxConcurrentEndpoints {
		selected = selected[:p.cfg.MaxConcurrentEndpoints]
	}
	return selected
}

type outcome[T any] struct {
	endpoint string
	value    T
	errs     []error
	ok       bool
}

// Do runs call against a random subset of endpoints concurrently. Each
// endpoint is retried with linear backoff on error or on a zero-value result.
// The first non-empty success is returned and the remaining attempts are
// cancelled. If every endpoint fails, or the pool timeout elapses first, the
// error is an *AggregateError naming each attempted endpoint.
func Do[T any](ctx context.Context, p *Pool, op string, call func(context.Context, solana.RPCClient) (T, error)) (T, error) {
	var zero T
	selected := p.pick()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	// Buffered so abandoned attempts never block after the winner returns.
	results := make(chan outcome[T], len(selected))
	for _, ep := range selected {
		go func(ep *Endpoint) {
			results <- attempt(ctx, p, ep, op, call)
		}(ep)
	}

	agg := &AggregateError{Op: op, Errors: make(map[string][]error, len(selected))}
	pending := make(map[string]bool, len(selected))
	for _, ep := range selected {
		pending[ep.Name] = true
	}

	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.endpoint)
			if r.ok {
				return r.value, nil
			}
			agg.Errors[r.endpoint] = r.errs
		case <-ctx.Done():
			for name := range pending {
				agg.Errors[name] = append(agg.Errors[name], ctx.Err())
			}
			pending = nil
		}
	}

	agg.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	observability.RecordRPCPoolFailure(op, agg.TimedOut)
	p.logger.WithFields(logrus.Fields{
		"op":        op,
		"endpoints": len(selected),
		"timed_out": agg.TimedOut,
	}).Warn("all endpoints failed")
	return zero, agg
}

func attempt[T any](ctx context.Context, p *Pool, ep *Endpoint, op string, call func(context.Context, solana.RPCClient) (T, error)) outcome[T] {
	out := outcome[T]{endpoint: ep.Name}

	for n := 1; n <= p.cfg.MaxRetries; n++ {
		if err := ep.limiter.Wait(ctx); err != nil {
			out.errs = append(out.errs, fmt.Errorf("attempt %d: rate limiter: %w", n, err))
			return out
		}

		start := time.Now()
		v, err := call(ctx, ep.Client)
		empty := err == nil && isEmpty(v)
		observability.RecordRPCAttempt(ep.Name, op, time.Since(start).Seconds(), err != nil || empty)

		if err == nil && !empty {
			out.value = v
			out.ok = true
			return out
		}
		if empty {
			err = ErrEmptyResult
		}
		out.errs = append(out.errs, fmt.Errorf("attempt %d: %w", n, err))

		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil || n == p.cfg.MaxRetries {
			return out
		}

		p.logger.WithFields(logrus.Fields{
			"op":       op,
			"endpoint": ep.Name,
			"attempt":  n,
		}).WithError(err).Debug("retrying")

		select {
		case <-ctx.Done():
			return out
		case <-time.After(p.cfg.RetryDelay * time.Duration(n)):
		}
	}
	return out
}

// isEmpty reports whether v is its type's zero value: a nil pointer, slice,
// map or interface, an empty string, or a numeric zero.
func isEmpty[T any](v T) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}

// endpointName reduces an endpoint URL to scheme and host.
func endpointName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
