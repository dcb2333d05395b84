package rpc

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/rpc"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/metrics"
	"github.com/pkg/errors"
)

// ErrNoRPCResponded is returned when every configured endpoint failed to answer a request.
var ErrNoRPCResponded = errors.New("None of the RPCs responded")

// endpoint is a single JSON-RPC endpoint with a lazily dialed client.
type endpoint struct {
	url    string
	client *rpc.Client
	lock   sync.Mutex
}

// EndpointPool sends JSON-RPC requests for a single chain. Endpoints are tried in their configured order until one
// answers, with each attempt bounded by a timeout. Concurrent identical requests share one in-flight request.
type EndpointPool struct {
	chainId   uint64
	endpoints []*endpoint
	timeout   time.Duration

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewEndpointPool creates an EndpointPool for the provided chain over the endpoint URLs, in priority order.
func NewEndpointPool(chainId uint64, urls []string, timeout time.Duration, m *metrics.Metrics) (*EndpointPool, error) {
	if len(urls) == 0 {
		return nil, errors.Errorf("chain %d has no rpc endpoints", chainId)
	}
	if timeout <= 0 {
		return nil, errors.New("rpc timeout must be positive")
	}

	pool := &EndpointPool{
		chainId:          chainId,
		endpoints:        make([]*endpoint, len(urls)),
		timeout:          timeout,
		inflightRequests: make(map[requestKey]*inflightRequest),
		metrics:          m,
		logger:           logging.GlobalLogger.NewSubLogger("module", logging.CHAIN_SERVICE).NewSubLogger("chain", strconv.FormatUint(chainId, 10)),
	}
	for i, url := range urls {
		pool.endpoints[i] = &endpoint{url: url}
	}
	return pool, nil
}

// ChainID returns the identifier of the chain the pool sends requests to.
func (p *EndpointPool) ChainID() uint64 {
	return p.chainId
}

// ExecuteRequestBlocking sends a request and decodes its result into the provided pointer.
func (p *EndpointPool) ExecuteRequestBlocking(ctx context.Context, result any, method string, args ...any) error {
	pending, err := p.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	}
	return pending.GetResultBlocking(ctx, result)
}

// ExecuteRequestAsync sends a request, or joins an identical request already in flight.
func (p *EndpointPool) ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	p.inflightLock.Lock()
	defer p.inflightLock.Unlock()
	if inflight, exists := p.inflightRequests[key]; exists {
		return newPendingResult(inflight), nil
	}

	inflight := &inflightRequest{Done: make(chan struct{})}
	p.inflightRequests[key] = inflight

	// The request is shared, so one caller giving up must not cancel it for the others. Each attempt is still bounded
	// by the pool's timeout.
	go p.launchRequest(context.WithoutCancel(ctx), key, inflight, method, args...)
	return newPendingResult(inflight), nil
}

// launchRequest attempts the request against every endpoint in order, stopping at the first response.
func (p *EndpointPool) launchRequest(ctx context.Context, key requestKey, request *inflightRequest, method string, args ...any) {
	defer func() {
		p.inflightLock.Lock()
		delete(p.inflightRequests, key)
		p.inflightLock.Unlock()
		close(request.Done)
	}()

	chainLabel := strconv.FormatUint(p.chainId, 10)
	for _, e := range p.endpoints {
		result, err := p.call(ctx, e, method, args...)
		if err == nil {
			p.metrics.RecordRPCRequest(chainLabel, method, "success")
			request.Result = result
			return
		}
		p.metrics.RecordRPCRequest(chainLabel, method, "failed")
		p.logger.Warn("Request ", method, " to ", e.url, " failed", err)
	}
	request.Error = ErrNoRPCResponded
}

// call performs a single request against an endpoint, dialing it first if needed.
func (p *EndpointPool) call(ctx context.Context, e *endpoint, method string, args ...any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	if err = client.CallContext(ctx, &result, method, args...); err != nil {
		return nil, errors.WithStack(err)
	}
	return result, nil
}

// dial returns the endpoint's client, creating it on first use.
func (e *endpoint) dial(ctx context.Context) (*rpc.Client, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.client != nil {
		return e.client, nil
	}

	client, err := rpc.DialContext(ctx, e.url)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial %s", e.url)
	}
	e.client = client
	return client, nil
}

// Close closes every dialed client.
func (p *EndpointPool) Close() {
	for _, e := range p.endpoints {
		e.lock.Lock()
		if e.client != nil {
			e.client.Close()
			e.client = nil
		}
		e.lock.Unlock()
	}
}
