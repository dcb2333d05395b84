package rpc

import (
	"context"
	"encoding/json"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
)

// CreationTransaction describes the fields of a contract creation transaction used during verification.
type CreationTransaction struct {
	// Hash is the transaction hash.
	Hash common.Hash `json:"hash"`

	// From is the sender of the transaction.
	From common.Address `json:"from"`

	// Nonce is the sender's nonce at the time the transaction was sent.
	Nonce hexutil.Uint64 `json:"nonce"`

	// To is the recipient of the transaction. It is nil for direct contract creations.
	To *common.Address `json:"to"`

	// Input is the transaction calldata, which holds init code for direct contract creations.
	Input hexutil.Bytes `json:"input"`
}

// PendingResult is returned by an asynchronous request. Every caller sharing an in-flight request receives its own
// PendingResult over the same underlying request.
type PendingResult struct {
	request *inflightRequest
}

func newPendingResult(request *inflightRequest) *PendingResult {
	return &PendingResult{
		request: request,
	}
}

// GetResultBlocking blocks until the request completes or the provided context is done. Callers must pass a pointer to
// their data through result.
func (p *PendingResult) GetResultBlocking(ctx context.Context, result any) error {
	select {
	case <-p.request.Done:
		if p.request.Error != nil {
			return p.request.Error
		}
		return json.Unmarshal(p.request.Result, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestKey uniquely identifies a JSON-RPC request for deduplication purposes.
type requestKey struct {
	Method string
	Args   string
}

func makeRequestKey(method string, args ...any) (requestKey, error) {
	serialized, err := json.Marshal(args)
	if err != nil {
		return requestKey{}, err
	}
	return requestKey{Method: method, Args: string(serialized)}, nil
}

// inflightRequest represents a JSON-RPC request currently being attempted against the endpoint list.
type inflightRequest struct {
	// Done is closed once the request completes, possibly with an error.
	Done chan struct{}

	// Result is the raw JSON result of the request. It is only valid once Done is closed and Error is nil.
	Result json.RawMessage

	// Error is the error the request failed with, if any.
	Error error
}
