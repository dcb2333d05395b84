package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/provenance/cache"
	"github.com/pkg/errors"
)

// ErrTransactionNotFound is returned when a chain does not know a requested transaction.
var ErrTransactionNotFound = errors.New("transaction not found")

// ChainReader fetches deployed bytecode and creation transactions from a chain. Creation transactions are immutable
// once mined, so they are stored in a cache and served from it on later requests.
type ChainReader struct {
	pool  *EndpointPool
	cache cache.Cache
}

// NewChainReader creates a ChainReader over an endpoint pool. If c is nil, an in-memory cache is used.
func NewChainReader(pool *EndpointPool, c cache.Cache) *ChainReader {
	if c == nil {
		c = cache.NewNonPersistentCache()
	}
	return &ChainReader{pool: pool, cache: c}
}

// ChainID returns the identifier of the chain the reader fetches from.
func (r *ChainReader) ChainID() uint64 {
	return r.pool.ChainID()
}

// GetBytecode returns the runtime bytecode deployed at the address at the latest block. An empty result means no
// contract is deployed there. ErrNoRPCResponded is returned if the chain could not be reached.
func (r *ChainReader) GetBytecode(ctx context.Context, address common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := r.pool.ExecuteRequestBlocking(ctx, &code, "eth_getCode", address, "latest"); err != nil {
		return nil, err
	}
	return code, nil
}

// GetCreationTransaction returns the transaction with the provided hash.
func (r *ChainReader) GetCreationTransaction(ctx context.Context, hash common.Hash) (*CreationTransaction, error) {
	key := []byte(strconv.FormatUint(r.pool.ChainID(), 10) + ":" + hash.Hex())

	var tx CreationTransaction
	err := cache.GetJSON(r.cache, cache.BUCKET_CREATION_TRANSACTIONS, key, &tx)
	if err == nil {
		return &tx, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, err
	}

	var raw json.RawMessage
	if err = r.pool.ExecuteRequestBlocking(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.Wrapf(ErrTransactionNotFound, "%s on chain %d", hash.Hex(), r.pool.ChainID())
	}
	if err = json.Unmarshal(raw, &tx); err != nil {
		return nil, errors.Wrap(err, "could not decode transaction")
	}

	if err = cache.PutJSON(r.cache, cache.BUCKET_CREATION_TRANSACTIONS, key, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Close releases the reader's endpoint connections.
func (r *ChainReader) Close() {
	r.pool.Close()
}
