package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTxCacheSize bounds the number of memoized transaction lookups.
const DefaultTxCacheSize = 4096

// Provenance identifies the transaction that created a package.
type Provenance struct {
	Digest     string
	Sender     *string
	Checkpoint uint64
}

// ProvenanceResolver looks up the creation transaction of a package whose
// inline history is unavailable.
type ProvenanceResolver interface {
	Resolve(ctx context.Context, address string) (*Provenance, error)
}

// RPCConfig configures an RPCResolver.
type RPCConfig struct {
	Endpoint   string
	UserAgent  string
	HTTPClient *http.Client
	// CacheSize bounds the transaction cache (default 4096).
	CacheSize int
}

// RPCResolver resolves provenance over Sui JSON-RPC: sui_getObject for the
// creating transaction digest, then sui_getTransactionBlock for its sender
// and checkpoint. Transaction lookups are memoized by digest.
type RPCResolver struct {
	config RPCConfig
	client *http.Client
	txs    *lru.Cache[string, txInfo]
}

type txInfo struct {
	sender     string
	checkpoint uint64
}

// NewRPCResolver creates a resolver from cfg.
func NewRPCResolver(cfg RPCConfig) (*RPCResolver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("rpc resolver requires an endpoint")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultTxCacheSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	cache, err := lru.New[string, txInfo](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create transaction cache: %w", err)
	}
	return &RPCResolver{config: cfg, client: client, txs: cache}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse[T any] struct {
	Result *T        `json:"result"`
	Error  *rpcError `json:"error"`
}

func call[T any](ctx context.Context, r *RPCResolver, method string, params ...any) (*T, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	var resp rpcResponse[T]
	if err := postJSON(ctx, r.client, r.config.Endpoint, r.config.UserAgent, method, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return resp.Result, nil
}

type objectResult struct {
	Data *struct {
		PreviousTransaction string `json:"previousTransaction"`
	} `json:"data"`
}

type transactionResult struct {
	Transaction *struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
	Checkpoint string `json:"checkpoint"`
}

// Resolve implements ProvenanceResolver.
func (r *RPCResolver) Resolve(ctx context.Context, address string) (*Provenance, error) {
	digest, err := r.creationDigest(ctx, address)
	if err != nil {
		return nil, err
	}
	tx, err := r.transaction(ctx, digest)
	if err != nil {
		return nil, err
	}
	sender := tx.sender
	return &Provenance{Digest: digest, Sender: &sender, Checkpoint: tx.checkpoint}, nil
}

func (r *RPCResolver) creationDigest(ctx context.Context, address string) (string, error) {
	opts := map[string]bool{
		"showBcs":                 false,
		"showContent":             false,
		"showDisplay":             false,
		"showOwner":               true,
		"showPreviousTransaction": true,
		"showType":                true,
	}
	res, err := call[objectResult](ctx, r, "sui_getObject", address, opts)
	if err != nil {
		return "", err
	}
	if res.Data == nil || res.Data.PreviousTransaction == "" {
		return "", fmt.Errorf("sui_getObject %s: no previous transaction", address)
	}
	return res.Data.PreviousTransaction, nil
}

func (r *RPCResolver) transaction(ctx context.Context, digest string) (txInfo, error) {
	if tx, ok := r.txs.Get(digest); ok {
		return tx, nil
	}

	res, err := call[transactionResult](ctx, r, "sui_getTransactionBlock", digest, map[string]bool{"showInput": true})
	if err != nil {
		return txInfo{}, err
	}
	if res.Transaction == nil || res.Transaction.Data.Sender == "" {
		return txInfo{}, fmt.Errorf("sui_getTransactionBlock %s: no sender", digest)
	}
	checkpoint, err := strconv.ParseUint(res.Checkpoint, 10, 64)
	if err != nil {
		return txInfo{}, fmt.Errorf("sui_getTransactionBlock %s: checkpoint %q: %w", digest, res.Checkpoint, err)
	}

	tx := txInfo{sender: res.Transaction.Data.Sender, checkpoint: checkpoint}
	r.txs.Add(digest, tx)
	return tx, nil
}

var _ ProvenanceResolver = (*RPCResolver)(nil)
