// Package fetch retrieves Move packages and their creation provenance from
// the Sui GraphQL endpoint, with a JSON-RPC fallback for nodes whose
// transaction history has been pruned.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/suipack/iox"
	"github.com/pithecene-io/suipack/metrics"
	"github.com/pithecene-io/suipack/types"
)

// Mainnet endpoints.
const (
	DefaultGraphQLEndpoint = "https://graphql.mainnet.sui.io/graphql"
	DefaultRPCEndpoint     = "https://fullnode.mainnet.sui.io/"
)

// DefaultPageSize is the number of packages requested per page.
const DefaultPageSize = 50

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies suipack to the endpoints.
var DefaultUserAgent = "suipack/" + types.Version

// Config configures a Client. Zero values fall back to the defaults.
type Config struct {
	GraphQLEndpoint string
	RPCEndpoint     string
	PageSize        int
	Timeout         time.Duration
	UserAgent       string

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// Resolver overrides the JSON-RPC provenance fallback.
	Resolver ProvenanceResolver
	// Metrics receives page and fallback counts. May be nil.
	Metrics *metrics.Collector
}

// Client fetches packages. It keeps no cursor state between calls.
type Client struct {
	config   Config
	http     *http.Client
	resolver ProvenanceResolver
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.GraphQLEndpoint == "" {
		cfg.GraphQLEndpoint = DefaultGraphQLEndpoint
	}
	if cfg.RPCEndpoint == "" {
		cfg.RPCEndpoint = DefaultRPCEndpoint
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page size must be > 0, got %d", cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		r, err := NewRPCResolver(RPCConfig{
			Endpoint:   cfg.RPCEndpoint,
			UserAgent:  cfg.UserAgent,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	return &Client{config: cfg, http: httpClient, resolver: resolver}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

// postJSON sends body as a JSON POST and decodes the response into out.
// Network failures and non-2xx statuses are Transport errors; an
// undecodable body is a ResponseParse error.
func postJSON(ctx context.Context, client *http.Client, endpoint, userAgent, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewError(types.ErrTransport, op, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return types.NewError(types.ErrTransport, op, endpoint, err)
	}
	defer iox.DiscardClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewError(types.ErrTransport, op, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewError(types.ErrTransport, op, endpoint, &StatusError{Code: resp.StatusCode, Status: resp.Status})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewError(types.ErrResponseParse, op, endpoint, err)
	}
	return nil
}
