package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/pithecene-io/suipack/types"
)

const nodeFields = `
      address
      packageBcs
      previousTransaction {
        digest
        sender {
          address
        }
        effects {
          checkpoint {
            sequenceNumber
            epoch {
              epochId
            }
          }
        }
      }`

const packagesQuery = `
query($first: Int, $cursor: String, $afterCheckpoint: UInt53) {
  packages(first: $first, after: $cursor, filter: {
    afterCheckpoint: $afterCheckpoint
  }) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {` + nodeFields + `
    }
  }
}`

const packageQuery = `
query($address: SuiAddress!) {
  package(address: $address) {
    version` + nodeFields + `
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// joinErrors renders a server error list the way it is reported to users.
func joinErrors(errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return errors.New(strings.Join(msgs, ", "))
}

// pageResponse is one bulk query response, also the format of a captured
// page file.
type pageResponse struct {
	Data *struct {
		Packages *packagesPage `json:"packages"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type packagesPage struct {
	PageInfo struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
	Nodes []packageNode `json:"nodes"`
}

type singleResponse struct {
	Data *struct {
		Package *packageNode `json:"package"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type packageNode struct {
	Address             string               `json:"address"`
	PackageBCS          string               `json:"packageBcs"`
	PreviousTransaction *previousTransaction `json:"previousTransaction"`
}

type previousTransaction struct {
	Digest string `json:"digest"`
	Sender *struct {
		Address string `json:"address"`
	} `json:"sender"`
	Effects *struct {
		Checkpoint *struct {
			SequenceNumber uint64 `json:"sequenceNumber"`
			Epoch          *struct {
				EpochID uint64 `json:"epochId"`
			} `json:"epoch"`
		} `json:"checkpoint"`
	} `json:"effects"`
}

// inline returns the provenance carried by the node itself, or nil when the
// history was pruned.
func (n *packageNode) inline() *Provenance {
	tx := n.PreviousTransaction
	if tx == nil || tx.Effects == nil || tx.Effects.Checkpoint == nil {
		return nil
	}
	p := &Provenance{Digest: tx.Digest, Checkpoint: tx.Effects.Checkpoint.SequenceNumber}
	if tx.Sender != nil {
		sender := tx.Sender.Address
		p.Sender = &sender
	}
	return p
}

// resolve turns a node into a package record, falling back to the
// provenance resolver when the node has no inline transaction.
func (c *Client) resolve(ctx context.Context, n *packageNode) (*types.PackageWithMetadata, error) {
	prov := n.inline()
	if prov == nil {
		c.config.Metrics.IncProvenanceFallback()
		var err error
		prov, err = c.resolver.Resolve(ctx, n.Address)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, types.NewError(types.ErrProvenanceUnavailable, "resolve provenance", n.Address, err)
		}
	}

	payload, err := base64.StdEncoding.DecodeString(n.PackageBCS)
	if err != nil {
		return nil, types.NewError(types.ErrDecode, "decode package base64", n.Address, err)
	}
	return types.NewPackageWithMetadata(n.Address, payload, prov.Checkpoint, prov.Digest, prov.Sender)
}

// FetchAllFunc pages through every package created after afterCheckpoint
// and hands each resolved record to fn in server order. Pagination stops
// when a page reports no next page. Any error, including one returned by
// fn, aborts the whole fetch.
func (c *Client) FetchAllFunc(ctx context.Context, afterCheckpoint uint64, fn func(*types.PackageWithMetadata) error) error {
	var cursor *string
	for {
		req := graphQLRequest{
			Query: packagesQuery,
			Variables: map[string]any{
				"first":           c.config.PageSize,
				"cursor":          cursor,
				"afterCheckpoint": afterCheckpoint,
			},
		}
		var resp pageResponse
		if err := postJSON(ctx, c.http, c.config.GraphQLEndpoint, c.config.UserAgent, "fetch page", req, &resp); err != nil {
			return err
		}
		c.config.Metrics.IncPageFetched()

		page, err := pageOf(&resp, c.config.GraphQLEndpoint)
		if err != nil {
			return err
		}
		for i := range page.Nodes {
			p, err := c.resolve(ctx, &page.Nodes[i])
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
		}

		if !page.PageInfo.HasNextPage {
			return nil
		}
		if page.PageInfo.EndCursor == nil {
			return types.NewError(types.ErrResponseParse, "fetch page", c.config.GraphQLEndpoint,
				errors.New("hasNextPage is true but endCursor is null"))
		}
		cursor = page.PageInfo.EndCursor
	}
}

// FetchAll returns every package created after afterCheckpoint, in the
// order the pages delivered them.
func (c *Client) FetchAll(ctx context.Context, afterCheckpoint uint64) ([]*types.PackageWithMetadata, error) {
	var out []*types.PackageWithMetadata
	err := c.FetchAllFunc(ctx, afterCheckpoint, func(p *types.PackageWithMetadata) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func pageOf(resp *pageResponse, subject string) (*packagesPage, error) {
	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return nil, types.NewError(types.ErrServerReported, "fetch page", subject, joinErrors(resp.Errors))
		}
		return nil, types.NewError(types.ErrResponseParse, "fetch page", subject, errors.New("response has neither data nor errors"))
	}
	if resp.Data.Packages == nil {
		return nil, types.NewError(types.ErrResponseParse, "fetch page", subject, errors.New("response has no packages field"))
	}
	return resp.Data.Packages, nil
}

// FetchPackage fetches one package by address. Any server error fails the
// call, even when data accompanies it.
func (c *Client) FetchPackage(ctx context.Context, address string) (*types.PackageWithMetadata, error) {
	req := graphQLRequest{
		Query:     packageQuery,
		Variables: map[string]any{"address": address},
	}
	var resp singleResponse
	if err := postJSON(ctx, c.http, c.config.GraphQLEndpoint, c.config.UserAgent, "fetch package", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, types.NewError(types.ErrServerReported, "fetch package", address, joinErrors(resp.Errors))
	}
	if resp.Data == nil {
		return nil, types.NewError(types.ErrServerReported, "fetch package", address, errors.New("no data returned"))
	}
	if resp.Data.Package == nil {
		return nil, types.NewError(types.ErrResponseParse, "fetch package", address, errors.New("package not found"))
	}
	return c.resolve(ctx, resp.Data.Package)
}

// ReplayFile reads a captured bulk-query response from disk and resolves
// its nodes. Nodes without inline provenance still use the resolver.
func (c *Client) ReplayFile(ctx context.Context, path string) ([]*types.PackageWithMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrFilesystem, "read page file", path, err)
	}
	var resp pageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, types.NewError(types.ErrResponseParse, "parse page file", path, err)
	}
	page, err := pageOf(&resp, path)
	if err != nil {
		return nil, err
	}

	out := make([]*types.PackageWithMetadata, 0, len(page.Nodes))
	for i := range page.Nodes {
		p, err := c.resolve(ctx, &page.Nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
