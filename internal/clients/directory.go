// Package clients holds HTTP clients for the external collaborators the
// engine reads from.
package clients

import (
	"context"
	"time"

	"github.com/partsgrid/parts-exchange/internal/httpclient"
	"github.com/partsgrid/parts-exchange/internal/model"
)

// DirectoryClient reads advisor records from the advisor directory. The
// directory owns activity, performance and audit metrics; the engine only
// ever reads them.
type DirectoryClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewDirectoryClient(baseURL, apiKey string) *DirectoryClient {
	opts := []httpclient.Option{}
	if apiKey != "" {
		opts = append(opts, httpclient.WithAPIKey("X-API-Key", apiKey))
	}
	return &DirectoryClient{
		baseURL: baseURL,
		client:  httpclient.NewClient("advisor-directory", 10*time.Second, opts...),
	}
}

// ListAdvisors returns the enabled advisor pool.
func (c *DirectoryClient) ListAdvisors(ctx context.Context) ([]model.Advisor, error) {
	var result struct {
		Advisors []model.Advisor `json:"advisors"`
		Count    int             `json:"count"`
	}

	err := httpclient.NewRequest("GET", c.baseURL).
		Path("/internal/advisors").
		Query("enabled", "true").
		Context(ctx).
		ExecuteJSON(c.client, &result)
	if err != nil {
		return nil, err
	}
	return result.Advisors, nil
}
