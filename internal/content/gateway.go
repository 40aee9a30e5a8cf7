package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tduarte/mailmind/internal/config"
)

// Gateway sends URL batches to the extraction gateway's per-extractor
// endpoints.
type Gateway struct {
	cfg  config.Gateway
	http *http.Client
}

// NewGateway creates a gateway client.
func NewGateway(cfg config.Gateway) *Gateway {
	return &Gateway{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
	}
}

// Dispatch posts a URL batch to one extractor and returns the batch ID
// assigned to the submission.
func (g *Gateway) Dispatch(ctx context.Context, extractor string, urls []string) (string, error) {
	batchID := uuid.NewString()

	payload, err := json.Marshal(map[string]any{
		"urls":     urls,
		"batch_id": batchID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/extract/%s", g.cfg.URL, extractor), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gateway returned %d for %s: %s", resp.StatusCode, extractor, body)
	}
	return batchID, nil
}
