package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// HTTPClient talks to a token service over JSON/HTTP. The service fronts the
// actual token contract; this adapter only shapes requests and maps failures
// onto the sentinel vocabulary so callers can branch on category.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient constructs a token client against baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (c *HTTPClient) Transfer(ctx context.Context, from, to id.Address, amount int64) error {
	payload, err := json.Marshal(transferRequest{
		From:   from.String(),
		To:     to.String(),
		Amount: amount,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfer", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token transfer: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict, http.StatusPaymentRequired:
		return sentinel.ErrInsufficient
	default:
		return fmt.Errorf("token transfer status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}

func (c *HTTPClient) Decimals(ctx context.Context) (uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/decimals", nil)
	if err != nil {
		return 0, fmt.Errorf("build decimals request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("token decimals: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("token decimals status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	var body struct {
		Decimals uint32 `json:"decimals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	return body.Decimals, nil
}
