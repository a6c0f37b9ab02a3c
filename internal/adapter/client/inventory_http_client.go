package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// InventoryHTTPClient calls PUT /api/products/:id/stock on the inventory service.
type InventoryHTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewInventoryHTTPClient(baseURL string, timeout time.Duration) *InventoryHTTPClient {
	return &InventoryHTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *InventoryHTTPClient) UpdateStock(ctx context.Context, productID string, delta int, reason, requestID string) error {
	q := url.Values{}
	q.Set("delta", strconv.Itoa(delta))
	q.Set("reason", reason)
	if requestID != "" {
		q.Set("requestId", requestID)
	}
	endpoint := fmt.Sprintf("%s/api/products/%s/stock?%s", c.baseURL, url.PathEscape(productID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := string(body)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, message)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, message)
	case http.StatusServiceUnavailable:
		if apiErr.Error == "concurrency_exhausted" {
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyExhausted, message)
		}
	}
	return fmt.Errorf("%w: inventory service returned status %d: %s", domain.ErrInventoryUnavailable, resp.StatusCode, message)
}
