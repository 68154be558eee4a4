package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kauan1020/payments-microservice/models"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderGatewayUnavailable = errors.New("order service unavailable")
)

// OrderGateway looks up orders owned by the order service.
type OrderGateway interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
}

// HTTPOrderGateway communicates with the order service via HTTP
type HTTPOrderGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOrderGateway creates a gateway whose requests are bounded by timeout.
func NewHTTPOrderGateway(baseURL string, timeout time.Duration) *HTTPOrderGateway {
	return &HTTPOrderGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetOrder fetches GET {base}/orders/{id}. A 404 maps to ErrOrderNotFound; any
// other failure, including timeouts, maps to ErrOrderGatewayUnavailable.
func (g *HTTPOrderGateway) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	url := fmt.Sprintf("%s/orders/%d", g.baseURL, orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderGatewayUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, orderID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: order service returned %d", ErrOrderGatewayUnavailable, resp.StatusCode)
	}

	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%w: decode order %d: %v", ErrOrderGatewayUnavailable, orderID, err)
	}
	return &order, nil
}
