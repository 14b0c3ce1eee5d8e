package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/resilience"
)

const maxBodyBytes = 1 << 20

// Config configures the order service client.
type Config struct {
	BaseURL         string
	CreatePath      string
	GetPath         string
	CheckoutTimeout time.Duration
	ReadTimeout     time.Duration
	ReadPolicy      resilience.RetryPolicy
	Breaker         *resilience.Breaker
	Transport       http.RoundTripper
}

// Client talks to the external order service. Writes get exactly one
// attempt; reads retry transient failures.
type Client struct {
	baseURL    string
	createPath string
	getPath    string
	write      resilience.HTTPClient
	read       resilience.HTTPClient
}

// New constructs a Client with an OpenTelemetry-instrumented transport.
func New(cfg Config) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(transport)}
	checkoutTimeout := cfg.CheckoutTimeout
	if checkoutTimeout <= 0 {
		checkoutTimeout = 15 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		createPath: valueOr(cfg.CreatePath, "/api/pedidos/crear"),
		getPath:    valueOr(cfg.GetPath, "/api/pedidos/{id}"),
		write: resilience.HTTPClient{
			Client:  httpClient,
			Policy:  resilience.NoRetry(),
			Timeout: checkoutTimeout,
			Target:  "order_service_write",
		},
		read: resilience.HTTPClient{
			Client:  httpClient,
			Breaker: cfg.Breaker,
			Policy:  cfg.ReadPolicy,
			Timeout: readTimeout,
			Target:  "order_service_read",
		},
	}
}

// ReadClient exposes the retrying read client for sibling read paths that
// share the order service host.
func (c *Client) ReadClient() resilience.HTTPClient { return c.read }

// BaseURL returns the order service base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// CreateOrder submits the checkout in a single attempt. The call ignores ctx
// cancellation and is bounded only by the checkout timeout.
func (c *Client) CreateOrder(ctx context.Context, req checkout.CheckoutRequest) (checkout.NormalizedOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return checkout.NormalizedOrder{}, fmt.Errorf("encode checkout request: %w", err)
	}
	ctx = context.WithoutCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.createPath, bytes.NewReader(body))
	if err != nil {
		return checkout.NormalizedOrder{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ref := req.Snapshot.ClientReference; ref != "" {
		httpReq.Header.Set(common.IdempotencyHeader, ref)
	}

	resp, err := c.write.Do(ctx, httpReq)
	if err != nil {
		return checkout.NormalizedOrder{}, NetworkError(err)
	}
	return decodeOrder(resp)
}

// GetOrder reads an order by id through the retrying read path.
func (c *Client) GetOrder(ctx context.Context, id string) (checkout.NormalizedOrder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return checkout.NormalizedOrder{}, common.KindError(common.KindInvalidInput, "order id is required", nil)
	}
	path := strings.ReplaceAll(c.getPath, "{id}", url.PathEscape(id))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return checkout.NormalizedOrder{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.read.Do(ctx, httpReq)
	if err != nil {
		return checkout.NormalizedOrder{}, NetworkError(err)
	}
	return decodeOrder(resp)
}

// Ping reports whether the order service answers at all. Any status below
// 500 counts as reachable.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.read.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("order service status %d", resp.StatusCode)
	}
	return nil
}

func decodeOrder(resp *http.Response) (checkout.NormalizedOrder, error) {
	body, err := ReadBody(resp)
	if err != nil {
		return checkout.NormalizedOrder{}, NetworkError(err)
	}
	if err := Rejection(resp.StatusCode, body); err != nil {
		return checkout.NormalizedOrder{}, err
	}
	return checkout.FromCheckoutResponse(body)
}

// ReadBody reads and closes a bounded response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// NetworkError classifies a transport failure. A timeout, a refused
// connection and an open breaker all surface as NetworkError.
func NetworkError(err error) error {
	message := "order service unreachable"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "order service timed out"
	case errors.Is(err, resilience.ErrOpenCircuit):
		message = "order service temporarily unavailable"
	}
	return common.KindError(common.KindNetwork, message, err)
}

// Rejection maps a non-2xx response to ServerRejected, surfacing the
// service's {error} or {message} text verbatim when present.
func Rejection(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	message := upstreamMessage(body)
	if message == "" {
		message = fmt.Sprintf("order service rejected the request (status %d)", status)
	}
	appErr := common.KindError(common.KindServerRejected, message, fmt.Errorf("upstream status %d", status))
	if status == http.StatusNotFound {
		appErr.Code = "NOT_FOUND"
		appErr.HTTPStatus = http.StatusNotFound
	}
	appErr.Details = map[string]any{"upstreamStatus": status}
	return appErr
}

func upstreamMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if len(payload.Error) > 0 {
		if err := json.Unmarshal(payload.Error, &text); err != nil {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil {
				text = nested.Message
			}
		}
	}
	if text = strings.TrimSpace(text); text != "" {
		return text
	}
	return strings.TrimSpace(payload.Message)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
