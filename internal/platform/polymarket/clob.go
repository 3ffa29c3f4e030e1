package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hunterlabs/polyhunter/internal/crypto"
	"github.com/hunterlabs/polyhunter/internal/domain"
)

// zeroAddress is the open taker for public orders.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient is the REST client for the Polymarket CLOB API. It signs order
// bodies with EIP-712 and authenticates requests with L2 HMAC headers.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth

	// funder is the address holding the collateral (the proxy/Safe wallet
	// when signature type is 1 or 2, the EOA otherwise).
	funder  string
	sigType int
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// funder may be empty, in which case the signer's address is used.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, funder string, sigType int) *ClobClient {
	if funder == "" {
		funder = signer.Address().Hex()
	}
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: perAttemptTimeout},
		signer:     signer,
		hmacAuth:   hmac,
		funder:     funder,
		sigType:    sigType,
	}
}

// PlaceOrder signs and submits an order built from the intent, returning the
// exchange order ID. Transient failures are retried with backoff.
func (c *ClobClient) PlaceOrder(ctx context.Context, req domain.OrderRequest, negRisk bool) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	maker, taker := orderAmounts(req.Side, req.Price, req.Size)

	sideNum := 0
	if req.Side == domain.SideSell {
		sideNum = 1
	}

	expiration := "0"
	if req.OrderType == domain.OrderTypeGTD && !req.Expiration.IsZero() {
		expiration = strconv.FormatInt(req.Expiration.Unix(), 10)
	}

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(rand.Int64N(1<<62), 10),
		Maker:         c.funder,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       req.AssetID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    expiration,
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideNum,
		SignatureType: c.sigType,
	}

	signature, err := c.signer.SignOrder(payload, negRisk)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeGTC
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          string(req.Side),
			"signatureType": payload.SignatureType,
			"signature":     signature,
		},
		"owner":     c.hmacAuth.Key,
		"orderType": string(orderType),
	}

	var result apiOrderResult
	err = withRetry(ctx, "place order", func(ctx context.Context) error {
		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
		if err != nil {
			return err
		}
		result = apiOrderResult{}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("decode order result: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if !result.Success {
		return "", fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	return result.OrderID, nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}

	return withRetry(ctx, "cancel order", func(ctx context.Context) error {
		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
		if err != nil {
			return err
		}

		var result struct {
			Canceled []string          `json:"canceled"`
			NotCanceled map[string]string `json:"not_canceled"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("decode cancel response: %w", err)
		}
		if reason, ok := result.NotCanceled[orderID]; ok {
			return fmt.Errorf("polymarket/clob: cancel %s refused: %s", orderID, reason)
		}
		return nil
	})
}

// ListOpenOrders returns the wallet's resting orders, optionally filtered by
// condition ID.
func (c *ClobClient) ListOpenOrders(ctx context.Context, market string) ([]domain.OpenOrder, error) {
	path := "/data/orders"
	if market != "" {
		path += "?market=" + url.QueryEscape(market)
	}

	var out []domain.OpenOrder
	err := withRetry(ctx, "list open orders", func(ctx context.Context) error {
		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		var apiOrders []APIOpenOrder
		if err := json.Unmarshal(respBody, &apiOrders); err != nil {
			return fmt.Errorf("decode open orders: %w", err)
		}

		out = out[:0]
		for i := range apiOrders {
			out = append(out, apiOrders[i].ToDomainOpenOrder())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Redeem claims winnings for a resolved condition through the CLOB's
// redemption endpoint. The neg-risk flag routes through the adapter used for
// negative-risk groups.
func (c *ClobClient) Redeem(ctx context.Context, conditionID string, negRisk bool) error {
	body := map[string]any{
		"conditionId": conditionID,
		"negRisk":     negRisk,
	}

	return withRetry(ctx, "redeem", func(ctx context.Context) error {
		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/redeem", body)
		if err != nil {
			return err
		}

		var result struct {
			Success  bool   `json:"success"`
			ErrorMsg string `json:"errorMsg"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("decode redeem response: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("polymarket/clob: redeem %s refused: %s", conditionID, result.ErrorMsg)
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest sends a request with L2 HMAC headers and returns
// the response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyStr string
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(data)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// The signature covers the path without query parameters.
	sigPath := path
	if u, err := url.Parse(path); err == nil {
		sigPath = u.Path
	}
	for k, v := range c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, sigPath, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors so callers and
// the retry wrapper can branch on them.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrExchange, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrInvalidInput, statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.Exchange = (*ClobClient)(nil)
