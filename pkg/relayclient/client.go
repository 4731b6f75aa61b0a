package relayclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/constants"
	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// Client implements chains.Relay over the relay operator's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a relay client for the given base URL. The HTTP client carries
// explicit timeouts so a slow relay endpoint cannot hang the engine.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: constants.RelayClientTimeout,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
				ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			},
		},
	}
}

var _ chains.Relay = (*Client)(nil)

type quoteRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type quoteResponse struct {
	Fee           string `json:"fee"`
	EstimatedTime int    `json:"estimatedTime"`
}

// QuoteFee implements chains.Relay. A 404 from the quote endpoint means the
// lane has no live quote and maps to chains.ErrQuoteUnavailable.
func (c *Client) QuoteFee(ctx context.Context, sourceNetworkID, destinationNetworkID string, amount decimal.Decimal) (decimal.Decimal, error) {
	req := quoteRequest{
		Source:      sourceNetworkID,
		Destination: destinationNetworkID,
		Amount:      amount.String(),
	}

	var resp quoteResponse
	err := httpRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/quote", req, &resp)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return decimal.Zero, chains.ErrQuoteUnavailable
		}
		return decimal.Zero, fmt.Errorf("relay quote request failed: %w", err)
	}

	fee, err := decimal.NewFromString(resp.Fee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("relay returned malformed fee %q: %w", resp.Fee, err)
	}
	return fee, nil
}

type sendRequest struct {
	Router    string            `json:"router"`
	Selector  uint64            `json:"selector"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Amount    string            `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type sendResponse struct {
	MessageRef string `json:"messageRef"`
}

// SendMessage implements chains.Relay.
func (c *Client) SendMessage(ctx context.Context, lane types.Lane, payload chains.RelayPayload) (string, error) {
	req := sendRequest{
		Router:    lane.Router,
		Selector:  lane.Selector,
		Sender:    payload.Sender,
		Recipient: payload.Recipient,
		Amount:    payload.Amount.String(),
		Metadata:  payload.Metadata,
	}

	var resp sendResponse
	if err := httpRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/messages", req, &resp); err != nil {
		return "", fmt.Errorf("relay send failed: %w", err)
	}
	if resp.MessageRef == "" {
		return "", fmt.Errorf("relay accepted the message without a message reference")
	}
	return resp.MessageRef, nil
}

type deliveryResponse struct {
	Status           string `json:"status"`
	DestinationTxRef string `json:"destinationTxRef,omitempty"`
}

// PollDelivery implements chains.Relay.
func (c *Client) PollDelivery(ctx context.Context, messageRef string) (chains.DeliveryResult, error) {
	endpoint := c.baseURL + "/v1/messages/" + url.PathEscape(messageRef)

	var resp deliveryResponse
	if err := httpRequest(ctx, c.httpClient, http.MethodGet, endpoint, nil, &resp); err != nil {
		return chains.DeliveryResult{}, fmt.Errorf("relay delivery poll failed: %w", err)
	}

	switch resp.Status {
	case "delivered":
		return chains.DeliveryResult{
			Status:           chains.DeliveryDelivered,
			DestinationTxRef: resp.DestinationTxRef,
		}, nil
	case "undeliverable":
		return chains.DeliveryResult{Status: chains.DeliveryUndeliverable}, nil
	case "pending":
		return chains.DeliveryResult{Status: chains.DeliveryPending}, nil
	default:
		return chains.DeliveryResult{}, fmt.Errorf("relay returned unknown delivery status %q", resp.Status)
	}
}
