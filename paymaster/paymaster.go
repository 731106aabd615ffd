// Package paymaster asks a sponsoring paymaster to cover the gas of a user
// operation through the pm_sponsorUserOperation JSON-RPC method.
package paymaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview"
)

const (
	MethodSponsorUserOperation = "pm_sponsorUserOperation"

	jsonRPCVersion   = "2.0"
	defaultRequestID = "1"
)

// Request is a JSON-RPC request to the paymaster.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  []any  `json:"params"`
}

// Response is a JSON-RPC response from the paymaster.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client sends sponsorship requests to a single paymaster endpoint.
type Client struct {
	url        string
	entryPoint common.Address
	httpClient *http.Client
	requestID  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRequestID sets the JSON-RPC request id. It defaults to "1".
func WithRequestID(id string) Option {
	return func(client *Client) {
		client.requestID = id
	}
}

// NewClient returns a client for the paymaster at url, sponsoring operations
// for entryPoint.
func NewClient(url string, entryPoint common.Address, opts ...Option) *Client {
	c := &Client{
		url:        url,
		entryPoint: entryPoint,
		httpClient: http.DefaultClient,
		requestID:  defaultRequestID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest builds the sponsorship envelope for a draft: the draft is
// resolved and deep hexlified, then sent along with the EntryPoint address.
// Encoding and node errors keep their type; any other failure to resolve a
// field is reported as a SponsorshipError.
func (c *Client) NewRequest(ctx context.Context, draft peerreview.Draft) (*Request, error) {
	canonical, err := peerreview.Canonicalize(ctx, draft)
	if err != nil {
		if errors.Is(err, peerreview.ErrEncoding) || errors.Is(err, peerreview.ErrChain) {
			return nil, err
		}
		return nil, &peerreview.SponsorshipError{Err: err}
	}

	return &Request{
		JSONRPC: jsonRPCVersion,
		Method:  MethodSponsorUserOperation,
		ID:      c.requestID,
		Params:  []any{canonical, c.entryPoint.Hex()},
	}, nil
}

// SponsorUserOperation asks the paymaster to sponsor draft and returns its
// result unmodified. It makes a single attempt. Transport failures, non-2xx
// replies, JSON-RPC errors and replies without a result are reported as a
// SponsorshipError carrying the raw response body.
func (c *Client) SponsorUserOperation(ctx context.Context, draft peerreview.Draft) (*peerreview.SponsorshipResponse, error) {
	req, err := c.NewRequest(ctx, draft)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sponsorship request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &peerreview.SponsorshipError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().Str("method", MethodSponsorUserOperation).Str("entryPoint", c.entryPoint.Hex()).Msg("requesting sponsorship")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &peerreview.SponsorshipError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &peerreview.SponsorshipError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &peerreview.SponsorshipError{
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return decodeResponse(resp.StatusCode, body)
}

func decodeResponse(status int, body []byte) (*peerreview.SponsorshipResponse, error) {
	var rpcResp Response
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, &peerreview.SponsorshipError{StatusCode: status, Body: body, Err: err}
	}

	if rpcResp.Error != nil {
		return nil, &peerreview.SponsorshipError{StatusCode: status, Body: body, Err: rpcResp.Error}
	}

	if len(rpcResp.Result) == 0 || bytes.Equal(rpcResp.Result, []byte("null")) {
		return nil, &peerreview.SponsorshipError{StatusCode: status, Body: body, Err: fmt.Errorf("response has no result")}
	}

	// Gas values may be native JSON numbers; keep them exact.
	dec := json.NewDecoder(bytes.NewReader(rpcResp.Result))
	dec.UseNumber()

	var sponsorship peerreview.SponsorshipResponse
	if err := dec.Decode(&sponsorship); err != nil {
		return nil, &peerreview.SponsorshipError{StatusCode: status, Body: body, Err: err}
	}
	sponsorship.Raw = append(json.RawMessage(nil), rpcResp.Result...)

	return &sponsorship, nil
}
