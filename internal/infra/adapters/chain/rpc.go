// File: internal/infra/adapters/chain/rpc.go
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/infra/metrics"
)

const rpcAttempts = 3

// rpcClient is the shared transport for chain observers: JSON-RPC POST for
// nodes, plain GET for explorer APIs. Every failure mode (transport, HTTP
// status, decode, RPC error object) collapses into
// domain.ErrObservationUnavailable per the observer contract.
type rpcClient struct {
	currency model.Currency
	timeout  time.Duration
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      *zerolog.Logger
}

func newRPCClient(currency model.Currency, timeout time.Duration, logger *zerolog.Logger) *rpcClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "ChainRPC").Str("currency", string(currency)).Logger()
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(currency) + "-rpc",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &rpcClient{
		currency: currency,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		breaker:  br,
		log:      &l,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call issues a JSON-RPC 2.0 request and decodes the result field into out.
// A null result leaves out untouched and returns nil.
func (c *rpcClient) call(ctx context.Context, op, url, method string, params, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return c.fail(op, err)
	}

	raw, err := c.roundTrip(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return c.fail(op, err)
	}
	if resp.Error != nil {
		return c.fail(op, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message))
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return c.fail(op, err)
	}
	return nil
}

// getJSON issues a plain GET (explorer-style API) and decodes the whole body.
func (c *rpcClient) getJSON(ctx context.Context, op, url string, out interface{}) error {
	raw, err := c.roundTrip(ctx, op, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(op, err)
	}
	return nil
}

// roundTrip runs the request through the breaker with bounded retries.
func (c *rpcClient) roundTrip(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	bo := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < rpcAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(bo.Duration()):
			case <-ctx.Done():
				return nil, c.fail(op, ctx.Err())
			}
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			req, err := build(callCtx)
			if err != nil {
				return nil, err
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
				return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		})
		if err == nil {
			return res.([]byte), nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
	}
	return nil, c.fail(op, lastErr)
}

func (c *rpcClient) fail(op string, cause error) error {
	metrics.IncChainRPCError(string(c.currency), op)
	c.log.Debug().Err(cause).Str("op", op).Msg("chain call failed")
	return fmt.Errorf("%s %s: %v: %w", c.currency, op, cause, domain.ErrObservationUnavailable)
}
