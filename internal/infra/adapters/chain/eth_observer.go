// File: internal/infra/adapters/chain/eth_observer.go
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/config"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/infra/metrics"
)

var _ adapter.ChainObserver = (*EthObserver)(nil)

// EthObserver watches an Ethereum deposit address. Recent transfers come
// from an explorer account API (one call covers the whole lookback window);
// direct reference lookups go to the node over JSON-RPC, with confirmations
// derived from the current head.
type EthObserver struct {
	rpcURL  string
	scanURL string
	apiKey  string
	minConf int // deployment override on top of the protocol default
	rpc     *rpcClient
	log     *zerolog.Logger
}

func NewEthObserver(cfg config.ChainConfig, logger *zerolog.Logger) *EthObserver {
	l := logger.With().Str("component", "EthObserver").Logger()
	return &EthObserver{
		rpcURL:  cfg.RPCURL,
		scanURL: cfg.ScanURL,
		apiKey:  cfg.APIKey,
		minConf: cfg.Confirmations,
		rpc:     newRPCClient(model.CurrencyETH, cfg.RequestTimeout, logger),
		log:     &l,
	}
}

func (o *EthObserver) Currency() model.Currency { return model.CurrencyETH }

type ethScanTx struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"` // wei, base-10
	TimeStamp     string `json:"timeStamp"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

type ethScanResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Result  []ethScanTx `json:"result"`
}

func (o *EthObserver) ScanRecent(ctx context.Context, recipient string, lookback time.Duration) ([]model.ChainObservation, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", recipient)
	q.Set("sort", "desc")
	if o.apiKey != "" {
		q.Set("apikey", o.apiKey)
	}

	var resp ethScanResponse
	if err := o.rpc.getJSON(ctx, "eth_scan", o.scanURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	// status "0" with message "No transactions found" is an empty result,
	// not a failure
	if resp.Status != "1" && !strings.Contains(resp.Message, "No transactions") {
		return nil, o.rpc.fail("eth_scan", fmt.Errorf("explorer status %q: %s", resp.Status, resp.Message))
	}

	cutoff := time.Now().Add(-lookback).Unix()
	recipient = strings.ToLower(recipient)

	var out []model.ChainObservation
	for _, tx := range resp.Result {
		if !strings.EqualFold(tx.To, recipient) || tx.IsError == "1" {
			continue
		}
		ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if err != nil || ts < cutoff {
			continue
		}
		wei, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok || wei.Sign() <= 0 {
			continue
		}
		confs, _ := strconv.Atoi(tx.Confirmations)
		if o.minConf > 0 && confs < o.minConf {
			continue
		}
		out = append(out, model.ChainObservation{
			Recipient:     recipient,
			Sender:        strings.ToLower(tx.From),
			Amount:        decimal.NewFromBigInt(wei, -model.CurrencyETH.NativeDecimals()),
			Currency:      model.CurrencyETH,
			TxRef:         strings.ToLower(tx.Hash),
			Confirmations: confs,
		})
	}
	metrics.AddChainObservations(string(model.CurrencyETH), len(out))
	return out, nil
}

type ethTx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // wei, hex
	BlockNumber string `json:"blockNumber"` // hex; empty while pending
}

func (o *EthObserver) Lookup(ctx context.Context, txRef string) (*model.ChainObservation, error) {
	var tx *ethTx
	if err := o.rpc.call(ctx, "eth_getTransactionByHash", o.rpcURL, "eth_getTransactionByHash", []string{txRef}, &tx); err != nil {
		return nil, err
	}
	if tx == nil || tx.Hash == "" {
		return nil, nil
	}

	wei, err := parseHexBig(tx.Value)
	if err != nil {
		return nil, o.rpc.fail("eth_getTransactionByHash", err)
	}

	confs := 0
	if tx.BlockNumber != "" {
		blockNum, err := parseHexBig(tx.BlockNumber)
		if err != nil {
			return nil, o.rpc.fail("eth_getTransactionByHash", err)
		}
		var headHex string
		if err := o.rpc.call(ctx, "eth_blockNumber", o.rpcURL, "eth_blockNumber", []string{}, &headHex); err != nil {
			return nil, err
		}
		head, err := parseHexBig(headHex)
		if err != nil {
			return nil, o.rpc.fail("eth_blockNumber", err)
		}
		if d := new(big.Int).Sub(head, blockNum); d.Sign() >= 0 && d.IsInt64() {
			confs = int(d.Int64())
		}
	}

	ob := &model.ChainObservation{
		Recipient:     strings.ToLower(tx.To),
		Sender:        strings.ToLower(tx.From),
		Amount:        decimal.NewFromBigInt(wei, -model.CurrencyETH.NativeDecimals()),
		Currency:      model.CurrencyETH,
		TxRef:         strings.ToLower(tx.Hash),
		Confirmations: confs,
	}
	metrics.AddChainObservations(string(model.CurrencyETH), 1)
	return ob, nil
}

func parseHexBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("bad hex quantity %q", s)
	}
	return n, nil
}
