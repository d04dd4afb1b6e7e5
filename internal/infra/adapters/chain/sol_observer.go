// File: internal/infra/adapters/chain/sol_observer.go
package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/config"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/infra/metrics"
)

var _ adapter.ChainObserver = (*SolObserver)(nil)

// SolObserver watches a Solana deposit address. Without an indexer there is
// no cheap "recent transfers" query, so ScanRecent reads the account balance
// at finalized commitment and emits one synthetic observation per balance
// level. The synthetic reference is deterministic, so the ledger's unique
// index still guarantees a given balance level settles at most once.
type SolObserver struct {
	rpcURL  string
	minConf int
	rpc     *rpcClient
	log     *zerolog.Logger
}

func NewSolObserver(cfg config.ChainConfig, logger *zerolog.Logger) *SolObserver {
	l := logger.With().Str("component", "SolObserver").Logger()
	return &SolObserver{
		rpcURL:  cfg.RPCURL,
		minConf: cfg.Confirmations,
		rpc:     newRPCClient(model.CurrencySOL, cfg.RequestTimeout, logger),
		log:     &l,
	}
}

func (o *SolObserver) Currency() model.Currency { return model.CurrencySOL }

type solBalanceResult struct {
	Value uint64 `json:"value"` // lamports
}

func (o *SolObserver) ScanRecent(ctx context.Context, recipient string, lookback time.Duration) ([]model.ChainObservation, error) {
	params := []interface{}{recipient, map[string]string{"commitment": "finalized"}}
	var res solBalanceResult
	if err := o.rpc.call(ctx, "getBalance", o.rpcURL, "getBalance", params, &res); err != nil {
		return nil, err
	}
	if res.Value == 0 {
		return nil, nil
	}

	// finalized balance carries the strongest commitment the chain offers
	ob := model.ChainObservation{
		Recipient:     recipient,
		Amount:        decimal.New(int64(res.Value), -model.CurrencySOL.NativeDecimals()),
		Currency:      model.CurrencySOL,
		TxRef:         solBalanceRef(recipient, res.Value),
		Confirmations: model.CurrencySOL.RequiredConfirmations(),
	}
	metrics.AddChainObservations(string(model.CurrencySOL), 1)
	return []model.ChainObservation{ob}, nil
}

type solTxResult struct {
	Slot uint64 `json:"slot"`
	Meta struct {
		Err          interface{} `json:"err"`
		PreBalances  []uint64    `json:"preBalances"`
		PostBalances []uint64    `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

func (o *SolObserver) Lookup(ctx context.Context, txRef string) (*model.ChainObservation, error) {
	params := []interface{}{txRef, map[string]interface{}{
		"encoding":                       "json",
		"commitment":                     "finalized",
		"maxSupportedTransactionVersion": 0,
	}}
	var tx *solTxResult
	if err := o.rpc.call(ctx, "getTransaction", o.rpcURL, "getTransaction", params, &tx); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	if tx.Meta.Err != nil {
		// failed on chain; moved no funds
		return nil, nil
	}

	keys := tx.Transaction.Message.AccountKeys
	if len(keys) == 0 || len(tx.Meta.PreBalances) != len(keys) || len(tx.Meta.PostBalances) != len(keys) {
		return nil, o.rpc.fail("getTransaction", fmt.Errorf("malformed balance arrays for %s", txRef))
	}

	// the receiving account is the one whose balance grew the most
	var (
		recipient string
		sender    string
		delta     int64
	)
	for i, key := range keys {
		d := int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i])
		if d > delta {
			delta = d
			recipient = key
		}
		if i == 0 {
			sender = key // fee payer signs first
		}
	}
	if delta <= 0 {
		return nil, nil
	}

	confs, err := o.confirmations(ctx, tx.Slot)
	if err != nil {
		return nil, err
	}
	if o.minConf > 0 && confs < o.minConf {
		return nil, nil
	}

	ob := &model.ChainObservation{
		Recipient:     strings.TrimSpace(recipient),
		Sender:        sender,
		Amount:        decimal.New(delta, -model.CurrencySOL.NativeDecimals()),
		Currency:      model.CurrencySOL,
		TxRef:         txRef,
		Confirmations: confs,
	}
	metrics.AddChainObservations(string(model.CurrencySOL), 1)
	return ob, nil
}

func (o *SolObserver) confirmations(ctx context.Context, txSlot uint64) (int, error) {
	var head uint64
	params := []interface{}{map[string]string{"commitment": "finalized"}}
	if err := o.rpc.call(ctx, "getSlot", o.rpcURL, "getSlot", params, &head); err != nil {
		return 0, err
	}
	if head < txSlot {
		return 0, nil
	}
	d := head - txSlot + 1
	if d > 1<<30 {
		d = 1 << 30
	}
	return int(d), nil
}

func solBalanceRef(recipient string, lamports uint64) string {
	return fmt.Sprintf("solbal:%s:%d", recipient, lamports)
}
