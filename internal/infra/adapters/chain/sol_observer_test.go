package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-crypto-subscription/internal/config"
	"telegram-crypto-subscription/internal/domain/model"
)

func TestSolScanRecent(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getBalance" {
			t.Errorf("unexpected method %q", req.Method)
		}
		// 0.14 SOL in lamports
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"value": 140000000},
		})
	}))
	defer rpcSrv.Close()

	obs := NewSolObserver(config.ChainConfig{RPCURL: rpcSrv.URL, RequestTimeout: 2 * time.Second}, testLogger())

	got, err := obs.ScanRecent(context.Background(), "SolDeposit1111", time.Hour)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 observation, got %d", len(got))
	}
	ob := got[0]
	if want := decimal.RequireFromString("0.14"); !ob.Amount.Equal(want) {
		t.Fatalf("amount %s, want %s", ob.Amount, want)
	}
	if !ob.Actionable() {
		t.Fatal("finalized balance must be actionable")
	}
	if ob.TxRef != "solbal:SolDeposit1111:140000000" {
		t.Fatalf("synthetic ref %q", ob.TxRef)
	}

	// the same balance always yields the same reference, so a second sweep
	// cannot settle a second obligation from it
	again, err := obs.ScanRecent(context.Background(), "SolDeposit1111", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].TxRef != ob.TxRef {
		t.Fatal("synthetic reference must be deterministic")
	}
}

func TestSolScanCoalescesDepositsBetweenSweeps(t *testing.T) {
	// two payments (0.14 and 0.1 SOL) land before the next scan; only the
	// combined finalized balance is observable, so they collapse into one
	// observation and at most one obligation can settle off this level
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"value": 240000000},
		})
	}))
	defer rpcSrv.Close()

	obs := NewSolObserver(config.ChainConfig{RPCURL: rpcSrv.URL, RequestTimeout: 2 * time.Second}, testLogger())
	got, err := obs.ScanRecent(context.Background(), "SolDeposit1111", time.Hour)
	if err != nil {
		t.Fatalf("ScanRecent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("coalesced balance must yield a single observation, got %d", len(got))
	}
	if want := decimal.RequireFromString("0.24"); !got[0].Amount.Equal(want) {
		t.Fatalf("amount %s, want the combined %s", got[0].Amount, want)
	}
	if got[0].TxRef != "solbal:SolDeposit1111:240000000" {
		t.Fatalf("ref %q must name the combined balance level", got[0].TxRef)
	}
}

func TestSolScanZeroBalance(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"value": 0},
		})
	}))
	defer rpcSrv.Close()

	obs := NewSolObserver(config.ChainConfig{RPCURL: rpcSrv.URL, RequestTimeout: 2 * time.Second}, testLogger())
	got, err := obs.ScanRecent(context.Background(), "SolDeposit1111", time.Hour)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty account: got %v, %v", got, err)
	}
}

func TestSolLookup(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getTransaction":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]interface{}{
					"slot": 1000,
					"meta": map[string]interface{}{
						"err":          nil,
						"preBalances":  []uint64{500000000, 100000000},
						"postBalances": []uint64{359000000, 240000000},
					},
					"transaction": map[string]interface{}{
						"message": map[string]interface{}{
							"accountKeys": []string{"PayerKey", "SolDeposit1111"},
						},
					},
				},
			})
		case "getSlot":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": 1031})
		default:
			t.Errorf("unexpected method %q", req.Method)
		}
	}))
	defer rpcSrv.Close()

	obs := NewSolObserver(config.ChainConfig{RPCURL: rpcSrv.URL, RequestTimeout: 2 * time.Second}, testLogger())

	ob, err := obs.Lookup(context.Background(), "5sig")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ob == nil {
		t.Fatal("observation expected")
	}
	// recipient gained 140000000 lamports = 0.14 SOL
	if want := decimal.RequireFromString("0.14"); !ob.Amount.Equal(want) {
		t.Fatalf("amount %s, want %s", ob.Amount, want)
	}
	if ob.Recipient != "SolDeposit1111" {
		t.Fatalf("recipient %q", ob.Recipient)
	}
	if ob.Sender != "PayerKey" {
		t.Fatalf("sender %q", ob.Sender)
	}
	if ob.Currency != model.CurrencySOL || !ob.Actionable() {
		t.Fatalf("unexpected observation %+v", ob)
	}
}

func TestSolLookupFailedTransaction(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"slot": 1000,
				"meta": map[string]interface{}{
					"err":          map[string]interface{}{"InstructionError": []interface{}{}},
					"preBalances":  []uint64{500000000},
					"postBalances": []uint64{499000000},
				},
				"transaction": map[string]interface{}{
					"message": map[string]interface{}{"accountKeys": []string{"PayerKey"}},
				},
			},
		})
	}))
	defer rpcSrv.Close()

	obs := NewSolObserver(config.ChainConfig{RPCURL: rpcSrv.URL, RequestTimeout: 2 * time.Second}, testLogger())
	ob, err := obs.Lookup(context.Background(), "5sig")
	if err != nil {
		t.Fatalf("failed tx is not a transport error: %v", err)
	}
	if ob != nil {
		t.Fatal("failed transaction moved no funds; want nil")
	}
}
