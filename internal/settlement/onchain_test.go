package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeEthClient records transactions without touching a chain.
type fakeEthClient struct {
	sendErr     error
	sent        []*types.Transaction
	callResult  []byte
	nonce       uint64
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEthClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 60000, nil
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEthClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, nil
}

func (f *fakeEthClient) Close() {}

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestOnchain(t *testing.T, client EthClient) *Onchain {
	t.Helper()
	o, err := NewOnchain(OnchainConfig{
		RPCURL:       "http://localhost:8545",
		PrivateKey:   testKey,
		ChainID:      84532,
		TokenAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}, WithClient(client))
	if err != nil {
		t.Fatalf("NewOnchain: %v", err)
	}
	return o
}

func TestOnchain_TransferSubmitsSignedTx(t *testing.T) {
	client := &fakeEthClient{nonce: 7}
	o := newTestOnchain(t, client)

	res, err := o.ExecuteTransfer(context.Background(), destOK, "1.50", "USDC")
	if err != nil {
		t.Fatalf("ExecuteTransfer: %v", err)
	}
	if !res.Success {
		t.Fatalf("success = false, reason %q", res.FailureReason)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	tx := client.sent[0]
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if res.SettlementRef != tx.Hash().Hex() {
		t.Errorf("settlement ref = %s, want tx hash %s", res.SettlementRef, tx.Hash().Hex())
	}
}

func TestOnchain_SendRejectionIsFailureNotError(t *testing.T) {
	client := &fakeEthClient{sendErr: errors.New("insufficient funds for gas")}
	o := newTestOnchain(t, client)

	res, err := o.ExecuteTransfer(context.Background(), destOK, "1.50", "USDC")
	if err != nil {
		t.Fatalf("ExecuteTransfer: %v", err)
	}
	if res.Success {
		t.Error("rejected send should report failure")
	}
	if res.FailureReason != "insufficient funds for gas" {
		t.Errorf("failure reason = %q, want verbatim send error", res.FailureReason)
	}
}

func TestOnchain_RejectsBadInput(t *testing.T) {
	o := newTestOnchain(t, &fakeEthClient{})
	ctx := context.Background()

	if _, err := o.ExecuteTransfer(ctx, "nope", "1.00", "USDC"); !errors.Is(err, ErrInvalidDestination) {
		t.Errorf("bad destination err = %v, want ErrInvalidDestination", err)
	}
	if _, err := o.ExecuteTransfer(ctx, destOK, "zero", "USDC"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("bad amount err = %v, want ErrInvalidAmount", err)
	}
}

func TestOnchain_Balance(t *testing.T) {
	raw, _ := new(big.Int).SetString("2500000", 10) // 2.50 at six decimals
	client := &fakeEthClient{callResult: common.LeftPadBytes(raw.Bytes(), 32)}
	o := newTestOnchain(t, client)

	balance, err := o.Balance(context.Background(), destOK)
	if err != nil {
		t.Fatal(err)
	}
	if balance != "2.500000" {
		t.Errorf("balance = %s, want 2.500000", balance)
	}
}

func TestNewOnchain_ValidatesConfig(t *testing.T) {
	cases := []OnchainConfig{
		{PrivateKey: testKey, ChainID: 1, TokenAddress: "0x1"},
		{RPCURL: "http://x", PrivateKey: "short", ChainID: 1, TokenAddress: "0x1"},
		{RPCURL: "http://x", PrivateKey: testKey, TokenAddress: "0x1"},
		{RPCURL: "http://x", PrivateKey: testKey, ChainID: 1},
	}
	for i, cfg := range cases {
		if _, err := NewOnchain(cfg); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
