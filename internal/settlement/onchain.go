package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/spendgate/internal/money"
)

var (
	ErrInvalidPrivateKey = errors.New("settlement: invalid private key")
	ErrRPCConnection     = errors.New("settlement: RPC connection failed")
)

// Minimal ERC-20 ABI: transfer and balanceOf are all the executor needs.
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const defaultGasLimit = uint64(100000)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// OnchainConfig configures the ERC-20 executor.
type OnchainConfig struct {
	RPCURL       string
	PrivateKey   string // hex, with or without 0x prefix
	ChainID      int64
	TokenAddress string
}

// OnchainOption configures the executor.
type OnchainOption func(*Onchain)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) OnchainOption {
	return func(o *Onchain) {
		o.client = client
	}
}

// Onchain settles transfers as ERC-20 token transactions. The settlement
// reference is the transaction hash; the orchestrator treats the submitted
// transaction as final and does not wait for confirmation.
type Onchain struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	token      common.Address
	tokenABI   abi.ABI
}

// NewOnchain creates the ERC-20 executor.
func NewOnchain(cfg OnchainConfig, opts ...OnchainOption) (*Onchain, error) {
	if err := validateOnchainConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	o := &Onchain{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		token:      common.HexToAddress(cfg.TokenAddress),
		tokenABI:   parsedABI,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		o.client = client
	}
	return o, nil
}

func validateOnchainConfig(cfg OnchainConfig) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return errors.New("settlement: chain ID required")
	}
	if cfg.TokenAddress == "" {
		return errors.New("settlement: token contract address required")
	}
	return nil
}

// Address returns the paying account's address.
func (o *Onchain) Address() string {
	return o.address.Hex()
}

func (o *Onchain) ExecuteTransfer(ctx context.Context, destination, amount, assetRef string) (*Result, error) {
	amt, ok := money.ParsePositive(amount)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !common.IsHexAddress(destination) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	to := common.HexToAddress(destination)

	data, err := o.tokenABI.Pack("transfer", to, amt)
	if err != nil {
		return nil, fmt.Errorf("%w: pack transfer: %v", ErrUnavailable, err)
	}

	nonce, err := o.client.PendingNonceAt(ctx, o.address)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrUnavailable, err)
	}
	gasPrice, err := o.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", ErrUnavailable, err)
	}
	gasLimit, err := o.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  o.address,
		To:    &o.token,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		gasLimit = defaultGasLimit
	}

	tx := types.NewTransaction(nonce, o.token, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(o.chainID), o.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrUnavailable, err)
	}

	if err := o.client.SendTransaction(ctx, signedTx); err != nil {
		// The chain saw the transaction and rejected it: an attempted,
		// failed transfer rather than an unreachable executor.
		return &Result{
			Success:       false,
			FailureReason: err.Error(),
		}, nil
	}

	return &Result{
		Success:       true,
		SettlementRef: signedTx.Hash().Hex(),
	}, nil
}

// Balance returns the token balance of any identity as a decimal string.
func (o *Onchain) Balance(ctx context.Context, identity string) (string, error) {
	if !common.IsHexAddress(identity) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, identity)
	}
	data, err := o.tokenABI.Pack("balanceOf", common.HexToAddress(identity))
	if err != nil {
		return "", fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.token,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: balanceOf: %v", ErrUnavailable, err)
	}
	return money.Format(new(big.Int).SetBytes(result)), nil
}

// Close closes the client connection.
func (o *Onchain) Close() error {
	if o.client != nil {
		o.client.Close()
	}
	return nil
}

var (
	_ Executor        = (*Onchain)(nil)
	_ BalanceProvider = (*Onchain)(nil)
)
