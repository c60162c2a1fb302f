// Package chain provides the thin on-chain RPC surface the minter needs:
// reading a proxy wallet's ERC-20 collateral balance and broadcasting a
// signed Safe execTransaction call. There is no feed/orderbook concern
// here — it is pure JSON-RPC plumbing over go-ethereum's ethclient, the
// same module already required for EIP-712 signing.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	balanceOfSelector = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]

	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
)

// TxSigner is the subset of *crypto.Signer the client needs to authorize a
// relayer-broadcast transaction.
type TxSigner interface {
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	Address() common.Address
}

// Client wraps an ethclient.Client with the Polygon chain ID and the
// collateral token address the balance check reads against.
type Client struct {
	eth             *ethclient.Client
	signer          TxSigner
	chainID         *big.Int
	collateralToken common.Address
	gasLimit        uint64
}

// Config bundles the RPC endpoint, chain ID, and collateral token address.
type Config struct {
	RPCURL          string
	ChainID         int64
	CollateralToken common.Address
	GasLimit        uint64
}

// New dials the RPC endpoint and constructs a Client.
func New(ctx context.Context, cfg Config, signer TxSigner) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 300000
	}
	return &Client{
		eth:             eth,
		signer:          signer,
		chainID:         big.NewInt(cfg.ChainID),
		collateralToken: cfg.CollateralToken,
		gasLimit:        gasLimit,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// CollateralBalance reads proxyAddress's ERC-20 balance of the collateral
// token and returns it scaled down from 6-decimal USDC units to a plain
// float. Satisfies mint.BalanceReader.
func (c *Client) CollateralBalance(ctx context.Context, proxyAddress string) (float64, error) {
	args := abi.Arguments{{Type: addressType}}
	packedArgs, err := args.Pack(common.HexToAddress(proxyAddress))
	if err != nil {
		return 0, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	calldata := append(append([]byte{}, balanceOfSelector...), packedArgs...)

	msg := ethereum.CallMsg{To: &c.collateralToken, Data: calldata}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: call balanceOf: %w", err)
	}

	results, err := abi.Arguments{{Type: uint256Type}}.Unpack(out)
	if err != nil || len(results) == 0 {
		return 0, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: unexpected balanceOf result type")
	}

	scaled := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6))
	f, _ := scaled.Float64()
	return f, nil
}

// Submit broadcasts a transaction calling `to` with the given calldata from
// the relayer's own EOA, waits for it to be mined, and returns its hash.
// Satisfies mint.ChainSubmitter.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return "", fmt.Errorf("chain: nonce: %w", err)
	}
	gasTipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: gas tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("chain: head: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       c.gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return "", fmt.Errorf("chain: sign: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send: %w", err)
	}

	if err := c.waitMined(ctx, signed.Hash()); err != nil {
		return signed.Hash().Hex(), err
	}
	return signed.Hash().Hex(), nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			receipt, err := c.eth.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("chain: transaction %s reverted", hash.Hex())
			}
			return nil
		}
	}
}
