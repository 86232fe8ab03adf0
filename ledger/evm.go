package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const erc20BalanceOfABI = `[{
	"constant": true,
	"inputs": [{"name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"type": "function"
}]`

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVM observes a single ERC-20 token on an EVM chain over JSON-RPC.
type EVM struct {
	client        *ethclient.Client
	token         common.Address
	tokenDecimals int32
	confirmations uint64
	balanceABI    abi.ABI
}

type EVMConfig struct {
	RPCURL        string
	TokenAddress  string
	TokenDecimals int32
	// Confirmations is the block depth at which a transaction counts as
	// finalized.
	Confirmations uint64
}

func DialEVM(cfg EVMConfig) (*EVM, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &EVM{
		client:        client,
		token:         common.HexToAddress(cfg.TokenAddress),
		tokenDecimals: cfg.TokenDecimals,
		confirmations: cfg.Confirmations,
		balanceABI:    parsedABI,
	}, nil
}

func (e *EVM) Close() {
	e.client.Close()
}

func (e *EVM) TokenID() string {
	return e.token.Hex()
}

func (e *EVM) LookupTransaction(ctx context.Context, txID string) (*Transaction, error) {
	txHash := common.HexToHash(txID)

	receipt, err := e.client.TransactionReceipt(ctx, txHash)
	if err == ethereum.NotFound {
		// Not mined yet, or never broadcast. The pending mempool is
		// checked so a broadcast-but-unmined transaction reports as
		// not finalized rather than unknown.
		if _, pending, txErr := e.client.TransactionByHash(ctx, txHash); txErr == nil && pending {
			return &Transaction{TxID: txID, Finalized: false}, nil
		}
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}

	head, err := e.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch head block: %w", err)
	}

	tx := &Transaction{TxID: txID}

	// Confirmation depth: the including block counts as the first.
	mined := receipt.BlockNumber.Uint64()
	tx.Finalized = head >= mined && head-mined+1 >= e.confirmations

	// A reverted transaction moved nothing; report it finalized with no
	// transfers so verification fails on recipient rather than retrying
	// forever.
	if receipt.Status != 1 {
		return tx, nil
	}

	tx.Transfers = e.transfersFromLogs(receipt.Logs)
	return tx, nil
}

func (e *EVM) TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	// Encode the balanceOf call
	callData, err := e.balanceABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to encode balanceOf call: %w", err)
	}

	msg := ethereum.CallMsg{
		To:   &e.token,
		Data: callData,
	}

	result, err := e.client.CallContract(ctx, msg, nil) // nil = latest block
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	var balance *big.Int
	if err := e.balanceABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance: %w", err)
	}

	return decimal.NewFromBigInt(balance, -e.tokenDecimals), nil
}

// transfersFromLogs extracts ERC-20 Transfer events of the configured token.
func (e *EVM) transfersFromLogs(logs []*ethtypes.Log) []Transfer {
	var transfers []Transfer
	for _, l := range logs {
		if l.Address != e.token {
			continue
		}
		// Transfer(address indexed from, address indexed to, uint256 value)
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		amount := new(big.Int).SetBytes(l.Data)
		transfers = append(transfers, Transfer{
			From:   common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:     common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Amount: decimal.NewFromBigInt(amount, -e.tokenDecimals),
		})
	}
	return transfers
}
