// Package ethledger implements ledger.Authority on an Ethereum smart contract. Keys are
// identified on chain by keccak256 of their big-endian encoding; state changes are legacy
// transactions signed with the manager key.
package ethledger

import (
	"context"
	"crypto/ecdsa"
	gobig "math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-errors/errors"
	"github.com/holiman/uint256"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/ledger"
)

// ContractABI is the interface of the key registry contract.
const ContractABI = `[
	{"type":"function","name":"isPublicKeyValid","stateMutability":"view",
	 "inputs":[{"name":"publicKey","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"invalidatePublicKey","stateMutability":"nonpayable",
	 "inputs":[{"name":"publicKey","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"updatePublicKey","stateMutability":"nonpayable",
	 "inputs":[{"name":"oldPublicKey","type":"uint256"},{"name":"newPublicKey","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"registerPublicKey","stateMutability":"nonpayable",
	 "inputs":[{"name":"publicKey","type":"uint256"}],"outputs":[]}
]`

const (
	DefaultGasLimit     = 200000
	DefaultPollInterval = 2 * time.Second
)

// Backend is the part of an Ethereum RPC client used by Client. *ethclient.Client implements it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *gobig.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*gobig.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*gobig.Int, error)
}

type Config struct {
	Contract     common.Address
	ManagerKey   *ecdsa.PrivateKey
	GasLimit     uint64
	PollInterval time.Duration
}

// Client is a ledger.Authority backed by the key registry contract.
type Client struct {
	backend      Backend
	contract     common.Address
	abi          abi.ABI
	key          *ecdsa.PrivateKey
	from         common.Address
	gasLimit     uint64
	pollInterval time.Duration

	mu      sync.Mutex // serializes nonce allocation
	chainID *gobig.Int
}

var (
	_ ledger.Authority = (*Client)(nil)
	_ ledger.Confirmer = (*Client)(nil)
)

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.WrapPrefix(ledger.ErrUnavailable, err.Error(), 0)
	}
	return New(ec, cfg)
}

func New(backend Backend, cfg Config) (*Client, error) {
	if cfg.ManagerKey == nil {
		return nil, errors.New("ethledger: no manager key")
	}
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		return nil, err
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Client{
		backend:      backend,
		contract:     cfg.Contract,
		abi:          parsed,
		key:          cfg.ManagerKey,
		from:         crypto.PubkeyToAddress(cfg.ManagerKey.PublicKey),
		gasLimit:     cfg.GasLimit,
		pollInterval: cfg.PollInterval,
	}, nil
}

// KeyID returns the on-chain identifier of y: keccak256 of its big-endian bytes as a uint256.
func KeyID(y *big.Int) *gobig.Int {
	var h [32]byte
	copy(h[:], crypto.Keccak256(y.Bytes()))
	return new(uint256.Int).SetBytes32(h[:]).ToBig()
}

func (c *Client) IsKeyValid(ctx context.Context, y *big.Int) (bool, error) {
	data, err := c.abi.Pack("isPublicKeyValid", KeyID(y))
	if err != nil {
		return false, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		return false, classify(err)
	}
	res, err := c.abi.Unpack("isPublicKeyValid", out)
	if err != nil {
		return false, errors.WrapPrefix(ledger.ErrTx, err.Error(), 0)
	}
	valid, ok := res[0].(bool)
	if !ok {
		return false, errors.WrapPrefix(ledger.ErrTx, "unexpected return type", 0)
	}
	return valid, nil
}

func (c *Client) InvalidateKey(ctx context.Context, y *big.Int) (ledger.TxRef, error) {
	valid, err := c.IsKeyValid(ctx, y)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ledger.ErrAlreadyInvalid
	}
	return c.transact(ctx, "invalidatePublicKey", KeyID(y))
}

// UpdateKey sends the rotation to the contract. The ownership proof is checked off chain by
// the caller; the contract only enforces that the manager sent the transaction.
func (c *Client) UpdateKey(ctx context.Context, oldY, newY *big.Int, _ string, proof *zkgate.OwnershipProof) (ledger.TxRef, error) {
	if proof == nil {
		return "", ledger.ErrAuth
	}
	return c.transact(ctx, "updatePublicKey", KeyID(oldY), KeyID(newY))
}

func (c *Client) RegisterKey(ctx context.Context, y *big.Int) (ledger.TxRef, error) {
	return c.transact(ctx, "registerPublicKey", KeyID(y))
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (ledger.TxRef, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return "", err
	}
	tx, err := c.send(ctx, data)
	if err != nil {
		return "", err
	}
	ref := ledger.TxRef(tx.Hash().Hex())
	if err = c.AwaitTx(ctx, ref); err != nil {
		return "", err
	}
	ledger.Logger.WithField("tx", ref).Debugf("ethledger: %s mined", method)
	return ref, nil
}

// AwaitTx waits until the transaction ref is mined. A transaction that is still unmined when
// ctx ends gives a *ledger.PendingError; one that reverted gives ledger.ErrTx.
func (c *Client) AwaitTx(ctx context.Context, ref ledger.TxRef) error {
	hash := common.HexToHash(string(ref))
	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return errors.WrapPrefix(ledger.ErrTx, "transaction "+hash.Hex()+" reverted", 0)
	}
	return nil
}

func (c *Client) send(ctx context.Context, data []byte) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID == nil {
		id, err := c.backend.ChainID(ctx)
		if err != nil {
			return nil, classify(err)
		}
		c.chainID = id
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, classify(err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      c.gasLimit,
		To:       &c.contract,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, err
	}
	if err = c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, classify(err)
	}
	return signedTx, nil
}

// waitMined polls for the receipt of a sent transaction. Transient failures leave the
// transaction pending rather than unavailable.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	pending := &ledger.PendingError{Ref: ledger.TxRef(hash.Hex())}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, pending
		}
		if !errors.Is(err, ethereum.NotFound) {
			if err = classify(err); ledger.Retryable(err) {
				return nil, pending
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, pending
		case <-ticker.C:
		}
	}
}

// classify maps node errors to the ledger error taxonomy.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "already known"):
		return errors.WrapPrefix(ledger.ErrConflict, err.Error(), 0)
	case strings.Contains(msg, "execution reverted"):
		return errors.WrapPrefix(ledger.ErrTx, err.Error(), 0)
	default:
		return errors.WrapPrefix(ledger.ErrUnavailable, err.Error(), 0)
	}
}
