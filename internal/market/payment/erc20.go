package payment

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Function selectors, Keccak256 of the canonical signature, first 4 bytes.
var (
	selectorAllowance = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	selectorBalanceOf = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selectorApprove   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
)

// ContractCaller is the read-only chain surface for token queries. Satisfied
// by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ERC20Reader reads allowances and balances without going through the wallet.
type ERC20Reader struct {
	caller ContractCaller
}

// NewERC20Reader creates a reader over the given chain client.
func NewERC20Reader(caller ContractCaller) *ERC20Reader {
	return &ERC20Reader{caller: caller}
}

// Allowance reads allowance(owner, spender) on the token.
func (r *ERC20Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, selectorAllowance...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "allowance call failed")
	}
	return new(big.Int).SetBytes(out), nil
}

// BalanceOf reads the token balance of account.
func (r *ERC20Reader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, selectorBalanceOf...)
	data = append(data, common.LeftPadBytes(account.Bytes(), 32)...)

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "balanceOf call failed")
	}
	return new(big.Int).SetBytes(out), nil
}

// NativeBalance reads the account's native-asset balance.
func (r *ERC20Reader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := r.caller.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, errors.Wrap(err, "balance read failed")
	}
	return balance, nil
}

// ApproveCalldata builds approve(spender, amount) calldata for broadcast
// through the wallet adapter.
func ApproveCalldata(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, selectorApprove...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
