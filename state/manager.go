// Package state implements the authenticated account store (C2): a
// mapping of address to Account, per-address transaction history,
// deterministic Merkle-style state roots, and cheap snapshot cloning.
package state

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/quids/quids/core/types"
	"github.com/quids/quids/crypto"
)

// StateManager errors (§7 StateRule kind; wrapped by callers that need
// the taxonomy).
var (
	ErrNonceMismatch      = errors.New("state: transaction nonce does not follow sender's current nonce")
	ErrInsufficientFunds  = errors.New("state: sender balance insufficient for amount plus gas cost")
	ErrBalanceOverflow    = errors.New("state: recipient balance would overflow uint64")
	ErrTxCostComputation  = errors.New("state: could not compute transaction total cost")
)

// IntrinsicGas is the gas a plain value transfer actually consumes.
// There is no contract execution in this rollup, so every admitted
// transaction consumes the same fixed amount regardless of its
// gas_limit; gas_limit only bounds what the sender is willing to pay
// (tx.IsValid's [MinGasLimit, MaxGasLimit] check), it is not charged in
// full. A tx's fee is therefore IntrinsicGas*gas_price, not
// tx.GasCost() (gas_limit*gas_price).
const IntrinsicGas = 21

// StateManager owns the account map and per-address history for one
// logical chain of state. All exported methods serialize on a single
// lock; per-account fine-grained locking during parallel execution is
// the ParallelExecutor's responsibility (§4.2), layered on top by its
// sharded per-address lock table (executor/lock.go).
type StateManager struct {
	mu       sync.Mutex
	accounts map[types.Address]types.Account
	history  map[types.Address][]*types.Transaction
}

// New creates an empty StateManager.
func New() *StateManager {
	return &StateManager{
		accounts: make(map[types.Address]types.Account),
		history:  make(map[types.Address][]*types.Transaction),
	}
}

// GetAccount returns the account at addr, or a zero-value Account (with
// Address set) if absent.
func (sm *StateManager) GetAccount(addr types.Address) types.Account {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getAccountLocked(addr)
}

func (sm *StateManager) getAccountLocked(addr types.Address) types.Account {
	if acct, ok := sm.accounts[addr]; ok {
		return acct
	}
	return types.Account{Address: addr}
}

// AddAccount inserts or replaces the account at addr.
func (sm *StateManager) AddAccount(addr types.Address, acct types.Account) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	acct.Address = addr
	sm.accounts[addr] = acct
}

// ApplyTransaction atomically applies tx to the state (§4.2):
//   - requires tx.Nonce == sender.Nonce+1
//   - requires sender.Balance >= tx.Amount + gasCost
//
// On success it debits the sender (amount+gasCost), credits the
// recipient (amount), increments the sender's nonce, and appends tx to
// both accounts' history. On any precondition failure, state is
// unchanged (property 8).
func (sm *StateManager) ApplyTransaction(tx *types.Transaction) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sender := sm.getAccountLocked(tx.Sender)
	if tx.Nonce != sender.Nonce+1 {
		return ErrNonceMismatch
	}

	gasCostInt, overflow := new(uint256.Int).MulOverflow(
		uint256.NewInt(IntrinsicGas), uint256.NewInt(tx.GasPrice))
	if overflow || !gasCostInt.IsUint64() {
		return ErrTxCostComputation
	}
	gasCost := gasCostInt.Uint64()
	totalCost, overflow := new(uint256.Int).AddOverflow(
		uint256.NewInt(tx.Amount), uint256.NewInt(gasCost))
	if overflow || !totalCost.IsUint64() {
		return ErrTxCostComputation
	}
	if sender.Balance < totalCost.Uint64() {
		return ErrInsufficientFunds
	}

	recipient := sm.getAccountLocked(tx.Recipient)
	newRecipientBalance, overflow := new(uint256.Int).AddOverflow(
		uint256.NewInt(recipient.Balance), uint256.NewInt(tx.Amount))
	if overflow || !newRecipientBalance.IsUint64() {
		return ErrBalanceOverflow
	}

	sender.Balance -= totalCost.Uint64()
	sender.Nonce = tx.Nonce
	sender.Address = tx.Sender
	recipient.Balance = newRecipientBalance.Uint64()
	recipient.Address = tx.Recipient

	sm.accounts[tx.Sender] = sender
	sm.accounts[tx.Recipient] = recipient
	sm.history[tx.Sender] = append(sm.history[tx.Sender], tx)
	if tx.Recipient != tx.Sender {
		sm.history[tx.Recipient] = append(sm.history[tx.Recipient], tx)
	}
	return nil
}

// History returns the ordered transaction history for addr. The returned
// slice is a defensive copy.
func (sm *StateManager) History(addr types.Address) []*types.Transaction {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	h := sm.history[addr]
	out := make([]*types.Transaction, len(h))
	copy(out, h)
	return out
}

// StateRoot computes the deterministic 32-byte digest over the sorted
// address->account map (§4.2): sort by address, serialize each account,
// fold into a single keyed hash.
func (sm *StateManager) StateRoot() types.Hash {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.stateRootLocked()
}

func (sm *StateManager) stateRootLocked() types.Hash {
	addrs := make([]types.Address, 0, len(sm.accounts))
	for addr := range sm.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	var buf []byte
	var tmp [16]byte
	for _, addr := range addrs {
		acct := sm.accounts[addr]
		buf = append(buf, addr[:]...)
		binary.BigEndian.PutUint64(tmp[:8], acct.Balance)
		binary.BigEndian.PutUint64(tmp[8:], acct.Nonce)
		buf = append(buf, tmp[:]...)
	}
	return crypto.KeyedHash(buf)
}

// Clone returns an independent snapshot sharing no mutable state with
// sm: mutating the clone never changes sm's state root (property 7).
func (sm *StateManager) Clone() *StateManager {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	accounts := make(map[types.Address]types.Account, len(sm.accounts))
	for k, v := range sm.accounts {
		accounts[k] = v
	}
	history := make(map[types.Address][]*types.Transaction, len(sm.history))
	for k, v := range sm.history {
		cp := make([]*types.Transaction, len(v))
		copy(cp, v)
		history[k] = cp
	}
	return &StateManager{accounts: accounts, history: history}
}

// Accounts returns a defensive copy of the full address->account map,
// used by provers to build commitment states without holding sm's lock.
func (sm *StateManager) Accounts() map[types.Address]types.Account {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make(map[types.Address]types.Account, len(sm.accounts))
	for k, v := range sm.accounts {
		out[k] = v
	}
	return out
}
