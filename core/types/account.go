package types

// Account is an address's balance/nonce record (§3). Accounts are mutated
// exclusively through the StateManager.
type Account struct {
	Address Address
	Balance uint64
	Nonce   uint64
}

// IsZero reports whether the account is the zero-value default returned
// by StateManager.GetAccount for an address with no history.
func (a Account) IsZero() bool {
	return a.Balance == 0 && a.Nonce == 0
}

// Batch is an ordered sequence of transactions submitted together under
// a single batch identifier (§3).
type Batch struct {
	BatchID      uint64
	Timestamp    uint64
	ValidatorID  string
	Transactions []*Transaction
}
