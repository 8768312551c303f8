package event

// Payloads are JSON-encoded for the operation log and outbound publishing, so
// amounts are decimal strings (big.Int values survive arbitrary magnitudes).

// DepositReceived is emitted after a deposit commits: tokens pulled, net
// deposits increased, shares minted.
type DepositReceived struct {
	Holder    string `json:"holder"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`     // native units
	AmountUsd string `json:"amount_usd"` // 18-decimal USD
	Shares    string `json:"shares"`
}

// WithdrawalCompleted is emitted when a withdrawal pays out immediately.
type WithdrawalCompleted struct {
	Holder    string `json:"holder"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	AmountUsd string `json:"amount_usd"`
	Shares    string `json:"shares"`
}

// WithdrawalQueued is emitted when on-hand liquidity cannot cover a
// withdrawal and the payout is deferred. The accounting (share burn, net
// deposits) is already committed; only the transfer is pending.
type WithdrawalQueued struct {
	Payee     string `json:"payee"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	AmountUsd string `json:"amount_usd"`
	Shares    string `json:"shares"`
	QueueLen  int    `json:"queue_len"`
}

// PendingWithdrawalsProcessed is emitted after a full queue drain.
type PendingWithdrawalsProcessed struct {
	Currency string `json:"currency"`
	Count    int    `json:"count"`
	Total    string `json:"total"`
}

// FeesDeposited is emitted when unclaimed fees are converted into shares for
// the fee beneficiary.
type FeesDeposited struct {
	Beneficiary string `json:"beneficiary"`
	AmountUsd   string `json:"amount_usd"`
	Shares      string `json:"shares"`
}

// FeesWithdrawn is emitted when unclaimed fees are paid out directly.
type FeesWithdrawn struct {
	Beneficiary string `json:"beneficiary"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	AmountUsd   string `json:"amount_usd"`
}

// FeeRateChanged is emitted after an interest-fee rate change, including the
// snapshots taken at the boundary.
type FeeRateChanged struct {
	OldRate               string `json:"old_rate"`
	NewRate               string `json:"new_rate"`
	RawInterestAtChange   string `json:"raw_interest_at_change"`
	FeesGeneratedAtChange string `json:"fees_generated_at_change"`
}

// CurrencyExchanged is emitted after an operator currency conversion.
type CurrencyExchanged struct {
	InputCurrency  string `json:"input_currency"`
	OutputCurrency string `json:"output_currency"`
	InputConsumed  string `json:"input_consumed"`
	OutputReceived string `json:"output_received"`
	ProtocolFee    string `json:"protocol_fee"`
}

// VenueTransfer is emitted for operator capital movements between custody
// and a venue.
type VenueTransfer struct {
	Direction string `json:"direction"` // "deposit", "withdraw", "withdraw_all"
	Venue     int    `json:"venue"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount,omitempty"` // empty for withdraw_all
}

// EngineUpgraded is emitted by the predecessor once migration completes.
type EngineUpgraded struct {
	Successor   string `json:"successor"`
	NetDeposits string `json:"net_deposits"`
}
