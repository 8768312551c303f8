package fund

import "errors"

// Every failure aborts the whole operation; preconditions are checked before
// any mutation, so a returned error never leaves partial state behind.
var (
	// Precondition violations
	ErrFundDisabled        = errors.New("fund disabled")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrCurrencyNotAccepted = errors.New("currency not accepted for new deposits")
	ErrCurrencyExists      = errors.New("currency already registered")
	ErrZeroAmount          = errors.New("zero amount")
	ErrDustAmount          = errors.New("amount too small to convert to shares")
	ErrBeneficiaryUnset    = errors.New("fee beneficiary unset")
	ErrExchangeUnset       = errors.New("exchange not configured")
	ErrMinterAdminUnset    = errors.New("share ledger minter admin not configured")
	ErrRateUnchanged       = errors.New("interest fee rate unchanged")

	// Authorization failures
	ErrNotOwner                = errors.New("caller is not the owner")
	ErrNotOperator             = errors.New("caller is not the operator")
	ErrUnauthorizedPredecessor = errors.New("caller is not the authorized predecessor")

	// Business-rule rejections
	ErrBalanceCapExceeded      = errors.New("holder balance cap exceeded")
	ErrInsufficientShares      = errors.New("insufficient shares")
	ErrInsufficientFundBalance = errors.New("insufficient fund balance")
	ErrZeroFundBalance         = errors.New("zero fund balance")
	ErrInsufficientLiquidity   = errors.New("insufficient on-hand liquidity")
	ErrNoFeesAvailable         = errors.New("no fees available")

	// External collaborator failures (token, share ledger, exchange)
	ErrExternalCall = errors.New("external call failed")

	// Migration guard
	ErrDataAlreadySet = errors.New("fund manager data already set")
)

// reasonLabel maps an error chain to a short label for the rejection
// counter. Unmatched errors collapse into "other" to keep cardinality
// bounded.
func reasonLabel(err error) string {
	for sentinel, label := range reasonLabels {
		if errors.Is(err, sentinel) {
			return label
		}
	}
	return "other"
}

var reasonLabels = map[error]string{
	ErrFundDisabled:            "fund_disabled",
	ErrUnknownCurrency:         "unknown_currency",
	ErrCurrencyNotAccepted:     "currency_not_accepted",
	ErrZeroAmount:              "zero_amount",
	ErrDustAmount:              "dust_amount",
	ErrBeneficiaryUnset:        "beneficiary_unset",
	ErrRateUnchanged:           "rate_unchanged",
	ErrNotOwner:                "not_owner",
	ErrNotOperator:             "not_operator",
	ErrBalanceCapExceeded:      "balance_cap_exceeded",
	ErrInsufficientShares:      "insufficient_shares",
	ErrInsufficientFundBalance: "insufficient_fund_balance",
	ErrZeroFundBalance:         "zero_fund_balance",
	ErrInsufficientLiquidity:   "insufficient_liquidity",
	ErrNoFeesAvailable:         "no_fees_available",
	ErrExternalCall:            "external_call",
}
