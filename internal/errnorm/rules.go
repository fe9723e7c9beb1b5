package errnorm

import (
	"errors"
	"strings"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// rule maps a lower-cased message to a display result. Rules are evaluated
// in slice order and the first match wins.
type rule struct {
	name   string
	match  func(lower string) bool
	result Normalized
}

// sentinelRule classifies errors raised by this client before any keyword
// matching happens.
type sentinelRule struct {
	target error
	result Normalized
}

var sentinelRules = []sentinelRule{
	{domain.ErrFundsUnknown, Normalized{
		Title:   "Checking Balance",
		Message: "Your USDC balance and allowance are still loading.",
		Details: "Please wait a moment and try again.",
	}},
	{domain.ErrApprovalPending, Normalized{
		Title:   "Approval In Progress",
		Message: "A USDC approval transaction is already waiting for confirmation.",
		Details: "Wait for the pending approval to confirm before submitting another one.",
	}},
	{domain.ErrMarketClosed, Normalized{
		Title:   "Market Not Available",
		Message: "This market is closed and no longer accepting orders.",
	}},
	{domain.ErrMarketInactive, Normalized{
		Title:   "Market Not Available",
		Message: "This market is not active. Orders cannot be placed at this time.",
	}},
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func anyOf(subs ...string) func(string) bool {
	return func(s string) bool { return containsAny(s, subs...) }
}

func allOf(subs ...string) func(string) bool {
	return func(s string) bool { return containsAll(s, subs...) }
}

// notCancellable matches a not-cancellable message whose remainder (with the
// trigger phrase removed) names the given status word.
func notCancellable(status string) func(string) bool {
	return func(s string) bool {
		if !containsAny(s, "cannot be cancelled", "not cancellable") {
			return false
		}
		if status == "" {
			return true
		}
		rest := strings.NewReplacer("cannot be cancelled", "", "not cancellable", "").Replace(s)
		return strings.Contains(rest, status)
	}
}

// rules is the ordered classification table. Several entries overlap, so the
// order is part of the contract and is covered by tests.
var rules = []rule{
	{"system_wallet_gas", allOf("insufficient funds", "intrinsic transaction cost"), Normalized{
		Title:   "System Wallet Has Insufficient Balance",
		Message: "The server wallet needs MATIC (Polygon's native token) to pay for transaction gas fees.",
		Details: "Please fund the server wallet with MATIC to continue processing orders.",
		Action:  "Contact support or check server wallet balance",
	}},
	{"insufficient_gas", func(s string) bool {
		return containsAny(s, "insufficient funds", "insufficient_funds") && containsAny(s, "matic", "gas")
	}, Normalized{
		Title:   "Insufficient MATIC for Gas",
		Message: "Not enough MATIC to pay for transaction gas fees.",
		Details: "Please add MATIC to your wallet to continue.",
	}},
	{"insufficient_funds", anyOf("insufficient funds", "insufficient_funds"), Normalized{
		Title:   "Insufficient Funds",
		Message: "You don't have enough funds to complete this transaction.",
	}},
	{"insufficient_allowance", anyOf("insufficient allowance"), Normalized{
		Title:   "Insufficient USDC Allowance",
		Message: "You need to approve USDC spending before placing this order.",
		Details: `Click "Approve USDC Spending" to grant permission.`,
		Action:  "Approve USDC Spending",
	}},
	{"insufficient_balance", anyOf("insufficient usdc balance", "insufficient balance"), Normalized{
		Title:   "Insufficient USDC Balance",
		Message: "You don't have enough USDC to complete this order.",
		Details: "Please add USDC to your wallet.",
	}},
	{"user_rejected", anyOf("user rejected", "user denied", "rejected", "denied transaction"), Normalized{
		Title:   "Transaction Rejected",
		Message: "You rejected the transaction in your wallet.",
		Details: "No changes were made.",
	}},
	{"network", anyOf("network", "rpc", "connection"), Normalized{
		Title:   "Network Error",
		Message: "Unable to connect to the blockchain network.",
		Details: "Please check your internet connection and try again.",
	}},
	{"timeout", anyOf("timeout", "timed out"), Normalized{
		Title:   "Transaction Timeout",
		Message: "The transaction took too long to complete.",
		Details: "Please try again. The transaction may still be processing.",
	}},
	{"order_not_found", allOf("order", "not found"), Normalized{
		Title:   "Order Not Found",
		Message: "The order you are looking for could not be found.",
		Details: "The order may have been deleted or the ID may be incorrect. Please check the order ID and try again.",
	}},
	{"market_not_found", allOf("market", "not found"), Normalized{
		Title:   "Market Not Found",
		Message: "The market you are looking for could not be found.",
		Details: "The market may have been removed or the ID may be incorrect.",
	}},
	{"market_unavailable", anyOf("market not active", "market is closed"), Normalized{
		Title:   "Market Not Available",
		Message: "This market is not currently accepting orders.",
		Details: "The market may be closed or inactive.",
	}},
	{"cancel_filled", notCancellable("filled"), Normalized{
		Title:   "Order Already Filled",
		Message: "This order has already been filled and cannot be cancelled.",
		Details: "Filled orders cannot be cancelled. If you need to close your position, you can place an opposite order.",
	}},
	{"cancel_cancelled", notCancellable("cancelled"), Normalized{
		Title:   "Order Already Cancelled",
		Message: "This order has already been cancelled.",
	}},
	{"cancel_failed", notCancellable("failed"), Normalized{
		Title:   "Order Failed",
		Message: "This order has failed and cannot be cancelled.",
		Details: "Failed orders are already in a final state.",
	}},
	{"cancel_processing", notCancellable("processing"), Normalized{
		Title:   "Order Being Processed",
		Message: "This order is currently being processed and cannot be cancelled.",
		Details: "Please wait for the order to complete or fail.",
	}},
	{"cancel_other", notCancellable(""), Normalized{
		Title:   "Cannot Cancel Order",
		Message: "This order cannot be cancelled in its current state.",
		Details: "Only pending or queued orders can be cancelled.",
	}},
	{"signature", anyOf("signature"), Normalized{
		Title:   "Signature Error",
		Message: "There was an issue with the transaction signature.",
		Details: "Please try again or reconnect your wallet.",
	}},
	{"wallet_connect", allOf("wallet", "connect"), Normalized{
		Title:   "Wallet Connection Error",
		Message: "Unable to connect to your wallet.",
		Details: "Please make sure your wallet is unlocked and try again.",
	}},
	{"server_error", anyOf("api", "server error"), Normalized{
		Title:   "Server Error",
		Message: "An error occurred while processing your request.",
		Details: "Please try again in a few moments.",
	}},
}

// RuleNames returns the classification table's rule names in evaluation
// order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func classify(message string) (Normalized, bool) {
	lower := strings.ToLower(message)
	for _, r := range rules {
		if r.match(lower) {
			return r.result, true
		}
	}
	return Normalized{}, false
}

func classifySentinel(err error) (Normalized, bool) {
	for _, r := range sentinelRules {
		if errors.Is(err, r.target) {
			return r.result, true
		}
	}
	return Normalized{}, false
}
