package vault

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups the vault's registered error codes.
const Codespace = "shield_vault"

// Code 1 is reserved by the errors registry for internal errors.
var (
	ErrNotInitialized        = errorsmod.Register(Codespace, 2, "vault not initialized")
	ErrAlreadyInitialized    = errorsmod.Register(Codespace, 3, "vault already initialized")
	ErrNegativeAmount        = errorsmod.Register(Codespace, 4, "negative amount")
	ErrUnauthorized          = errorsmod.Register(Codespace, 5, "unauthorized")
	ErrNoStrategies          = errorsmod.Register(Codespace, 6, "no strategies registered")
	ErrInvalidAmount         = errorsmod.Register(Codespace, 7, "amount must be positive")
	ErrInsufficientShares    = errorsmod.Register(Codespace, 8, "insufficient shares")
	ErrDepositCapExceeded    = errorsmod.Register(Codespace, 9, "deposit cap exceeded")
	ErrWithdrawCapExceeded   = errorsmod.Register(Codespace, 10, "withdrawal cap exceeded")
	ErrContractPaused        = errorsmod.Register(Codespace, 11, "vault paused")
	ErrStaleOracleData       = errorsmod.Register(Codespace, 12, "stale oracle data")
	ErrInvalidTimestamp      = errorsmod.Register(Codespace, 13, "invalid oracle timestamp")
	ErrSlippageExceeded      = errorsmod.Register(Codespace, 14, "rebalance slippage exceeded")
	ErrProposalNotFound      = errorsmod.Register(Codespace, 15, "proposal not found")
	ErrAlreadyApproved       = errorsmod.Register(Codespace, 16, "proposal already approved by guardian")
	ErrProposalExecuted      = errorsmod.Register(Codespace, 17, "proposal already executed")
	ErrTimelockNotElapsed    = errorsmod.Register(Codespace, 18, "timelock not elapsed")
	ErrInsufficientApprovals = errorsmod.Register(Codespace, 19, "insufficient approvals")
	ErrAlreadyRegistered     = errorsmod.Register(Codespace, 20, "strategy already registered")
	ErrWithdrawalNotFound    = errorsmod.Register(Codespace, 21, "queued withdrawal not found")
	ErrVersionMismatch       = errorsmod.Register(Codespace, 22, "storage layout version mismatch")
	ErrNotGuardian           = errorsmod.Register(Codespace, 23, "caller is not a guardian")
	ErrInvalidThreshold      = errorsmod.Register(Codespace, 24, "invalid approval threshold")
	ErrStrategyNotFound      = errorsmod.Register(Codespace, 25, "strategy not registered")
	ErrBelowQueueThreshold   = errorsmod.Register(Codespace, 26, "withdrawal below queue threshold")
	ErrArithmeticOverflow    = errorsmod.Register(Codespace, 27, "arithmetic overflow")
	ErrInvalidVersion        = errorsmod.Register(Codespace, 28, "invalid migration version")
	ErrInvalidAllocation     = errorsmod.Register(Codespace, 29, "invalid target allocation")
	ErrGuardianExists        = errorsmod.Register(Codespace, 30, "guardian already registered")
	ErrZeroShares            = errorsmod.Register(Codespace, 31, "deposit too small to mint shares")
	ErrInvalidFee            = errorsmod.Register(Codespace, 32, "fee exceeds 10000 basis points")
	ErrStrategyCall          = errorsmod.Register(Codespace, 33, "strategy call failed")
	ErrTransferFailed        = errorsmod.Register(Codespace, 34, "asset transfer failed")
	ErrInvalidAction         = errorsmod.Register(Codespace, 35, "invalid governance action")
)

// Code returns the registered code of err. Unregistered errors report the
// registry's internal code 1.
func Code(err error) uint32 {
	_, code, _ := errorsmod.ABCIInfo(err, false)
	return code
}
