package repository

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrUsernameExists      = errors.New("username already exists")
	ErrRoomNotFound        = errors.New("room not found")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMiniAppNotFound     = errors.New("mini app not found")

	// ErrInsufficientFunds is returned when a conditional debit touches
	// zero rows: the balance dropped below the debited total between the
	// caller's read and the write.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTerminalTransaction is returned when a status write targets a
	// transaction already in a terminal state.
	ErrTerminalTransaction = errors.New("transaction already in terminal state")
)
