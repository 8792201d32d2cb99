package vm

import (
	"errors"
	"fmt"
)

// ErrorCode 金库错误码，对外稳定，从 6000 开始编号
type ErrorCode uint32

const (
	CodeNotOwner ErrorCode = 6000 + iota
	CodeAlreadyInitialized
	CodeNotFound
	CodeInvalidSeeds
	CodeInvalidOwner
	CodeUnauthorized
	CodeInsufficientFunds
	CodeBelowMinimumBalance
	CodeInvalidAmount
)

// VaultError 带错误码的执行错误，会原样写进回执
type VaultError struct {
	Code   ErrorCode
	Name   string
	Msg    string
	Detail string
}

func (e *VaultError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s (%d): %s: %s", e.Name, e.Code, e.Msg, e.Detail)
}

// Is 按错误码比较，带不同 Detail 的同类错误视为相等
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	return ok && t.Code == e.Code
}

// Withf 返回附带上下文的副本，不修改包级变量
func (e *VaultError) Withf(format string, args ...interface{}) *VaultError {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

var (
	ErrNotOwner            = &VaultError{Code: CodeNotOwner, Name: "NotOwner", Msg: "You are not the owner of this vault"}
	ErrAlreadyInitialized  = &VaultError{Code: CodeAlreadyInitialized, Name: "AlreadyInitialized", Msg: "account already in use"}
	ErrNotFound            = &VaultError{Code: CodeNotFound, Name: "NotFound", Msg: "account not found"}
	ErrInvalidSeeds        = &VaultError{Code: CodeInvalidSeeds, Name: "InvalidSeeds", Msg: "seeds do not reproduce the expected address"}
	ErrInvalidOwner        = &VaultError{Code: CodeInvalidOwner, Name: "InvalidOwner", Msg: "account is not owned by the expected owner"}
	ErrUnauthorized        = &VaultError{Code: CodeUnauthorized, Name: "Unauthorized", Msg: "missing or invalid signature"}
	ErrInsufficientFunds   = &VaultError{Code: CodeInsufficientFunds, Name: "InsufficientFunds", Msg: "insufficient lamports"}
	ErrBelowMinimumBalance = &VaultError{Code: CodeBelowMinimumBalance, Name: "BelowMinimumBalance", Msg: "balance would fall below the rent-exempt minimum"}
	ErrInvalidAmount       = &VaultError{Code: CodeInvalidAmount, Name: "InvalidAmount", Msg: "amount must be positive"}
)

// AllErrors 按错误码排序的完整错误表
func AllErrors() []*VaultError {
	return []*VaultError{
		ErrNotOwner,
		ErrAlreadyInitialized,
		ErrNotFound,
		ErrInvalidSeeds,
		ErrInvalidOwner,
		ErrUnauthorized,
		ErrInsufficientFunds,
		ErrBelowMinimumBalance,
		ErrInvalidAmount,
	}
}

// AsVaultError 从错误链里取出 VaultError
func AsVaultError(err error) (*VaultError, bool) {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
