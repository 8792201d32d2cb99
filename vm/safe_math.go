package vm

import (
	"errors"
	"math/bits"
)

// safe_math.go 提供带溢出检查的 lamports 运算

var (
	// ErrOverflow 加法溢出错误
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrUnderflow 减法下溢错误（结果为负数）
	ErrUnderflow = errors.New("arithmetic underflow")
)

// SafeAdd 安全加法：a + b
func SafeAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SafeSub 安全减法：a - b
func SafeSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}
