// pda/derive.go
// 程序派生地址（PDA）：sha256(seeds || programID || marker)，且结果必须不在曲线上

package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// MaxSeeds 单次派生允许的最多种子数（包含 bump）
	MaxSeeds = 16
	// MaxSeedLen 单个种子最大长度
	MaxSeedLen = 32
)

// pdaMarker 拼在哈希输入末尾，保证 PDA 与普通哈希地址不冲突
var pdaMarker = []byte("ProgramDerivedAddress")

// 种子标签
var (
	StateTag = []byte("state")
	VaultTag = []byte("vault")
)

var (
	// ErrMaxSeedLengthExceeded 种子数量或长度超限
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	// ErrInvalidSeeds 派生结果落在曲线上，不是合法 PDA
	ErrInvalidSeeds = errors.New("provided seeds do not result in a valid address")
	// ErrNoViableBump 0..255 全部尝试后仍找不到合法地址
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress 用给定的种子（已经包含 bump）计算地址。
// 不做任何搜索：结果在曲线上时直接返回 ErrInvalidSeeds。
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return Address{}, fmt.Errorf("%w: seed of %d bytes", ErrMaxSeedLengthExceeded, len(s))
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var out Address
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out[:]) {
		return Address{}, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress 从 255 往下搜索第一个可用的 bump
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedLengthExceeded
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	bumpSeed := []byte{0}
	for bump := 255; bump >= 0; bump-- {
		bumpSeed[0] = uint8(bump)
		withBump[len(seeds)] = bumpSeed
		addr, err := CreateProgramAddress(withBump, programID)
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// ========== 金库相关的种子 ==========

// StateSeeds ["state", owner]
func StateSeeds(owner Address) [][]byte {
	return [][]byte{StateTag, owner.Bytes()}
}

// VaultSeeds ["vault", owner]
func VaultSeeds(owner Address) [][]byte {
	return [][]byte{VaultTag, owner.Bytes()}
}

// WithBump 在种子末尾追加 bump，返回新切片
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// StateAddress 搜索 owner 的状态账户地址
func StateAddress(programID, owner Address) (Address, uint8, error) {
	return FindProgramAddress(StateSeeds(owner), programID)
}

// VaultAddress 搜索 owner 的金库账户地址
func VaultAddress(programID, owner Address) (Address, uint8, error) {
	return FindProgramAddress(VaultSeeds(owner), programID)
}
