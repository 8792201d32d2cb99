package vm

import (
	"pdavault/config"

	"github.com/shopspring/decimal"
)

// Rent 免租金门槛：(固定开销 + 数据长度) * 每字节年租 * 免租年数
type Rent struct {
	LamportsPerByteYear    uint64
	ExemptionThreshold     float64
	AccountStorageOverhead uint64
}

// DefaultRent 与主网参数一致：0 字节账户门槛 890880 lamports
func DefaultRent() Rent {
	return RentFromConfig(config.DefaultConfig().Rent)
}

func RentFromConfig(c config.RentConfig) Rent {
	return Rent{
		LamportsPerByteYear:    c.LamportsPerByteYear,
		ExemptionThreshold:     c.ExemptionThreshold,
		AccountStorageOverhead: c.AccountStorageOverhead,
	}
}

// MinimumBalance 向下取整
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	size := decimal.NewFromInt(int64(r.AccountStorageOverhead + dataLen))
	perYear := size.Mul(decimal.NewFromInt(int64(r.LamportsPerByteYear)))
	threshold := perYear.Mul(decimal.NewFromFloat(r.ExemptionThreshold)).Floor()
	return uint64(threshold.IntPart())
}

// IsExempt 余额是否达到门槛
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
