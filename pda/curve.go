package pda

import (
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

// 只用到点的解码，不做任何群运算
var edSuite = edwards25519.NewBlakeSHA256Ed25519()

// IsOnCurve 判断 32 字节是否能解码成 edwards25519 曲线上的点。
// 在曲线上的地址可能存在对应私钥，不能作为程序派生地址。
func IsOnCurve(b []byte) bool {
	if len(b) != AddressSize {
		return false
	}
	p := edSuite.Point()
	return p.UnmarshalBinary(b) == nil
}
