package vm

import (
	"pdavault/pda"
	"pdavault/types"
)

// SigningCapability 由精确的派生种子换来的签名能力。
// PDA 没有私钥，只有给出 (种子 + bump) 才能让运行时替它“签名”。
// 只在一笔交易内使用，不落库。
type SigningCapability struct {
	program pda.Address
	addr    pda.Address
	seeds   [][]byte
}

// DeriveSigner seeds 必须已经带上 bump
func DeriveSigner(programID pda.Address, seeds [][]byte) (SigningCapability, error) {
	addr, err := pda.CreateProgramAddress(seeds, programID)
	if err != nil {
		return SigningCapability{}, ErrInvalidSeeds.Withf("%v", err)
	}
	cp := make([][]byte, len(seeds))
	for i, s := range seeds {
		cp[i] = append([]byte(nil), s...)
	}
	return SigningCapability{program: programID, addr: addr, seeds: cp}, nil
}

// Address 该能力可以代表的地址
func (c SigningCapability) Address() pda.Address {
	return c.addr
}

// IsZero 未初始化的能力不能授权任何东西
func (c SigningCapability) IsZero() bool {
	return len(c.seeds) == 0
}

// verify 运行时消费能力时重新计算一次，防止构造出来的能力被改动
func (c SigningCapability) verify(programID, want pda.Address) error {
	if c.IsZero() {
		return ErrUnauthorized.Withf("no signer seeds for %s", want)
	}
	if c.program != programID {
		return ErrInvalidSeeds.Withf("seeds minted for program %s", c.program)
	}
	addr, err := pda.CreateProgramAddress(c.seeds, programID)
	if err != nil {
		return ErrInvalidSeeds.Withf("%v", err)
	}
	if addr != want {
		return ErrInvalidSeeds.Withf("seeds derive %s, not %s", addr, want)
	}
	return nil
}

// AuthorizeOwner 直接签名检查：签名有效，且签名者就是 owner
func AuthorizeOwner(tx *types.VaultTx) error {
	if !tx.VerifySignature() {
		return ErrUnauthorized.Withf("signature by %s does not verify", tx.Signer)
	}
	if tx.Signer != tx.Owner {
		return ErrNotOwner.Withf("signer %s, owner %s", tx.Signer, tx.Owner)
	}
	return nil
}
