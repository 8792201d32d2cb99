package pda

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

type derived struct {
	addr Address
	bump uint8
}

// Cache 缓存 FindProgramAddress 的结果。
// 只用来定位规范地址；权限校验仍然用存储的 bump 重新计算。
type Cache struct {
	programID Address
	entries   *lru.Cache
}

// NewCache 创建派生缓存，size<=0 时使用 4096
func NewCache(programID Address, size int) *Cache {
	if size <= 0 {
		size = 4096
	}
	entries, _ := lru.New(size)
	return &Cache{programID: programID, entries: entries}
}

func cacheKey(seeds [][]byte) string {
	var sb strings.Builder
	for _, s := range seeds {
		sb.WriteByte(byte(len(s)))
		sb.Write(s)
	}
	return sb.String()
}

// Find 与 FindProgramAddress 相同，命中缓存时跳过搜索
func (c *Cache) Find(seeds [][]byte) (Address, uint8, error) {
	key := cacheKey(seeds)
	if v, ok := c.entries.Get(key); ok {
		d := v.(derived)
		return d.addr, d.bump, nil
	}
	addr, bump, err := FindProgramAddress(seeds, c.programID)
	if err != nil {
		return Address{}, 0, err
	}
	c.entries.Add(key, derived{addr: addr, bump: bump})
	return addr, bump, nil
}

// State owner 的状态账户
func (c *Cache) State(owner Address) (Address, uint8, error) {
	return c.Find(StateSeeds(owner))
}

// Vault owner 的金库账户
func (c *Cache) Vault(owner Address) (Address, uint8, error) {
	return c.Find(VaultSeeds(owner))
}

// ProgramID 缓存绑定的程序 ID
func (c *Cache) ProgramID() Address {
	return c.programID
}

// Len 当前缓存条目数
func (c *Cache) Len() int {
	return c.entries.Len()
}
