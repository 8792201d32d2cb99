package vm

import (
	"pdavault/pda"
)

// RegisterDefaultHandlers 注册金库的四个交易处理器
func RegisterDefaultHandlers(reg *HandlerRegistry, programID pda.Address, rent Rent) error {
	return registerVaultHandlers(reg, pda.NewCache(programID, 0), rent)
}

func registerVaultHandlers(reg *HandlerRegistry, derive *pda.Cache, rent Rent) error {
	base := vaultHandlerBase{ProgramID: derive.ProgramID(), Rent: rent, Derive: derive}

	handlers := []TxHandler{
		&InitializeTxHandler{base}, // 创建金库
		&DepositTxHandler{base},    // 存入
		&WithdrawTxHandler{base},   // 取出
		&CloseTxHandler{base},      // 关闭并退还全部余额
	}

	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
