package db

type WriteTask struct {
	Key   []byte
	Value []byte
	Op    WriteOp // OpSet / OpDelete
}

type WriteOp int

const (
	OpSet WriteOp = iota
	OpDelete
)

func (op WriteOp) String() string {
	if op == OpDelete {
		return "del"
	}
	return "set"
}
