package exec

import (
	"github.com/chainsim-dev/chainsim/types"
)

// Action is one side effect an execution requests from the scheduler.
// Variants are a closed set; the scheduler switches on the concrete type.
type Action interface {
	isAction()
}

// CreateReceipt asks the scheduler to issue a new receipt calling
// Receiver.Method. DependsOn lists indices of earlier CreateReceipt actions
// in the same Result whose resolved outcomes the new receipt waits for:
// empty for a fire-and-forget call, one entry for a continuation, several
// for a joint wait.
type CreateReceipt struct {
	Receiver  types.AccountID
	Method    string
	Args      []byte
	Deposit   types.Balance
	Gas       types.Gas
	DependsOn []int
}

// Transfer moves Amount from the executing receipt's receiver to another
// account. Applied only if the receipt completes successfully.
type Transfer struct {
	Receiver types.AccountID
	Amount   types.Balance
}

func (CreateReceipt) isAction() {}
func (Transfer) isAction()      {}
