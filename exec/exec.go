// Package exec defines the boundary between the scheduler and whatever
// actually runs contract code. The scheduler hands an Executor one receipt
// plus a snapshot of its receiver account; the executor hands back a typed
// description of everything the execution did: spawned receipts, a single
// completion, logs, gas and proposed storage mutations. Nothing is ever
// parsed out of a text log.
//
// FuncExecutor, the default implementation, runs contract methods written as
// plain Go functions. Any other implementation (a wasm runtime, a remote
// service) can be substituted through the same interface.
package exec

import (
	"context"

	"github.com/chainsim-dev/chainsim/receipt"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

// BlockInfo is the chain metadata forwarded verbatim into every execution.
// The scheduler never interprets these values.
type BlockInfo struct {
	Height      uint64
	Timestamp   uint64
	EpochHeight uint64
}

// Request is everything an Executor gets to see for one receipt.
type Request struct {
	Receiver    types.AccountID
	Predecessor types.AccountID
	Method      string
	Args        []byte
	Deposit     types.Balance
	Gas         types.Gas

	// Snapshot is a copy of the receiver account at dispatch time. Mutating
	// it has no effect on the store; changes are proposed via
	// Result.Mutations instead.
	Snapshot state.AccountState

	// DepResults holds the resolved outcomes of the receipt's dependencies,
	// in dependency-list order. Failed dependencies appear here as failed
	// outcomes; they do not prevent execution.
	DepResults []receipt.ResolvedOutcome

	Block BlockInfo

	// ViewOnly marks a view invocation. A view execution must not propose
	// mutations or spawn actions; the scheduler treats either as a fatal
	// protocol violation.
	ViewOnly bool
}

// CompletionKind tags the variant of a Completion.
type CompletionKind int

const (
	// Value: the execution returned a (possibly empty) value.
	Value CompletionKind = iota
	// ForwardAction: the execution's result is whatever the receipt spawned
	// by the referenced CreateReceipt action eventually produces.
	ForwardAction
	// Failed: the execution failed.
	Failed
)

// Completion is the executor-level terminal classification of one
// execution. A forward refers to a CreateReceipt action by its index in
// Result.Actions; the scheduler translates that index into the receipt id it
// issues for the action.
type Completion struct {
	Kind   CompletionKind
	Value  []byte
	Action int
	Reason string
	// Panicked distinguishes an application panic from an ordinary failure
	// when Kind is Failed.
	Panicked bool
}

// ValueCompletion returns a Completion carrying a return value.
func ValueCompletion(value []byte) Completion {
	return Completion{Kind: Value, Value: value}
}

// ForwardCompletion returns a Completion forwarding to the CreateReceipt
// action at the given index.
func ForwardCompletion(actionIndex int) Completion {
	return Completion{Kind: ForwardAction, Action: actionIndex}
}

// FailedCompletion returns an ordinary failure.
func FailedCompletion(reason string) Completion {
	return Completion{Kind: Failed, Reason: reason}
}

// PanicCompletion returns a failure caused by an application panic.
func PanicCompletion(reason string) Completion {
	return Completion{Kind: Failed, Reason: reason, Panicked: true}
}

// Result is the structured product of executing one receipt.
type Result struct {
	// Actions the execution requested, in emission order.
	Actions []Action
	// Completion is the single terminal classification of this execution.
	Completion Completion
	// Logs emitted during execution, in emission order.
	Logs []string
	// GasUsed is the gas this execution consumed.
	GasUsed types.Gas
	// Mutations are the proposed storage changes. They are committed
	// atomically on a Value or ForwardAction completion and discarded
	// entirely on a Failed completion.
	Mutations []state.Mutation
}

// Executor runs one receipt against a receiver snapshot.
//
// A returned error is treated as a failure of that receipt, not of the whole
// run; the scheduler records it as a failed outcome and keeps going.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
