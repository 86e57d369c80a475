// Package receipt defines the deferred unit of work the scheduler executes:
// a single account-to-account call together with its pending dependency
// state, and the terminal classifications produced by executing it.
package receipt

import (
	"github.com/chainsim-dev/chainsim/types"
)

// Receipt is one deferred cross-account call. A receipt is born either as
// the root of a public call or as a side effect of executing another
// receipt, and is archived into the resolved-outcome table exactly once,
// when its completion becomes final.
type Receipt struct {
	ID          types.ReceiptID
	Predecessor types.AccountID
	Receiver    types.AccountID
	Method      string
	Args        []byte
	Deposit     types.Balance
	Gas         types.Gas

	// DependsOn lists the receipts whose resolved outcomes this receipt
	// waits for. Every id here was issued strictly before ID, so the
	// dependency relation is acyclic by construction; only a forward alias
	// can artificially reintroduce a cycle, which the scheduler detects
	// while following aliases.
	DependsOn []types.ReceiptID
}

// CompletionKind tags the variant of a Completion.
type CompletionKind int

const (
	// CompletionValue means the receipt returned a (possibly empty) value.
	CompletionValue CompletionKind = iota
	// CompletionForward means the receipt's result is whatever the target
	// receipt eventually produces.
	CompletionForward
	// CompletionFailed means the receipt failed with a reason.
	CompletionFailed
)

// Completion is the terminal classification produced by executing one
// receipt. Exactly one completion is produced per executed receipt.
type Completion struct {
	Kind    CompletionKind
	Value   []byte
	Forward types.ReceiptID
	Reason  string
}

// ValueCompletion returns a Completion carrying a return value.
func ValueCompletion(value []byte) Completion {
	return Completion{Kind: CompletionValue, Value: value}
}

// ForwardCompletion returns a Completion that aliases this receipt's result
// to the given target receipt.
func ForwardCompletion(target types.ReceiptID) Completion {
	return Completion{Kind: CompletionForward, Forward: target}
}

// FailedCompletion returns a failed Completion with the given reason.
func FailedCompletion(reason string) Completion {
	return Completion{Kind: CompletionFailed, Reason: reason}
}

// ResolvedOutcome is the final, alias-free outcome of a receipt: either
// successful with optional return bytes, or failed with a reason. Dependents
// of a failed receipt still become ready; the failure is surfaced to them
// through their dependency results rather than by blocking them.
type ResolvedOutcome struct {
	Successful bool
	Value      []byte
	Reason     string
}

// Successful returns a successful ResolvedOutcome carrying value.
func Successful(value []byte) ResolvedOutcome {
	return ResolvedOutcome{Successful: true, Value: value}
}

// Failed returns a failed ResolvedOutcome with the given reason.
func Failed(reason string) ResolvedOutcome {
	return ResolvedOutcome{Reason: reason}
}
