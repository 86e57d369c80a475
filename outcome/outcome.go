// Package outcome models the caller-facing result of a call: one
// ReceiptOutcome per executed receipt, in issuance order, folded into a
// CallOutcome whose top-level status and return value follow the root
// receipt's resolved outcome.
package outcome

import (
	"github.com/rotisserie/eris"

	"github.com/chainsim-dev/chainsim/codec"
	"github.com/chainsim-dev/chainsim/types"
)

// StatusKind tags the variant of an ExecutionStatus.
type StatusKind int

const (
	StatusSuccess StatusKind = iota
	StatusFailure
	StatusPanic
)

// ExecutionStatus is the status of a single receipt execution.
type ExecutionStatus struct {
	Kind    StatusKind
	Message string
}

// Success returns a successful status.
func Success() ExecutionStatus {
	return ExecutionStatus{Kind: StatusSuccess}
}

// Failure returns a failed status with the given message.
func Failure(message string) ExecutionStatus {
	return ExecutionStatus{Kind: StatusFailure, Message: message}
}

// Panic returns a panicked status with the given message.
func Panic(message string) ExecutionStatus {
	return ExecutionStatus{Kind: StatusPanic, Message: message}
}

func (s ExecutionStatus) IsSuccess() bool {
	return s.Kind == StatusSuccess
}

func (s ExecutionStatus) IsFailure() bool {
	return !s.IsSuccess()
}

// ReceiptOutcome is the read-only record of one executed receipt.
type ReceiptOutcome struct {
	ID          types.ReceiptID
	Predecessor types.AccountID
	Receiver    types.AccountID
	Method      string
	Args        []byte
	Deposit     types.Balance
	GasUsed     types.Gas
	Status      ExecutionStatus
	Logs        []string
	ReturnValue []byte
	// Mocked marks receipts answered by a registered mock handler instead
	// of the executor.
	Mocked bool
}

func (r *ReceiptOutcome) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// CallOutcome is the complete result of one top-level call: every receipt
// executed during the run, in issuance order (which equals execution order),
// plus the root receipt's final status and return value after following any
// forward aliases.
type CallOutcome struct {
	receipts     []ReceiptOutcome
	success      bool
	returnValue  []byte
	failureMsg   string
	totalGasUsed types.Gas
}

// New builds a CallOutcome. receipts must be in issuance order; success,
// returnValue and failureMsg describe the root receipt's resolved outcome.
func New(receipts []ReceiptOutcome, success bool, returnValue []byte, failureMsg string) *CallOutcome {
	var total types.Gas
	for i := range receipts {
		total += receipts[i].GasUsed
	}
	return &CallOutcome{
		receipts:     receipts,
		success:      success,
		returnValue:  returnValue,
		failureMsg:   failureMsg,
		totalGasUsed: total,
	}
}

// IsSuccess reports whether the root receipt resolved successfully.
func (c *CallOutcome) IsSuccess() bool {
	return c.success
}

func (c *CallOutcome) IsFailure() bool {
	return !c.success
}

// ReturnValue is the root receipt's resolved return value, after following
// forward aliases.
func (c *CallOutcome) ReturnValue() []byte {
	return c.returnValue
}

// JSON decodes the return value into a T.
func JSON[T any](c *CallOutcome) (T, error) {
	if c.returnValue == nil {
		var zero T
		return zero, eris.New("call outcome has no return value")
	}
	return codec.Decode[T](c.returnValue)
}

// Receipts returns every executed receipt in issuance order.
func (c *CallOutcome) Receipts() []ReceiptOutcome {
	return c.receipts
}

// Root returns the root receipt's outcome.
func (c *CallOutcome) Root() *ReceiptOutcome {
	if len(c.receipts) == 0 {
		return nil
	}
	return &c.receipts[0]
}

// Logs returns every log line from every receipt, in execution order.
func (c *CallOutcome) Logs() []string {
	var logs []string
	for i := range c.receipts {
		logs = append(logs, c.receipts[i].Logs...)
	}
	return logs
}

// GasUsed is the total gas consumed across all receipts.
func (c *CallOutcome) GasUsed() types.Gas {
	return c.totalGasUsed
}

// Error returns the failure message of the root receipt's resolved outcome,
// or the first failed receipt's message when the root itself succeeded but
// a branch failed. Empty when nothing failed.
func (c *CallOutcome) Error() string {
	if !c.success && c.failureMsg != "" {
		return c.failureMsg
	}
	for i := range c.receipts {
		if c.receipts[i].Status.IsFailure() {
			return c.receipts[i].Status.Message
		}
	}
	return ""
}
