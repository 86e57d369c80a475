package exec

import (
	"fmt"
	"sort"

	"github.com/chainsim-dev/chainsim/receipt"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

// PromiseIndex identifies a receipt spawned during the current execution, in
// spawn order. It is only meaningful inside that execution.
type PromiseIndex int

// Call describes a receipt to spawn from inside a contract method.
type Call struct {
	Receiver types.AccountID
	Method   string
	Args     []byte
	Deposit  types.Balance
	// Gas attached to the spawned receipt. Zero means inherit the executing
	// receipt's gas.
	Gas types.Gas
	// After lists previously spawned receipts whose resolved outcomes the
	// new receipt waits for: empty for a fire-and-forget call, one entry
	// for a continuation, several for a joint wait.
	After []PromiseIndex
}

// envPanic carries a deliberate contract panic through the recover in
// FuncExecutor.
type envPanic struct {
	msg string
}

// Env is the world a contract method sees while it runs: its receiver's
// storage (read-your-writes, staged until commit), the call input, the
// resolved results of its dependencies, and the ability to emit logs, spawn
// receipts and set the return value.
type Env struct {
	req Request

	overlay map[string][]byte
	deleted map[string]bool

	logs       []string
	actions    []Action
	created    []int // indices into actions that are CreateReceipt
	gasUsed    types.Gas
	completion *Completion
}

func newEnv(req Request) *Env {
	return &Env{
		req:     req,
		overlay: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Receiver is the account this method executes on behalf of.
func (e *Env) Receiver() types.AccountID { return e.req.Receiver }

// Predecessor is the account that issued this call.
func (e *Env) Predecessor() types.AccountID { return e.req.Predecessor }

// Input is the raw argument bytes attached to the call.
func (e *Env) Input() []byte { return e.req.Args }

// Deposit is the balance attached to the call.
func (e *Env) Deposit() types.Balance { return e.req.Deposit }

// PrepaidGas is the gas budget attached to the call.
func (e *Env) PrepaidGas() types.Gas { return e.req.Gas }

// Balance is the receiver's balance at dispatch time.
func (e *Env) Balance() types.Balance { return e.req.Snapshot.Balance }

func (e *Env) BlockHeight() uint64    { return e.req.Block.Height }
func (e *Env) BlockTimestamp() uint64 { return e.req.Block.Timestamp }
func (e *Env) EpochHeight() uint64    { return e.req.Block.EpochHeight }

// DepCount is the number of dependencies attached to this receipt.
func (e *Env) DepCount() int { return len(e.req.DepResults) }

// DepResult returns the resolved outcome of the i'th dependency. A failed
// dependency is returned as a failed outcome; it does not stop execution.
func (e *Env) DepResult(i int) (receipt.ResolvedOutcome, bool) {
	if i < 0 || i >= len(e.req.DepResults) {
		return receipt.ResolvedOutcome{}, false
	}
	return e.req.DepResults[i], true
}

// StorageRead returns the value under key, observing writes staged earlier
// in this execution.
func (e *Env) StorageRead(key []byte) ([]byte, bool) {
	k := string(key)
	if e.deleted[k] {
		return nil, false
	}
	if v, ok := e.overlay[k]; ok {
		return v, true
	}
	v, ok := e.req.Snapshot.Storage[k]
	return v, ok
}

// StorageWrite stages a write of value under key. Staged writes are
// committed atomically if the execution completes successfully and
// discarded entirely otherwise.
func (e *Env) StorageWrite(key, value []byte) {
	k := string(key)
	cp := make([]byte, len(value))
	copy(cp, value)
	e.overlay[k] = cp
	delete(e.deleted, k)
}

// StorageRemove stages a delete of the entry under key.
func (e *Env) StorageRemove(key []byte) {
	k := string(key)
	e.deleted[k] = true
	delete(e.overlay, k)
}

// Log records a log line on this execution's outcome.
func (e *Env) Log(msg string) {
	e.logs = append(e.logs, msg)
}

// Logf records a formatted log line.
func (e *Env) Logf(format string, args ...any) {
	e.logs = append(e.logs, fmt.Sprintf(format, args...))
}

// UseGas charges additional gas against this execution.
func (e *Env) UseGas(amount types.Gas) {
	e.gasUsed += amount
}

// Spawn requests a new receipt and returns its promise index for use in
// later After lists or in ReturnForward. Spawning with an out-of-range
// After entry panics the execution.
func (e *Env) Spawn(c Call) PromiseIndex {
	dependsOn := make([]int, 0, len(c.After))
	for _, p := range c.After {
		if int(p) < 0 || int(p) >= len(e.created) {
			e.Panic(fmt.Sprintf("unknown promise index %d", p))
		}
		dependsOn = append(dependsOn, e.created[p])
	}
	gas := c.Gas
	if gas == 0 {
		gas = e.req.Gas
	}
	e.actions = append(e.actions, CreateReceipt{
		Receiver:  c.Receiver,
		Method:    c.Method,
		Args:      c.Args,
		Deposit:   c.Deposit,
		Gas:       gas,
		DependsOn: dependsOn,
	})
	e.created = append(e.created, len(e.actions)-1)
	return PromiseIndex(len(e.created) - 1)
}

// Transfer requests a balance transfer from the receiver to another
// account, applied only if the execution completes successfully.
func (e *Env) Transfer(to types.AccountID, amount types.Balance) {
	e.actions = append(e.actions, Transfer{Receiver: to, Amount: amount})
}

// Return sets the execution's return value. Calling it again overwrites the
// previous value.
func (e *Env) Return(value []byte) {
	c := ValueCompletion(value)
	e.completion = &c
}

// ReturnForward declares that this execution's result is whatever the
// spawned receipt at p eventually produces.
func (e *Env) ReturnForward(p PromiseIndex) {
	if int(p) < 0 || int(p) >= len(e.created) {
		e.Panic(fmt.Sprintf("unknown promise index %d", p))
	}
	c := ForwardCompletion(e.created[p])
	e.completion = &c
}

// Panic aborts the execution with the given message. All staged storage
// writes and spawned receipts are discarded.
func (e *Env) Panic(msg string) {
	panic(envPanic{msg: msg})
}

// finalCompletion is the completion the method produced, defaulting to an
// empty value when neither Return nor ReturnForward was called.
func (e *Env) finalCompletion() Completion {
	if e.completion != nil {
		return *e.completion
	}
	return ValueCompletion(nil)
}

// stagedMutations converts the overlay into a mutation set for the
// receiver, in deterministic key order.
func (e *Env) stagedMutations() []state.Mutation {
	keys := make([]string, 0, len(e.overlay)+len(e.deleted))
	for k := range e.overlay {
		keys = append(keys, k)
	}
	for k := range e.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mutations := make([]state.Mutation, 0, len(keys))
	for _, k := range keys {
		if e.deleted[k] {
			mutations = append(mutations, state.Mutation{
				Account: e.req.Receiver,
				Key:     []byte(k),
				Delete:  true,
			})
			continue
		}
		mutations = append(mutations, state.Mutation{
			Account: e.req.Receiver,
			Key:     []byte(k),
			Value:   e.overlay[k],
		})
	}
	return mutations
}
