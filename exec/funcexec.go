package exec

import (
	"context"
	"fmt"

	"github.com/chainsim-dev/chainsim/types"
)

// BaseGas is the fixed gas charged for dispatching one execution through
// the FuncExecutor, before any UseGas charges made by the method itself.
const BaseGas types.Gas = 2_500_000_000

// MethodFunc is one contract method written as a Go function. Returning an
// error fails the receipt; calling Env.Panic (or panicking) fails it with a
// panic status.
type MethodFunc func(env *Env) error

// Contract maps method names to their implementations.
type Contract map[string]MethodFunc

var _ Executor = &FuncExecutor{}

// FuncExecutor runs contract methods written as Go functions. The code blob
// deployed to an account is interpreted as the name of a contract
// registered here, so the same contract can be deployed to any number of
// accounts.
type FuncExecutor struct {
	contracts map[string]Contract
}

func NewFuncExecutor() *FuncExecutor {
	return &FuncExecutor{
		contracts: make(map[string]Contract),
	}
}

// RegisterContract makes the contract deployable under the given name.
// Registering the same name again overwrites the previous contract.
func (f *FuncExecutor) RegisterContract(name string, contract Contract) {
	f.contracts[name] = contract
}

// Execute runs one receipt. Failures of the contract itself are reported
// through the result's completion, never through the error return.
func (f *FuncExecutor) Execute(_ context.Context, req Request) (*Result, error) {
	if len(req.Snapshot.Code) == 0 {
		return failedResult(FailedCompletion(
			fmt.Sprintf("contract not found at account '%s'", req.Receiver)), nil), nil
	}
	contract, ok := f.contracts[string(req.Snapshot.Code)]
	if !ok {
		return failedResult(FailedCompletion(
			fmt.Sprintf("contract not found at account '%s': no contract registered as %q",
				req.Receiver, string(req.Snapshot.Code))), nil), nil
	}
	method, ok := contract[req.Method]
	if !ok {
		return failedResult(FailedCompletion(
			fmt.Sprintf("method '%s' not found in contract '%s'", req.Method, req.Receiver)), nil), nil
	}

	env := newEnv(req)
	completion := runMethod(method, env)

	if completion.Kind == Failed {
		// A failed execution reports nothing but its logs and gas; staged
		// writes and spawned receipts are dropped here so the scheduler
		// only ever sees effects it may commit.
		return failedResult(completion, env), nil
	}

	return &Result{
		Actions:    env.actions,
		Completion: completion,
		Logs:       env.logs,
		GasUsed:    BaseGas + env.gasUsed,
		Mutations:  env.stagedMutations(),
	}, nil
}

// runMethod invokes the method and converts errors and panics into
// completions.
func runMethod(method MethodFunc, env *Env) (completion Completion) {
	defer func() {
		if r := recover(); r != nil {
			if ep, ok := r.(envPanic); ok {
				completion = PanicCompletion(ep.msg)
				return
			}
			completion = PanicCompletion(fmt.Sprintf("%v", r))
		}
	}()

	if err := method(env); err != nil {
		return FailedCompletion(err.Error())
	}
	return env.finalCompletion()
}

func failedResult(completion Completion, env *Env) *Result {
	res := &Result{
		Completion: completion,
		GasUsed:    BaseGas,
	}
	if env != nil {
		res.Logs = env.logs
		res.GasUsed += env.gasUsed
	}
	return res
}
