package exec_test

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/chainsim-dev/chainsim/assert"
	"github.com/chainsim-dev/chainsim/exec"
	"github.com/chainsim-dev/chainsim/receipt"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

func newExecutor(methods exec.Contract) *exec.FuncExecutor {
	executor := exec.NewFuncExecutor()
	executor.RegisterContract("testapp", methods)
	return executor
}

func request(method string, args []byte) exec.Request {
	return exec.Request{
		Receiver:    "app",
		Predecessor: "alice",
		Method:      method,
		Args:        args,
		Gas:         types.DefaultGas,
		Snapshot: state.AccountState{
			Balance: 1000,
			Storage: map[string][]byte{"existing": []byte("old")},
			Code:    []byte("testapp"),
		},
		Block: exec.BlockInfo{Height: 1, Timestamp: 0, EpochHeight: 1},
	}
}

func TestReturnValue(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"greet": func(env *exec.Env) error {
			env.Log("greeting " + string(env.Input()))
			env.Return([]byte("hello " + string(env.Input())))
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("greet", []byte("alice")))
	assert.NilError(t, err)
	assert.Equal(t, exec.Value, res.Completion.Kind)
	assert.Equal(t, "hello alice", string(res.Completion.Value))
	assert.DeepEqual(t, []string{"greeting alice"}, res.Logs)
	assert.Equal(t, exec.BaseGas, res.GasUsed)
}

func TestDefaultCompletionIsEmptyValue(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"noop": func(env *exec.Env) error { return nil },
	})

	res, err := executor.Execute(context.Background(), request("noop", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Value, res.Completion.Kind)
	assert.Len(t, res.Completion.Value, 0)
}

func TestErrorBecomesFailedCompletion(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"fail": func(env *exec.Env) error {
			env.Log("before failure")
			return eris.New("not allowed")
		},
	})

	res, err := executor.Execute(context.Background(), request("fail", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.False(t, res.Completion.Panicked)
	assert.Contains(t, res.Completion.Reason, "not allowed")
	// Logs survive a failure; staged effects do not.
	assert.DeepEqual(t, []string{"before failure"}, res.Logs)
}

func TestPanicIsRecovered(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"explode": func(env *exec.Env) error {
			env.StorageWrite([]byte("k"), []byte("v"))
			env.Spawn(exec.Call{Receiver: "other", Method: "m"})
			env.Panic("boom")
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("explode", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.True(t, res.Completion.Panicked)
	assert.Equal(t, "boom", res.Completion.Reason)
	assert.Len(t, res.Actions, 0)
	assert.Len(t, res.Mutations, 0)
}

func TestRuntimePanicIsRecovered(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"oob": func(env *exec.Env) error {
			var xs []int
			_ = xs[3]
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("oob", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.True(t, res.Completion.Panicked)
}

func TestStorageReadYourWrites(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"update": func(env *exec.Env) error {
			v, ok := env.StorageRead([]byte("existing"))
			if !ok || string(v) != "old" {
				return eris.New("snapshot value missing")
			}
			env.StorageWrite([]byte("existing"), []byte("new"))
			v, _ = env.StorageRead([]byte("existing"))
			if string(v) != "new" {
				return eris.New("staged write not visible")
			}
			env.StorageRemove([]byte("existing"))
			if _, ok := env.StorageRead([]byte("existing")); ok {
				return eris.New("staged delete not visible")
			}
			env.StorageWrite([]byte("fresh"), []byte("1"))
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("update", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Value, res.Completion.Kind)
	assert.DeepEqual(t, []state.Mutation{
		{Account: "app", Key: []byte("existing"), Delete: true},
		{Account: "app", Key: []byte("fresh"), Value: []byte("1")},
	}, res.Mutations)
}

func TestSpawnAndForward(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"orchestrate": func(env *exec.Env) error {
			first := env.Spawn(exec.Call{Receiver: "worker", Method: "step_one"})
			second := env.Spawn(exec.Call{
				Receiver: "worker",
				Method:   "step_two",
				After:    []exec.PromiseIndex{first},
			})
			env.ReturnForward(second)
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("orchestrate", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.ForwardAction, res.Completion.Kind)
	assert.Equal(t, 1, res.Completion.Action)

	assert.Len(t, res.Actions, 2)
	first, ok := res.Actions[0].(exec.CreateReceipt)
	assert.Check(t, ok)
	assert.Equal(t, "step_one", first.Method)
	assert.Len(t, first.DependsOn, 0)
	// Spawned gas defaults to the executing receipt's gas.
	assert.Equal(t, types.DefaultGas, first.Gas)

	second, ok := res.Actions[1].(exec.CreateReceipt)
	assert.Check(t, ok)
	assert.DeepEqual(t, []int{0}, second.DependsOn)
}

func TestSpawnUnknownPromisePanics(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"bad_after": func(env *exec.Env) error {
			env.Spawn(exec.Call{
				Receiver: "worker",
				Method:   "m",
				After:    []exec.PromiseIndex{7},
			})
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("bad_after", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.True(t, res.Completion.Panicked)
	assert.Contains(t, res.Completion.Reason, "unknown promise index")
}

func TestDepResults(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"combine": func(env *exec.Env) error {
			if env.DepCount() != 2 {
				return eris.Errorf("expected 2 deps, got %d", env.DepCount())
			}
			first, _ := env.DepResult(0)
			second, _ := env.DepResult(1)
			if !first.Successful || second.Successful {
				return eris.New("unexpected dep outcomes")
			}
			env.Return(append(first.Value, []byte(second.Reason)...))
			return nil
		},
	})

	req := request("combine", nil)
	req.DepResults = []receipt.ResolvedOutcome{
		receipt.Successful([]byte("ok:")),
		receipt.Failed("dep failed"),
	}

	res, err := executor.Execute(context.Background(), req)
	assert.NilError(t, err)
	assert.Equal(t, "ok:dep failed", string(res.Completion.Value))
}

func TestTransferAndUseGas(t *testing.T) {
	executor := newExecutor(exec.Contract{
		"pay": func(env *exec.Env) error {
			env.Transfer("bob", 25)
			env.UseGas(1000)
			return nil
		},
	})

	res, err := executor.Execute(context.Background(), request("pay", nil))
	assert.NilError(t, err)
	assert.Equal(t, exec.BaseGas+1000, res.GasUsed)
	assert.Len(t, res.Actions, 1)
	transfer, ok := res.Actions[0].(exec.Transfer)
	assert.Check(t, ok)
	assert.Equal(t, types.AccountID("bob"), transfer.Receiver)
	assert.Equal(t, types.Balance(25), transfer.Amount)
}

func TestContractAndMethodNotFound(t *testing.T) {
	executor := exec.NewFuncExecutor()
	executor.RegisterContract("testapp", exec.Contract{
		"known": func(env *exec.Env) error { return nil },
	})

	req := request("known", nil)
	req.Snapshot.Code = nil
	res, err := executor.Execute(context.Background(), req)
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.Contains(t, res.Completion.Reason, "contract not found at account 'app'")

	req = request("known", nil)
	req.Snapshot.Code = []byte("unregistered")
	res, err = executor.Execute(context.Background(), req)
	assert.NilError(t, err)
	assert.Equal(t, exec.Failed, res.Completion.Kind)
	assert.Contains(t, res.Completion.Reason, "unregistered")

	req = request("missing", nil)
	res, err = executor.Execute(context.Background(), req)
	assert.NilError(t, err)
	assert.Contains(t, res.Completion.Reason, "method 'missing' not found")
}
