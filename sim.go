// Package chainsim is a lightweight, deterministic multi-contract call
// simulator. It runs a tree of asynchronous, inter-dependent cross-account
// calls to completion on a single thread: fire-and-forget calls, callback
// chaining, joint waits and result forwarding all execute in strict
// issuance order, so identical inputs always produce identical outcomes.
package chainsim

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/chainsim-dev/chainsim/codec"
	"github.com/chainsim-dev/chainsim/exec"
	simlog "github.com/chainsim-dev/chainsim/log"
	"github.com/chainsim-dev/chainsim/mocks"
	"github.com/chainsim-dev/chainsim/outcome"
	"github.com/chainsim-dev/chainsim/receipt"
	"github.com/chainsim-dev/chainsim/scheduler"
	"github.com/chainsim-dev/chainsim/simstage"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

// ErrNotReady is returned when a call is attempted while another call is
// still running, or after the simulator has been closed.
var ErrNotReady = eris.New("simulator is not ready for a call")

// Simulator is one simulation session: a set of accounts with storage and
// code, a mock registry, and block metadata. All execution runs through
// Call and View; everything else is setup or direct inspection.
type Simulator struct {
	cfg   SimConfig
	stage *simstage.Manager

	db       state.PrimitiveStorage
	store    *state.Store
	mocks    *mocks.Registry
	executor exec.Executor
	// funcExec is set when the default executor is in use; it backs
	// RegisterContract.
	funcExec *exec.FuncExecutor

	logger     zerolog.Logger
	defaultGas types.Gas
	block      exec.BlockInfo
}

// NewSimulator creates a session with an in-memory account store and the
// default FuncExecutor, both replaceable through options.
func NewSimulator(opts ...SimOption) (*Simulator, error) {
	cfg := GetSimConfig()

	funcExec := exec.NewFuncExecutor()
	s := &Simulator{
		cfg:        cfg,
		stage:      simstage.NewManager(),
		mocks:      mocks.NewRegistry(),
		executor:   funcExec,
		funcExec:   funcExec,
		logger:     zlog.Logger,
		defaultGas: types.DefaultGas,
		block: exec.BlockInfo{
			Height:      1,
			Timestamp:   0,
			EpochHeight: 1,
		},
	}
	if cfg.DefaultGas != 0 {
		s.defaultGas = types.Gas(cfg.DefaultGas)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		s.logger = s.logger.Level(level)
	}
	if cfg.LogPretty {
		s.logger = s.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	for _, opt := range opts {
		if opt.simOption != nil {
			opt.simOption(s)
		}
	}

	if s.db == nil {
		s.db = state.NewMapStorage()
	}
	s.store = state.NewStore(s.db)
	return s, nil
}

// RegisterContract makes a contract written as Go functions deployable
// under the given name. Only available with the default executor.
func (s *Simulator) RegisterContract(name string, contract exec.Contract) error {
	if s.funcExec == nil {
		return eris.New("RegisterContract requires the default executor")
	}
	s.funcExec.RegisterContract(name, contract)
	return nil
}

// CreateAccount creates (or resets) an account with the given balance.
func (s *Simulator) CreateAccount(account string, balance types.Balance) error {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return err
	}
	return s.store.CreateAccount(context.Background(), id, balance)
}

// Deploy stores a code blob under the account, creating the account if
// needed. Deploying twice overwrites; the operation is idempotent.
func (s *Simulator) Deploy(account string, code []byte) error {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return err
	}
	return s.store.Deploy(context.Background(), id, code)
}

// DeployFile deploys the contents of the file at path.
func (s *Simulator) DeployFile(account, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "failed to read code file %q", path)
	}
	return s.Deploy(account, code)
}

// Call runs signer's call of receiver.method to completion, including every
// receipt the call tree spawns, and returns the full outcome. The call is
// synchronous; there is no async handle.
func (s *Simulator) Call(signer, receiver, method string, args []byte) (*outcome.CallOutcome, error) {
	return s.CallWithOptions(signer, receiver, method, args, 0, s.defaultGas)
}

// CallJSON marshals args to JSON and calls.
func (s *Simulator) CallJSON(signer, receiver, method string, args any) (*outcome.CallOutcome, error) {
	bz, err := codec.Encode(args)
	if err != nil {
		return nil, err
	}
	return s.Call(signer, receiver, method, bz)
}

// CallWithDeposit calls with an attached deposit.
func (s *Simulator) CallWithDeposit(
	signer, receiver, method string, args []byte, deposit types.Balance,
) (*outcome.CallOutcome, error) {
	return s.CallWithOptions(signer, receiver, method, args, deposit, s.defaultGas)
}

// CallWithOptions calls with an explicit deposit and prepaid gas budget.
// The gas budget bounds the whole spawned tree.
func (s *Simulator) CallWithOptions(
	signer, receiver, method string, args []byte, deposit types.Balance, gas types.Gas,
) (*outcome.CallOutcome, error) {
	signerID, err := types.ParseAccountID(signer)
	if err != nil {
		return nil, err
	}
	receiverID, err := types.ParseAccountID(receiver)
	if err != nil {
		return nil, err
	}

	if !s.stage.CompareAndSwap(simstage.Ready, simstage.Running) {
		return nil, eris.Wrapf(ErrNotReady, "stage is %s", s.stage.Current())
	}
	defer s.stage.CompareAndSwap(simstage.Running, simstage.Ready)

	logger := simlog.CreateTraceLogger(&s.logger, uuid.NewString())
	sched := scheduler.New(scheduler.Config{
		Store:    s.store,
		Mocks:    s.mocks,
		Executor: s.executor,
		Block:    s.block,
		Logger:   logger,
	})
	return sched.Run(context.Background(), receipt.Receipt{
		Predecessor: signerID,
		Receiver:    receiverID,
		Method:      method,
		Args:        args,
		Deposit:     deposit,
		Gas:         gas,
	})
}

// View invokes receiver.method without mutating anything: the execution may
// not propose storage mutations or spawn receipts, and any attempt to do so
// fails the invocation with a view violation.
func (s *Simulator) View(receiver, method string, args []byte) ([]byte, error) {
	receiverID, err := types.ParseAccountID(receiver)
	if err != nil {
		return nil, err
	}

	if !s.stage.CompareAndSwap(simstage.Ready, simstage.Running) {
		return nil, eris.Wrapf(ErrNotReady, "stage is %s", s.stage.Current())
	}
	defer s.stage.CompareAndSwap(simstage.Running, simstage.Ready)

	logger := simlog.CreateTraceLogger(&s.logger, uuid.NewString())
	sched := scheduler.New(scheduler.Config{
		Store:    s.store,
		Mocks:    s.mocks,
		Executor: s.executor,
		Block:    s.block,
		Logger:   logger,
	})
	return sched.RunView(context.Background(), receipt.Receipt{
		Predecessor: receiverID,
		Receiver:    receiverID,
		Method:      method,
		Args:        args,
		Gas:         s.defaultGas,
	})
}

// ViewJSON marshals args to JSON and views.
func (s *Simulator) ViewJSON(receiver, method string, args any) ([]byte, error) {
	bz, err := codec.Encode(args)
	if err != nil {
		return nil, err
	}
	return s.View(receiver, method, bz)
}

// Mock registers a handler that fully replaces execution for the account.
// Registering again overwrites; last registration wins.
func (s *Simulator) Mock(account string, handler mocks.Handler) error {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return err
	}
	s.mocks.Register(id, handler)
	return nil
}

// MockFunc registers a dynamic mock handler function for the account.
func (s *Simulator) MockFunc(account string, fn func(method string, args []byte) mocks.Response) error {
	return s.Mock(account, mocks.HandlerFunc(fn))
}

// MockStatic registers a canned successful response for one method on the
// account; calls to other methods fail as method-not-found.
func (s *Simulator) MockStatic(account, method string, response []byte) error {
	return s.Mock(account, mocks.StaticResponse{
		Method:   method,
		Response: mocks.Success(response),
	})
}

// MockJSON registers a canned successful JSON response for every method on
// the account.
func (s *Simulator) MockJSON(account string, value any) error {
	bz, err := codec.Encode(value)
	if err != nil {
		return err
	}
	return s.Mock(account, mocks.StaticResponse{Response: mocks.Success(bz)})
}

// MockFailure makes every call to the account fail with the message.
func (s *Simulator) MockFailure(account, message string) error {
	return s.Mock(account, mocks.StaticResponse{Response: mocks.Failure(message)})
}

// MockPanic makes every call to the account panic with the message.
func (s *Simulator) MockPanic(account, message string) error {
	return s.Mock(account, mocks.StaticResponse{Response: mocks.Panic(message)})
}

// ClearMock removes the account's mock handler; subsequent calls hit the
// executor again.
func (s *Simulator) ClearMock(account string) error {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return err
	}
	s.mocks.Clear(id)
	return nil
}

// AdvanceBlock advances the block height by one and the timestamp by one
// second. The scheduler never interprets block metadata; it is forwarded
// verbatim into each execution.
func (s *Simulator) AdvanceBlock() {
	s.AdvanceBlocks(1)
}

// AdvanceBlocks advances the block height by n.
func (s *Simulator) AdvanceBlocks(n uint64) {
	s.block.Height += n
	s.block.Timestamp += n * 1_000_000_000
}

func (s *Simulator) SetBlockHeight(height uint64) {
	s.block.Height = height
}

func (s *Simulator) SetBlockTimestamp(timestamp uint64) {
	s.block.Timestamp = timestamp
}

func (s *Simulator) BlockHeight() uint64 {
	return s.block.Height
}

func (s *Simulator) BlockTimestamp() uint64 {
	return s.block.Timestamp
}

// StorageRead reads one storage entry of the account directly, bypassing
// execution entirely. A missing entry returns nil.
func (s *Simulator) StorageRead(account string, key []byte) ([]byte, error) {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	value, err := s.store.StorageRead(context.Background(), id, key)
	if err != nil {
		if eris.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// StorageDump returns a copy of all storage entries of the account.
func (s *Simulator) StorageDump(account string) (map[string][]byte, error) {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	return s.store.StorageDump(context.Background(), id)
}

// StorageKeys returns the account's storage keys in lexicographic order.
func (s *Simulator) StorageKeys(account string) ([]string, error) {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	return s.store.StorageKeys(context.Background(), id)
}

// Balance returns the account's balance; unknown accounts hold zero.
func (s *Simulator) Balance(account string) (types.Balance, error) {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return 0, err
	}
	return s.store.Balance(context.Background(), id)
}

// HasContract reports whether the account has code deployed.
func (s *Simulator) HasContract(account string) (bool, error) {
	id, err := types.ParseAccountID(account)
	if err != nil {
		return false, err
	}
	return s.store.HasContract(context.Background(), id)
}

// Accounts returns every created account id in lexicographic order.
func (s *Simulator) Accounts() ([]string, error) {
	ids, err := s.store.Accounts(context.Background())
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, id.String())
	}
	return accounts, nil
}

// Close shuts the session down and releases the storage backend. The
// simulator cannot be used afterwards.
func (s *Simulator) Close() error {
	if !s.stage.CompareAndSwap(simstage.Ready, simstage.ShutDown) {
		return eris.Wrapf(ErrNotReady, "stage is %s", s.stage.Current())
	}
	return s.store.Close(context.Background())
}
