// Package scheduler drives a tree of inter-dependent receipts to
// completion. It is single-threaded, cooperative and fully synchronous:
// suspension is represented purely as data (a receipt sits in the pending
// collection until its dependencies resolve), which buys bit-for-bit
// reproducibility at the price of real parallelism.
//
// The scheduler is the only component with write access to the
// resolved-outcome table and the forward-alias table.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/chainsim-dev/chainsim/exec"
	simlog "github.com/chainsim-dev/chainsim/log"
	"github.com/chainsim-dev/chainsim/mocks"
	"github.com/chainsim-dev/chainsim/outcome"
	"github.com/chainsim-dev/chainsim/receipt"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

var (
	// ErrDeadlock means a full scan of the pending collection found no
	// ready receipt while receipts remain pending. The run is aborted; no
	// partial result is returned.
	ErrDeadlock = eris.New("deadlock: pending receipts wait on dependencies that can never resolve")

	// ErrForwardCycle means alias-following found a receipt whose result
	// aliases back to itself. Fatal to the run.
	ErrForwardCycle = eris.New("forward cycle detected while resolving receipt aliases")

	// ErrViewViolation means a view-only execution proposed storage
	// mutations or spawned receipts. Fatal to the invocation.
	ErrViewViolation = eris.New("view violation: view-only execution proposed mutations or spawned receipts")
)

// Config wires one Scheduler run.
type Config struct {
	Store    *state.Store
	Mocks    *mocks.Registry
	Executor exec.Executor
	Block    exec.BlockInfo
	Logger   *zerolog.Logger
}

// Scheduler owns the pending-receipt collection, the resolved-outcome table
// and the forward-alias table for a single run. A Scheduler is used for one
// Run (or RunView) and discarded.
type Scheduler struct {
	store    *state.Store
	mocks    *mocks.Registry
	executor exec.Executor
	block    exec.BlockInfo
	logger   *zerolog.Logger

	nextID  types.ReceiptID
	pending []receipt.Receipt
	results map[types.ReceiptID]receipt.ResolvedOutcome
	aliases map[types.ReceiptID]types.ReceiptID

	executed []outcome.ReceiptOutcome

	budget  types.Gas
	gasUsed types.Gas
}

func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		store:    cfg.Store,
		mocks:    cfg.Mocks,
		executor: cfg.Executor,
		block:    cfg.Block,
		logger:   logger,
		results:  make(map[types.ReceiptID]receipt.ResolvedOutcome),
		aliases:  make(map[types.ReceiptID]types.ReceiptID),
	}
}

// dispatched is the scheduler-level view of one execution, with forward
// targets already translated to receipt ids.
type dispatched struct {
	completion  receipt.Completion
	status      outcome.ExecutionStatus
	returnValue []byte
	logs        []string
	gasUsed     types.Gas
	spawned     []receipt.Receipt
	mutations   []state.Mutation
	transfers   []exec.Transfer
	mocked      bool
}

// Run executes the root receipt and everything it spawns, to completion.
// The root's attached gas is the prepaid budget for the whole tree.
//
// Identical inputs always produce an identical CallOutcome: receipts are
// dispatched first-ready in issuance order, and the outcome list is ordered
// by issuance order.
func (s *Scheduler) Run(ctx context.Context, root receipt.Receipt) (*outcome.CallOutcome, error) {
	root.ID = s.issueID()
	s.budget = root.Gas
	rootID := root.ID
	s.pending = append(s.pending, root)

	for len(s.pending) > 0 {
		idx, err := s.findReady()
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, eris.Wrapf(ErrDeadlock, "%d receipts pending", len(s.pending))
		}
		next := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		if err := s.executeReceipt(ctx, next); err != nil {
			return nil, err
		}
	}

	return s.aggregate(rootID)
}

// RunView executes a single receipt in view mode: no mocks of other
// accounts are reachable (nothing is spawned), no storage is mutated, and
// any attempt by the execution to propose mutations or spawn receipts is a
// fatal ErrViewViolation.
func (s *Scheduler) RunView(ctx context.Context, r receipt.Receipt) ([]byte, error) {
	r.ID = s.issueID()

	if handler, ok := s.mocks.Get(r.Receiver); ok {
		resp := handler.Handle(r.Method, r.Args)
		if resp.Kind == mocks.ResponseSuccess {
			return resp.Value, nil
		}
		return nil, eris.New(resp.Message)
	}

	snapshot, err := s.store.Snapshot(ctx, r.Receiver)
	if err != nil {
		return nil, err
	}
	res, err := s.executor.Execute(ctx, exec.Request{
		Receiver:    r.Receiver,
		Predecessor: r.Predecessor,
		Method:      r.Method,
		Args:        r.Args,
		Gas:         r.Gas,
		Snapshot:    snapshot,
		Block:       s.block,
		ViewOnly:    true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "view execution failed")
	}
	if len(res.Actions) > 0 || len(res.Mutations) > 0 {
		return nil, eris.Wrapf(ErrViewViolation,
			"%s.%s proposed %d actions and %d mutations",
			r.Receiver, r.Method, len(res.Actions), len(res.Mutations))
	}
	switch res.Completion.Kind {
	case exec.Value:
		return res.Completion.Value, nil
	case exec.ForwardAction:
		return nil, eris.Wrapf(ErrViewViolation, "%s.%s forwarded its result", r.Receiver, r.Method)
	default:
		return nil, eris.New(res.Completion.Reason)
	}
}

func (s *Scheduler) issueID() types.ReceiptID {
	id := s.nextID
	s.nextID++
	return id
}

// findReady scans pending in issuance order and returns the index of the
// first receipt whose dependencies, after following aliases transitively,
// all have resolved outcomes. Returns -1 when nothing is ready.
func (s *Scheduler) findReady() (int, error) {
	for i := range s.pending {
		ready, err := s.isReady(&s.pending[i])
		if err != nil {
			return 0, err
		}
		if ready {
			return i, nil
		}
	}
	return -1, nil
}

func (s *Scheduler) isReady(r *receipt.Receipt) (bool, error) {
	for _, dep := range r.DependsOn {
		final, err := s.resolveAlias(dep)
		if err != nil {
			return false, err
		}
		if _, ok := s.results[final]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// resolveAlias follows the forward-alias chain from id to its final
// receipt. Chains may be multiple hops; an id reachable from itself is a
// fatal ErrForwardCycle.
func (s *Scheduler) resolveAlias(id types.ReceiptID) (types.ReceiptID, error) {
	visited := map[types.ReceiptID]bool{id: true}
	for {
		target, ok := s.aliases[id]
		if !ok {
			return id, nil
		}
		if visited[target] {
			return 0, eris.Wrapf(ErrForwardCycle, "receipt %d reachable from itself", target)
		}
		visited[target] = true
		id = target
	}
}

func (s *Scheduler) executeReceipt(ctx context.Context, r receipt.Receipt) error {
	var d dispatched
	if handler, ok := s.mocks.Get(r.Receiver); ok {
		simlog.ReceiptDispatched(s.logger, &r, true)
		d = s.dispatchMock(r, handler)
	} else {
		simlog.ReceiptDispatched(s.logger, &r, false)
		var err error
		d, err = s.dispatchExecutor(ctx, r)
		if err != nil {
			return err
		}
	}

	// Root-budget gas accounting. A receipt that pushes cumulative usage
	// past the prepaid budget is forced to a failed completion without
	// consulting its own reported completion; already-resolved siblings are
	// left untouched.
	s.gasUsed += d.gasUsed
	if s.gasUsed > s.budget {
		reason := fmt.Sprintf("out of gas: used %d, limit %d", s.gasUsed, s.budget)
		d = dispatched{
			completion: receipt.FailedCompletion(reason),
			status:     outcome.Failure(reason),
			logs:       d.logs,
			gasUsed:    d.gasUsed,
			mocked:     d.mocked,
		}
	}

	switch d.completion.Kind {
	case receipt.CompletionValue, receipt.CompletionForward:
		if failReason, err := s.commitEffects(ctx, r, &d); err != nil {
			return err
		} else if failReason != "" {
			d.completion = receipt.FailedCompletion(failReason)
			d.status = outcome.Failure(failReason)
			d.returnValue = nil
			d.spawned = nil
		}
	case receipt.CompletionFailed:
		// Proposed mutations and spawned receipts are discarded entirely.
		d.spawned = nil
	}

	switch d.completion.Kind {
	case receipt.CompletionValue:
		s.results[r.ID] = receipt.Successful(d.completion.Value)
	case receipt.CompletionForward:
		s.aliases[r.ID] = d.completion.Forward
	case receipt.CompletionFailed:
		s.results[r.ID] = receipt.Failed(d.completion.Reason)
	}

	s.pending = append(s.pending, d.spawned...)

	oc := outcome.ReceiptOutcome{
		ID:          r.ID,
		Predecessor: r.Predecessor,
		Receiver:    r.Receiver,
		Method:      r.Method,
		Args:        r.Args,
		Deposit:     r.Deposit,
		GasUsed:     d.gasUsed,
		Status:      d.status,
		Logs:        d.logs,
		ReturnValue: d.returnValue,
		Mocked:      d.mocked,
	}
	simlog.ReceiptResolved(s.logger, &oc)
	s.executed = append(s.executed, oc)
	return nil
}

// dispatchMock synthesizes a completion from a registered handler. The real
// code, if deployed, is not invoked; only a fixed dispatch overhead is
// charged.
func (s *Scheduler) dispatchMock(r receipt.Receipt, handler mocks.Handler) dispatched {
	resp := handler.Handle(r.Method, r.Args)
	d := dispatched{
		gasUsed: types.MockDispatchGas,
		mocked:  true,
	}
	switch resp.Kind {
	case mocks.ResponseSuccess:
		d.completion = receipt.ValueCompletion(resp.Value)
		d.status = outcome.Success()
		d.returnValue = resp.Value
	case mocks.ResponseFailure:
		d.completion = receipt.FailedCompletion(resp.Message)
		d.status = outcome.Failure(resp.Message)
	case mocks.ResponsePanic:
		d.completion = receipt.FailedCompletion(resp.Message)
		d.status = outcome.Panic(resp.Message)
	}
	return d
}

func (s *Scheduler) dispatchExecutor(ctx context.Context, r receipt.Receipt) (dispatched, error) {
	snapshot, err := s.store.Snapshot(ctx, r.Receiver)
	if err != nil {
		return dispatched{}, err
	}

	depResults := make([]receipt.ResolvedOutcome, 0, len(r.DependsOn))
	for _, dep := range r.DependsOn {
		final, err := s.resolveAlias(dep)
		if err != nil {
			return dispatched{}, err
		}
		depResults = append(depResults, s.results[final])
	}

	res, err := s.executor.Execute(ctx, exec.Request{
		Receiver:    r.Receiver,
		Predecessor: r.Predecessor,
		Method:      r.Method,
		Args:        r.Args,
		Deposit:     r.Deposit,
		Gas:         r.Gas,
		Snapshot:    snapshot,
		DepResults:  depResults,
		Block:       s.block,
	})
	if err != nil {
		reason := eris.ToString(err, false)
		return dispatched{
			completion: receipt.FailedCompletion(reason),
			status:     outcome.Failure(reason),
		}, nil
	}

	return s.translate(r, res), nil
}

// translate converts an executor result into the scheduler-level view:
// CreateReceipt actions get receipt ids issued in emission order, local
// forward indices become receipt ids, and the mutation set is validated
// against the executing receipt's receiver.
func (s *Scheduler) translate(r receipt.Receipt, res *exec.Result) dispatched {
	d := dispatched{
		logs:    res.Logs,
		gasUsed: res.GasUsed,
	}

	fail := func(reason string) dispatched {
		return dispatched{
			completion: receipt.FailedCompletion(reason),
			status:     outcome.Failure(reason),
			logs:       res.Logs,
			gasUsed:    res.GasUsed,
		}
	}

	// A receipt may only mutate the storage of its own receiver account.
	for _, m := range res.Mutations {
		if m.Account != r.Receiver {
			return fail(fmt.Sprintf(
				"receipt for %s proposed a storage mutation on %s", r.Receiver, m.Account))
		}
	}
	d.mutations = res.Mutations

	actionIDs := make(map[int]types.ReceiptID)
	for i, action := range res.Actions {
		switch a := action.(type) {
		case exec.CreateReceipt:
			if err := a.Receiver.Validate(); err != nil {
				return fail(eris.ToString(err, false))
			}
			dependsOn := make([]types.ReceiptID, 0, len(a.DependsOn))
			for _, depIdx := range a.DependsOn {
				depID, ok := actionIDs[depIdx]
				if !ok || depIdx >= i {
					return fail(fmt.Sprintf(
						"receipt action %d depends on invalid action index %d", i, depIdx))
				}
				dependsOn = append(dependsOn, depID)
			}
			id := s.issueID()
			actionIDs[i] = id
			d.spawned = append(d.spawned, receipt.Receipt{
				ID:          id,
				Predecessor: r.Receiver,
				Receiver:    a.Receiver,
				Method:      a.Method,
				Args:        a.Args,
				Deposit:     a.Deposit,
				Gas:         a.Gas,
				DependsOn:   dependsOn,
			})
		case exec.Transfer:
			if err := a.Receiver.Validate(); err != nil {
				return fail(eris.ToString(err, false))
			}
			d.transfers = append(d.transfers, a)
		}
	}

	switch res.Completion.Kind {
	case exec.Value:
		d.completion = receipt.ValueCompletion(res.Completion.Value)
		d.status = outcome.Success()
		d.returnValue = res.Completion.Value
	case exec.ForwardAction:
		target, ok := actionIDs[res.Completion.Action]
		if !ok {
			// The forward does not point at a spawned receipt; resolve to
			// an empty value, mirroring a promise that was never returned.
			d.completion = receipt.ValueCompletion(nil)
			d.status = outcome.Success()
			break
		}
		d.completion = receipt.ForwardCompletion(target)
		d.status = outcome.Success()
	case exec.Failed:
		d.completion = receipt.FailedCompletion(res.Completion.Reason)
		if res.Completion.Panicked {
			d.status = outcome.Panic(res.Completion.Reason)
		} else {
			d.status = outcome.Failure(res.Completion.Reason)
		}
	}
	return d
}

// commitEffects applies a successful receipt's side effects: the attached
// deposit, any transfer actions, then the storage mutation set, all checked
// for feasibility first so a failure leaves the store untouched. A
// non-empty failReason fails the receipt locally; err aborts the run.
func (s *Scheduler) commitEffects(ctx context.Context, r receipt.Receipt, d *dispatched) (failReason string, err error) {
	var outgoing types.Balance
	for _, t := range d.transfers {
		outgoing += t.Amount
	}
	if r.Deposit > 0 {
		predecessorBalance, err := s.store.Balance(ctx, r.Predecessor)
		if err != nil {
			return "", err
		}
		if predecessorBalance < r.Deposit {
			return fmt.Sprintf("insufficient balance: %s holds %d, deposit is %d",
				r.Predecessor, predecessorBalance, r.Deposit), nil
		}
	}
	if outgoing > 0 {
		receiverBalance, err := s.store.Balance(ctx, r.Receiver)
		if err != nil {
			return "", err
		}
		if receiverBalance+r.Deposit < outgoing {
			return fmt.Sprintf("insufficient balance: %s holds %d, transfers total %d",
				r.Receiver, receiverBalance+r.Deposit, outgoing), nil
		}
	}

	if r.Deposit > 0 {
		if err := s.store.Transfer(ctx, r.Predecessor, r.Receiver, r.Deposit); err != nil {
			return "", err
		}
	}
	for _, t := range d.transfers {
		if err := s.store.Transfer(ctx, r.Receiver, t.Receiver, t.Amount); err != nil {
			return "", err
		}
	}
	return "", s.store.ApplyMutations(ctx, d.mutations)
}

// aggregate folds the resolved tables and the executed receipts into the
// caller-facing outcome tree.
func (s *Scheduler) aggregate(rootID types.ReceiptID) (*outcome.CallOutcome, error) {
	final, err := s.resolveAlias(rootID)
	if err != nil {
		return nil, err
	}
	rootRes, ok := s.results[final]
	if !ok {
		return nil, eris.Errorf("root receipt %d never resolved", rootID)
	}

	sort.Slice(s.executed, func(i, j int) bool {
		return s.executed[i].ID < s.executed[j].ID
	})

	// Backfill forwarded return values so a receipt that completed by
	// forwarding reports the value its alias chain resolved to.
	for i := range s.executed {
		oc := &s.executed[i]
		if !oc.IsSuccess() || oc.ReturnValue != nil {
			continue
		}
		resolvedID, err := s.resolveAlias(oc.ID)
		if err != nil {
			return nil, err
		}
		if res, ok := s.results[resolvedID]; ok && res.Successful {
			oc.ReturnValue = res.Value
		}
	}

	co := outcome.New(s.executed, rootRes.Successful, rootRes.Value, rootRes.Reason)
	simlog.RunFinished(s.logger, co)
	return co, nil
}
