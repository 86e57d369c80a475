package chainsim

import (
	"github.com/chainsim-dev/chainsim/codec"
	"github.com/chainsim-dev/chainsim/outcome"
	"github.com/chainsim-dev/chainsim/types"
)

// CallBuilder assembles a call fluently. The signer defaults to the
// receiver when not set.
type CallBuilder struct {
	sim      *Simulator
	receiver string
	method   string
	signer   string
	args     []byte
	argsErr  error
	deposit  types.Balance
	gas      types.Gas
}

// Prepare starts building a call of receiver.method.
func (s *Simulator) Prepare(receiver, method string) *CallBuilder {
	return &CallBuilder{
		sim:      s,
		receiver: receiver,
		method:   method,
		gas:      s.defaultGas,
	}
}

func (b *CallBuilder) Signer(signer string) *CallBuilder {
	b.signer = signer
	return b
}

func (b *CallBuilder) Args(args []byte) *CallBuilder {
	b.args = args
	return b
}

// ArgsJSON marshals args to JSON. A marshalling error surfaces on Execute.
func (b *CallBuilder) ArgsJSON(args any) *CallBuilder {
	b.args, b.argsErr = codec.Encode(args)
	return b
}

func (b *CallBuilder) Deposit(deposit types.Balance) *CallBuilder {
	b.deposit = deposit
	return b
}

func (b *CallBuilder) Gas(gas types.Gas) *CallBuilder {
	b.gas = gas
	return b
}

// Execute runs the call to completion.
func (b *CallBuilder) Execute() (*outcome.CallOutcome, error) {
	if b.argsErr != nil {
		return nil, b.argsErr
	}
	signer := b.signer
	if signer == "" {
		signer = b.receiver
	}
	return b.sim.CallWithOptions(signer, b.receiver, b.method, b.args, b.deposit, b.gas)
}
