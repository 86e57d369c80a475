// Package log holds the zerolog helpers the scheduler uses to emit
// structured events about receipt dispatch and resolution.
package log

import (
	"github.com/rs/zerolog"

	"github.com/chainsim-dev/chainsim/outcome"
	"github.com/chainsim-dev/chainsim/receipt"
)

func loadReceiptIntoEvent(event *zerolog.Event, r *receipt.Receipt) *zerolog.Event {
	event.Uint64("receipt_id", uint64(r.ID))
	event.Str("predecessor", r.Predecessor.String())
	event.Str("receiver", r.Receiver.String())
	event.Str("method", r.Method)
	event.Uint64("deposit", uint64(r.Deposit))
	event.Uint64("gas", uint64(r.Gas))
	arrayLogger := zerolog.Arr()
	for _, dep := range r.DependsOn {
		arrayLogger = arrayLogger.Uint64(uint64(dep))
	}
	return event.Array("depends_on", arrayLogger)
}

// ReceiptDispatched logs the selection of a ready receipt for execution.
func ReceiptDispatched(logger *zerolog.Logger, r *receipt.Receipt, mocked bool) {
	event := logger.Debug()
	event = loadReceiptIntoEvent(event, r)
	event.Bool("mocked", mocked).Msg("Receipt dispatched")
}

// ReceiptResolved logs the outcome of one executed receipt.
func ReceiptResolved(logger *zerolog.Logger, oc *outcome.ReceiptOutcome) {
	event := logger.Debug()
	event.Uint64("receipt_id", uint64(oc.ID))
	event.Str("receiver", oc.Receiver.String())
	event.Str("method", oc.Method)
	event.Bool("success", oc.IsSuccess())
	if oc.Status.Message != "" {
		event.Str("failure", oc.Status.Message)
	}
	event.Uint64("gas_used", uint64(oc.GasUsed))
	event.Int("logs", len(oc.Logs))
	event.Msg("Receipt resolved")
}

// RunFinished logs the summary of a completed run.
func RunFinished(logger *zerolog.Logger, co *outcome.CallOutcome) {
	logger.Info().
		Int("receipts", len(co.Receipts())).
		Bool("success", co.IsSuccess()).
		Uint64("gas_used", uint64(co.GasUsed())).
		Msg("Run finished")
}

// CreateTraceLogger creates a sub logger carrying a trace id, so every event
// of one run can be followed through the output.
func CreateTraceLogger(logger *zerolog.Logger, traceID string) *zerolog.Logger {
	newLogger := logger.With().Str("trace_id", traceID).Logger()
	return &newLogger
}
