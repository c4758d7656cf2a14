package metrics

import "expvar"

// 交易闸门计数器，通过 /debug/vars 暴露
var (
	TradesCommitted     = expvar.NewInt("trades_committed")
	TradesIndeterminate = expvar.NewInt("trades_indeterminate")
	LedgerWriteErrors   = expvar.NewInt("ledger_write_errors")

	// TradesRejected 按拒绝原因分组
	TradesRejected = expvar.NewMap("trades_rejected")
)

// RecordOutcome 按终态累加计数
func RecordOutcome(state, reason string, ledgerFailed bool) {
	switch state {
	case "committed":
		TradesCommitted.Add(1)
	case "indeterminate":
		TradesIndeterminate.Add(1)
	case "rejected":
		TradesRejected.Add(reason, 1)
	}
	if ledgerFailed {
		LedgerWriteErrors.Add(1)
	}
}
