package telemetry

import (
	"github.com/armon/go-metrics"
)

const (
	relayerMetricsPrefix  = "relayer"
	watcherMetricsPrefix  = "watcher"
	executorMetricsPrefix = "executor"
)

func UpdateRelayerTransfersSettledCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "transfers_settled_counter", chain}, float32(cnt))
}

func UpdateRelayerTransfersFailedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "transfers_failed_counter", chain}, float32(cnt))
}

func UpdateRelayerApprovalsCounter(cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "approvals_counter"}, float32(cnt))
}

func UpdateRelayerClaimConflictsCounter(cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "claim_conflicts_counter"}, float32(cnt))
}

func UpdateRelayerInflightTransfersGauge(cnt int) {
	metrics.SetGauge([]string{relayerMetricsPrefix, "inflight_transfers"}, float32(cnt))
}

func UpdateRelayerRetryWarning(chain string, cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "retry_warning_counter", chain}, float32(cnt))
}

func UpdateWatcherEventsReceivedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{watcherMetricsPrefix, "events_received_counter", chain}, float32(cnt))
}

func UpdateWatcherCursorGauge(chain string, blockNumber uint64) {
	metrics.SetGauge([]string{watcherMetricsPrefix, "cursor_high", chain}, float32(blockNumber>>32))
	metrics.SetGauge([]string{watcherMetricsPrefix, "cursor_low", chain}, float32(uint32(blockNumber))) //nolint:gosec
}

func UpdateExecutorRetriesCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{executorMetricsPrefix, "retries_counter", chain}, float32(cnt))
}

func UpdateExecutorIndeterminateCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{executorMetricsPrefix, "indeterminate_counter", chain}, float32(cnt))
}
