package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	stakedTotal   prometheus.Gauge
	operations    *prometheus.CounterVec
	rewardPaid    prometheus.Counter
	waitingPeriod prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			stakedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_staked_total",
				Help: "Number of tokens currently held in vault custody.",
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Count of ledger operations by method and outcome.",
			}, []string{"method", "outcome"}),
			rewardPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_reward_paid_total",
				Help: "Cumulative reward paid out, in base units.",
			}),
			waitingPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_withdrawal_waiting_period_seconds",
				Help: "Withdrawal cooldown currently in force.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.stakedTotal,
			vaultRegistry.operations,
			vaultRegistry.rewardPaid,
			vaultRegistry.waitingPeriod,
		)
	})
	return vaultRegistry
}

// SetStakedTotal records the current custody count.
func (m *VaultMetrics) SetStakedTotal(total uint64) {
	if m == nil {
		return
	}
	m.stakedTotal.Set(float64(total))
}

// ObserveOperation counts one ledger call with its outcome label.
func (m *VaultMetrics) ObserveOperation(method, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(method, outcome).Inc()
}

// AddRewardPaid accumulates a payout. Precision loss past float64 is
// acceptable for a monitoring counter.
func (m *VaultMetrics) AddRewardPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	m.rewardPaid.Add(f)
}

// SetWaitingPeriod records the cooldown currently in force.
func (m *VaultMetrics) SetWaitingPeriod(seconds uint64) {
	if m == nil {
		return
	}
	m.waitingPeriod.Set(float64(seconds))
}
