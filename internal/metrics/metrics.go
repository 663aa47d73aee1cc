// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elys-network/lpfarm/internal/types"
	"github.com/elys-network/lpfarm/internal/utils"
)

const namespace = "lpfarm"

var (
	// actionsTotal counts executed actions.
	// Labels: action, result (ok or the error category)
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Executed actions by type and result",
	}, []string{"action", "result"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_duration_seconds",
		Help:      "Time to execute and commit one action",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"action"})

	rewardsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewards_claimed_total",
		Help:      "Reward amounts paid out by claims",
	}, []string{"denom"})

	emergencyPenalties = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emergency_penalties_total",
		Help:      "Lp amounts taken as emergency unlock penalties",
	}, []string{"denom"})

	rewardWalkEpochs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reward_walk_epochs",
		Help:      "Epochs covered by one reward claim",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	currentEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "current_epoch",
		Help:      "Latest epoch seen by the engine",
	})
)

// RecordAction counts one executed action and its latency.
func RecordAction(action string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = string(types.ErrorCategory(err))
	}
	actionsTotal.WithLabelValues(action, result).Inc()
	actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordClaim adds a claim's payout and walk length.
func RecordClaim(rewards sdk.Coins, walkedEpochs uint64) {
	amounts, err := utils.CoinsToFloat64(rewards)
	if err == nil {
		for denom, v := range amounts {
			rewardsClaimed.WithLabelValues(denom).Add(v)
		}
	}
	rewardWalkEpochs.Observe(float64(walkedEpochs))
}

// RecordPenalty adds an emergency unlock penalty.
func RecordPenalty(penalty sdk.Coin) {
	v, err := utils.IntToFloat64(penalty.Amount)
	if err != nil {
		return
	}
	emergencyPenalties.WithLabelValues(penalty.Denom).Add(v)
}

// SetCurrentEpoch updates the epoch gauge.
func SetCurrentEpoch(epoch uint64) {
	currentEpoch.Set(float64(epoch))
}
