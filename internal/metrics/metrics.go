// Copyright 2025 Certen Protocol
//
// Prometheus instrumentation for the per-register pipeline: mempool
// depth, consensus round outcomes, leader terms, docket builds, and
// control-action counts. Every metric is labeled by register so a
// single process serving many registers exposes one time series per
// register per metric.

package metrics

import (
	"time"

	"github.com/certen/validator-node/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "certen_validator"

// Metrics is the orchestrator-facing surface: narrow enough that callers
// never touch prometheus types directly.
type Metrics struct {
	mempoolDepth      *prometheus.GaugeVec
	docketsBuilt      *prometheus.CounterVec
	consensusRounds   *prometheus.CounterVec
	consensusDuration *prometheus.HistogramVec
	leaderTerm        *prometheus.GaugeVec
	activeValidators  *prometheus.GaugeVec
	controlActions    *prometheus.CounterVec
	validatorVotes    *prometheus.CounterVec
}

// New builds a Metrics instance and registers every collector against
// registerer. Use prometheus.DefaultRegisterer for the process default.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		mempoolDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_depth",
			Help:      "Current number of transactions held in a register's mempool.",
		}, []string{"register"}),
		docketsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dockets_built_total",
			Help:      "Dockets proposed by this validator, per register.",
		}, []string{"register"}),
		consensusRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_rounds_total",
			Help:      "Consensus rounds this validator drove as proposer, by outcome.",
		}, []string{"register", "outcome"}),
		consensusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consensus_round_duration_seconds",
			Help:      "Wall-clock duration of a signature-collection round.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"register"}),
		leaderTerm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leader_term",
			Help:      "Current election term this validator has observed for a register.",
		}, []string{"register"}),
		activeValidators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_validators",
			Help:      "Active validator count in a register's roster.",
		}, []string{"register"}),
		controlActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_actions_applied_total",
			Help:      "Control transactions applied from confirmed dockets, by action type.",
		}, []string{"register", "action_type"}),
		validatorVotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validator_votes_total",
			Help:      "Votes cast by this validator, by decision.",
		}, []string{"register", "decision"}),
	}

	collectors := []prometheus.Collector{
		m.mempoolDepth, m.docketsBuilt, m.consensusRounds, m.consensusDuration,
		m.leaderTerm, m.activeValidators, m.controlActions, m.validatorVotes,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetMempoolDepth records register's current pending transaction count.
func (m *Metrics) SetMempoolDepth(register string, depth int) {
	m.mempoolDepth.WithLabelValues(register).Set(float64(depth))
}

// RecordDocketBuilt increments the docket-proposed counter for register.
func (m *Metrics) RecordDocketBuilt(register string) {
	m.docketsBuilt.WithLabelValues(register).Inc()
}

// RecordConsensusResult records one achieve_consensus outcome and its
// duration for register.
func (m *Metrics) RecordConsensusResult(register string, achieved bool, duration time.Duration) {
	outcome := "failed"
	if achieved {
		outcome = "achieved"
	}
	m.consensusRounds.WithLabelValues(register, outcome).Inc()
	m.consensusDuration.WithLabelValues(register).Observe(duration.Seconds())
}

// SetLeaderTerm records the latest election term this validator has
// observed for register.
func (m *Metrics) SetLeaderTerm(register string, term uint64) {
	m.leaderTerm.WithLabelValues(register).Set(float64(term))
}

// SetActiveValidators records register's current active validator count.
func (m *Metrics) SetActiveValidators(register string, count int) {
	m.activeValidators.WithLabelValues(register).Set(float64(count))
}

// RecordControlActionsApplied adds n to the applied-action counter for
// register and actionType.
func (m *Metrics) RecordControlActionsApplied(register, actionType string, n int) {
	if n <= 0 {
		return
	}
	m.controlActions.WithLabelValues(register, actionType).Add(float64(n))
}

// RecordValidatorVote increments the vote counter for register by
// decision.
func (m *Metrics) RecordValidatorVote(register string, decision types.VoteDecision) {
	m.validatorVotes.WithLabelValues(register, string(decision)).Inc()
}
