// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "opt"
	metricsSubsystem = "xform"
)

// Metrics counts the work done by an Optimizer. The counters are safe for
// concurrent use by the explore and implement workers.
type Metrics struct {
	GroupsExplored      prometheus.Counter
	ExploreRulesFired   prometheus.Counter
	ImplementRulesFired prometheus.Counter
	ExprsInserted       prometheus.Counter
	DuplicatesDiscarded prometheus.Counter
	GroupsMerged        prometheus.Counter
	CandidatesCosted    prometheus.Counter
	InvalidCosts        prometheus.Counter
	CandidatesPruned    prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics returns a set of unregistered counters.
func NewMetrics() *Metrics {
	return &Metrics{
		GroupsExplored: newCounter("groups_explored",
			"Number of groups claimed for exploration"),
		ExploreRulesFired: newCounter("explore_rules_fired",
			"Number of explore rule applications"),
		ImplementRulesFired: newCounter("implement_rules_fired",
			"Number of implement rule applications"),
		ExprsInserted: newCounter("exprs_inserted",
			"Number of rule results added to the memo"),
		DuplicatesDiscarded: newCounter("duplicates_discarded",
			"Number of rule results discarded because the memo already held them"),
		GroupsMerged: newCounter("groups_merged",
			"Number of groups merged into an equivalent group"),
		CandidatesCosted: newCounter("candidates_costed",
			"Number of physical expressions assigned a cost"),
		InvalidCosts: newCounter("invalid_costs",
			"Number of physical expressions excluded because of an invalid cost"),
		CandidatesPruned: newCounter("candidates_pruned",
			"Number of physical expressions abandoned because they exceeded the cost budget"),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GroupsExplored,
		m.ExploreRulesFired,
		m.ImplementRulesFired,
		m.ExprsInserted,
		m.DuplicatesDiscarded,
		m.GroupsMerged,
		m.CandidatesCosted,
		m.InvalidCosts,
		m.CandidatesPruned,
	}
}

// Register registers every counter with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
