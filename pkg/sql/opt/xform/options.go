// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"math"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"
)

// Options configures a search. The zero value is valid and means a sequential,
// unbounded search with every rule enabled.
type Options struct {
	// Parallelism is the maximum number of child groups explored or
	// implemented concurrently by one worker. Values <= 1 run sequentially.
	// Rule sets that can produce cyclic memos must run sequentially: two
	// workers waiting on each other's groups never finish.
	Parallelism int `yaml:"parallelism"`

	// MaxExploreSteps bounds the total number of explore rule firings. Zero
	// means unbounded.
	MaxExploreSteps int `yaml:"max_explore_steps"`

	// CostUpperBound is the initial cost budget of the root group. Candidates
	// whose cost exceeds the budget are pruned. Zero means no bound.
	CostUpperBound float64 `yaml:"cost_upper_bound"`

	// DisabledRules lists rules, by name, which are never fired.
	DisabledRules []string `yaml:"disabled_rules"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Parallelism: 1}
}

// ParseOptions parses options from YAML, starting from DefaultOptions. Unknown
// fields are rejected, and the result is validated.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return Options{}, errors.Wrap(err, "parsing optimizer options")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate returns an error if any of the options is out of range or names an
// unknown rule.
func (o *Options) Validate() error {
	if o.Parallelism < 0 {
		return errors.Newf("parallelism must be non-negative, got %d", o.Parallelism)
	}
	if o.MaxExploreSteps < 0 {
		return errors.Newf("max_explore_steps must be non-negative, got %d", o.MaxExploreSteps)
	}
	if math.IsNaN(o.CostUpperBound) || math.IsInf(o.CostUpperBound, 0) || o.CostUpperBound < 0 {
		return errors.Newf("cost_upper_bound must be a finite non-negative number, got %v",
			o.CostUpperBound)
	}
	_, err := o.disabledRuleSet()
	return err
}

func (o *Options) disabledRuleSet() (opt.RuleSet, error) {
	var s opt.RuleSet
	for _, name := range o.DisabledRules {
		r, ok := opt.ParseRuleName(name)
		if !ok {
			return opt.RuleSet{}, errors.Newf("unknown rule %q", name)
		}
		s.Add(r)
	}
	return s, nil
}

// initialBudget returns the budget of the root group.
func (o *Options) initialBudget() memo.Cost {
	if o.CostUpperBound == 0 {
		return memo.MaxCost
	}
	return memo.Cost{C: o.CostUpperBound}
}
