// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testexpr

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/sql/opt/xform"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
)

// Tester runs data-driven tests against a memo built over the toy catalog.
type Tester struct {
	Catalog *Catalog

	mem  *memo.Memo
	root opt.GroupID
}

// NewTester returns a tester with an empty catalog and an empty memo.
func NewTester() *Tester {
	return &Tester{Catalog: NewCatalog(), mem: memo.New()}
}

// Memo returns the memo the tester operates on.
func (t *Tester) Memo() *memo.Memo {
	return t.mem
}

// Root returns the group of the last inserted tree.
func (t *Tester) Root() opt.GroupID {
	return t.root
}

// testerFlags are the arguments accepted by the tester commands.
type testerFlags struct {
	format   memo.FmtFlags
	classes  bool
	required physical.Required
	opts     xform.Options
}

// RunCommand implements the following commands:
//
//   - table name=<name> rows=<count> [ordering=<ordering>] [invalid-cost]
//
//     Adds a table to the catalog.
//
//   - reset
//
//     Replaces the memo with an empty one. The catalog is kept.
//
//   - insert
//
//     Parses the input as an s-expression (see Parse), inserts it into the
//     memo and outputs its group. The group becomes the root for the
//     following commands.
//
//   - memo [format=raw|pretty] [stats] [classes]
//
//     Outputs the memo.
//
//   - explore [flags]
//
//     Explores the root group and outputs the memo.
//
//   - implement [flags]
//
//     Implements the root group and outputs the memo.
//
//   - optimize [flags]
//
//     Optimizes the root group and outputs its best expression and cost.
//
//   - explain [flags]
//
//     Optimizes the root group and outputs the best plan.
//
// Supported flags:
//
//   - classes: instead of the memo, output the number of groups and, for each
//     group, the tables it joins. Equivalent groups that were not merged show
//     up as repeated lines.
//   - ordering: the ordering required of the root, e.g. ordering=+1.
//   - disable: rules to disable, e.g. disable=(CommuteJoin,AssociateJoin).
//   - parallelism, max-explore-steps, cost-upper-bound: see xform.Options.
//
// Errors are output as "error: <message>".
func (t *Tester) RunCommand(tb testing.TB, d *datadriven.TestData) string {
	var flags testerFlags
	flags.opts = xform.DefaultOptions()
	if d.Cmd == "memo" {
		flags.format = memo.FmtPretty
	} else {
		flags.format = memo.FmtRaw
	}

	switch d.Cmd {
	case "table":
		tab, err := parseTable(d.CmdArgs)
		if err != nil {
			d.Fatalf(tb, "%v", err)
		}
		if err := t.Catalog.AddTable(tab); err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		return tab.String() + "\n"

	case "reset":
		t.mem = memo.New()
		t.root = opt.InvalidGroupID
		return ""
	}

	for _, a := range d.CmdArgs {
		if err := flags.set(a); err != nil {
			d.Fatalf(tb, "%v", err)
		}
	}
	ctx := context.Background()

	switch d.Cmd {
	case "insert":
		n, err := Parse(t.Catalog, d.Input)
		if err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		id, err := t.mem.InsertTree(n)
		if err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		t.root = id
		return id.String() + "\n"

	case "memo":
		return t.formatMemo(flags)

	case "explore":
		if err := t.newOptimizer(flags.opts).ExploreGroup(ctx, t.root); err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		return t.formatMemo(flags)

	case "implement":
		if err := t.newOptimizer(flags.opts).ImplementGroup(ctx, t.root); err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		return t.formatMemo(flags)

	case "optimize":
		e, cost, err := t.newOptimizer(flags.opts).Optimize(ctx, t.root, &flags.required)
		if err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		return fmt.Sprintf("%s: %s cost=%s\n", e.Group(), FormatExpr(e), cost)

	case "explain":
		o := t.newOptimizer(flags.opts)
		if _, _, err := o.Optimize(ctx, t.root, &flags.required); err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		s, err := o.ExplainPlan(t.root, &flags.required)
		if err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		return s

	default:
		d.Fatalf(tb, "unsupported command: %s", d.Cmd)
		return ""
	}
}

func (t *Tester) formatMemo(flags testerFlags) string {
	if flags.classes {
		return FormatClasses(t.mem)
	}
	return t.mem.FormatString(flags.format)
}

// FormatClasses outputs the number of groups in the memo followed by one line
// per group, listing the tables joined by the group in sorted order, e.g.
// "a b b". Lines are sorted.
func FormatClasses(mem *memo.Memo) string {
	tables := make(map[opt.GroupID][]string)
	var lines []string
	mem.ForEachGroup(func(g *memo.Group) {
		lines = append(lines, strings.Join(groupTables(mem, g.ID(), tables), " "))
	})
	sort.Strings(lines)

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d groups\n", len(lines))
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// groupTables returns the sorted tables scanned below the first valid member
// of the group, memoized in cache.
func groupTables(mem *memo.Memo, id opt.GroupID, cache map[opt.GroupID][]string) []string {
	if res, ok := cache[id]; ok {
		return res
	}
	g, err := mem.Group(id)
	if err != nil {
		return []string{"<" + id.String() + ">"}
	}
	e := g.FirstValidMember()
	if e == nil {
		return nil
	}
	var res []string
	switch t := e.Op().(type) {
	case *Scan:
		res = []string{t.Table}
	case *TableScan:
		res = []string{t.Table}
	default:
		for i := 0; i < e.ChildCount(); i++ {
			res = append(res, groupTables(mem, e.Child(i), cache)...)
		}
		sort.Strings(res)
	}
	cache[id] = res
	return res
}

// newOptimizer returns an optimizer over the tester's memo, with the toy
// rules, coster and statistics builder.
func (t *Tester) newOptimizer(opts xform.Options) *xform.Optimizer {
	rules, err := NewRuleRegistry(t.Catalog)
	if err != nil {
		panic(err)
	}
	return xform.New(t.mem, rules, NewCoster(t.mem, t.Catalog), NewStatisticsBuilder(t.Catalog), opts)
}

// FormatExpr formats a multi-expression the way the memo does, e.g.
// "(HashJoin G1 G2)".
func FormatExpr(e *memo.MultiExpr) string {
	var buf strings.Builder
	buf.WriteByte('(')
	buf.WriteString(e.Op().String())
	for i := 0; i < e.ChildCount(); i++ {
		buf.WriteByte(' ')
		buf.WriteString(e.Child(i).String())
	}
	buf.WriteByte(')')
	return buf.String()
}

func parseTable(args []datadriven.CmdArg) (*Table, error) {
	tab := &Table{}
	for _, a := range args {
		switch a.Key {
		case "name":
			if len(a.Vals) != 1 {
				return nil, errors.New("name requires one value")
			}
			tab.Name = a.Vals[0]

		case "rows":
			if len(a.Vals) != 1 {
				return nil, errors.New("rows requires one value")
			}
			rows, err := strconv.ParseFloat(a.Vals[0], 64)
			if err != nil {
				return nil, errors.Wrap(err, "invalid rows")
			}
			tab.RowCount = rows

		case "ordering":
			if len(a.Vals) != 1 {
				return nil, errors.New("ordering requires one value")
			}
			ordering, err := physical.ParseOrdering(a.Vals[0])
			if err != nil {
				return nil, err
			}
			tab.Ordering = ordering

		case "invalid-cost":
			tab.InvalidCost = true

		default:
			return nil, errors.Newf("unknown argument: %s", a.Key)
		}
	}
	return tab, nil
}

func (f *testerFlags) set(arg datadriven.CmdArg) error {
	switch arg.Key {
	case "format":
		if len(arg.Vals) != 1 {
			return errors.New("format requires one value")
		}
		switch arg.Vals[0] {
		case "raw":
			f.format |= memo.FmtRaw
		case "pretty":
			f.format &^= memo.FmtRaw
		default:
			return errors.Newf("unknown format value %s", arg.Vals[0])
		}

	case "stats":
		f.format |= memo.FmtStats

	case "classes":
		f.classes = true

	case "ordering":
		if len(arg.Vals) != 1 {
			return errors.New("ordering requires one value")
		}
		ordering, err := physical.ParseOrdering(arg.Vals[0])
		if err != nil {
			return err
		}
		f.required.Ordering = ordering

	case "disable":
		if len(arg.Vals) == 0 {
			return errors.New("disable requires arguments")
		}
		f.opts.DisabledRules = append(f.opts.DisabledRules, arg.Vals...)

	case "parallelism", "max-explore-steps":
		if len(arg.Vals) != 1 {
			return errors.Newf("%s requires one value", arg.Key)
		}
		v, err := strconv.Atoi(arg.Vals[0])
		if err != nil {
			return errors.Wrapf(err, "invalid %s", arg.Key)
		}
		if arg.Key == "parallelism" {
			f.opts.Parallelism = v
		} else {
			f.opts.MaxExploreSteps = v
		}

	case "cost-upper-bound":
		if len(arg.Vals) != 1 {
			return errors.New("cost-upper-bound requires one value")
		}
		v, err := strconv.ParseFloat(arg.Vals[0], 64)
		if err != nil {
			return errors.Wrap(err, "invalid cost-upper-bound")
		}
		f.opts.CostUpperBound = v

	default:
		return errors.Newf("unknown argument: %s", arg.Key)
	}
	return nil
}
