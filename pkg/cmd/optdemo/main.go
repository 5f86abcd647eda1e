// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// optdemo builds a join over a toy catalog, optimizes it, and prints the plan
// along with the memo and the work the optimizer did.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/sql/opt/testutils/testexpr"
	"github.com/cockroachdb/cascades/pkg/sql/opt/xform"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/errors"
	humanize "github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootFlags = pflag.NewFlagSet(`optdemo`, pflag.ExitOnError)
var configFile = rootFlags.String("config", "", "YAML file holding the optimizer options")
var parallelism = rootFlags.Int("parallelism", 1, "number of child groups searched concurrently")
var maxExploreSteps = rootFlags.Int("max-explore-steps", 0,
	"maximum number of explore rule applications (0 means unbounded)")
var costUpperBound = rootFlags.Float64("cost-upper-bound", 0,
	"initial cost budget of the root group (0 means unbounded)")
var disabledRules = rootFlags.StringSlice("disable", nil, "rules which are never fired")
var rowCounts = rootFlags.Float64Slice("rows", []float64{1000, 10, 100},
	"row count of each joined table; one table is created per entry")
var orderedTables = rootFlags.StringSlice("ordered", nil,
	"tables whose rows are stored ordered on the first column")
var ordering = rootFlags.String("ordering", "", "ordering required of the plan, e.g. +1")
var showMemo = rootFlags.Bool("memo", false, "print the memo after optimization")
var showDot = rootFlags.Bool("dot", false, "print the memo as a Graphviz digraph after optimization")
var verbosity = rootFlags.Int32("v", 0, "log verbosity")

var rootCmd = &cobra.Command{
	Use:   "optdemo",
	Short: "optimize a join over a toy catalog",
	Long: `optdemo creates one table per --rows entry, joins them left-deep,
and searches for the cheapest plan.

Examples:

  optdemo --rows 1000,10,100 --parallelism 4
  optdemo --config opts.yaml --ordered t1,t2 --ordering +1 --memo
  optdemo --rows 1000,10 --dot | dot -Tsvg > memo.svg
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(cmd.Flags())
		if err != nil {
			return err
		}
		log.SetVerbosity(*verbosity)
		required, err := parseRequired(*ordering)
		if err != nil {
			return err
		}
		cfg := demoConfig{
			opts:     opts,
			rows:     *rowCounts,
			ordered:  *orderedTables,
			required: required,
			showMemo: *showMemo,
			showDot:  *showDot,
		}
		return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg)
	},
}

type demoConfig struct {
	opts     xform.Options
	rows     []float64
	ordered  []string
	required *physical.Required
	showMemo bool
	showDot  bool
}

// loadOptions reads the --config file, if any, and applies the flags which
// were set explicitly on top of it.
func loadOptions(flags *pflag.FlagSet) (xform.Options, error) {
	opts := xform.DefaultOptions()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return xform.Options{}, err
		}
		if opts, err = xform.ParseOptions(data); err != nil {
			return xform.Options{}, errors.Wrapf(err, "%s", *configFile)
		}
	}
	if flags.Changed("parallelism") {
		opts.Parallelism = *parallelism
	}
	if flags.Changed("max-explore-steps") {
		opts.MaxExploreSteps = *maxExploreSteps
	}
	if flags.Changed("cost-upper-bound") {
		opts.CostUpperBound = *costUpperBound
	}
	if flags.Changed("disable") {
		opts.DisabledRules = append(opts.DisabledRules, *disabledRules...)
	}
	return opts, opts.Validate()
}

func parseRequired(s string) (*physical.Required, error) {
	o, err := physical.ParseOrdering(s)
	if err != nil {
		return nil, err
	}
	if o.Empty() {
		return physical.MinRequired, nil
	}
	return &physical.Required{Ordering: o}, nil
}

// buildCatalog creates tables t1, t2, ... with the given row counts.
func buildCatalog(rows []float64, ordered []string) (*testexpr.Catalog, error) {
	firstCol, err := physical.ParseOrdering("+1")
	if err != nil {
		return nil, err
	}
	cat := testexpr.NewCatalog()
	for i, n := range rows {
		if err := cat.AddTable(&testexpr.Table{
			Name:     fmt.Sprintf("t%d", i+1),
			RowCount: n,
		}); err != nil {
			return nil, err
		}
	}
	for _, name := range ordered {
		t, ok := cat.Table(name)
		if !ok {
			return nil, errors.Newf("unknown table %q", name)
		}
		t.Ordering = firstCol
	}
	return cat, nil
}

// leftDeepJoin returns the expression joining every table of the catalog, in
// name order.
func leftDeepJoin(cat *testexpr.Catalog) string {
	tables := cat.Tables()
	expr := fmt.Sprintf("(Scan %s)", tables[0].Name)
	for _, t := range tables[1:] {
		expr = fmt.Sprintf("(Join %s (Scan %s))", expr, t.Name)
	}
	return expr
}

func runDemo(ctx context.Context, w io.Writer, cfg demoConfig) error {
	if len(cfg.rows) == 0 {
		return errors.New("at least one table is required")
	}
	cat, err := buildCatalog(cfg.rows, cfg.ordered)
	if err != nil {
		return err
	}
	expr := leftDeepJoin(cat)
	n, err := testexpr.Parse(cat, expr)
	if err != nil {
		return err
	}
	m := memo.New()
	root, err := m.InsertTree(n)
	if err != nil {
		return err
	}
	rules, err := testexpr.NewRuleRegistry(cat)
	if err != nil {
		return err
	}
	o := xform.New(m, rules, testexpr.NewCoster(m, cat), testexpr.NewStatisticsBuilder(cat), cfg.opts)

	fmt.Fprintf(w, "query: %s\n\n", expr)
	best, cost, err := o.Optimize(ctx, root, cfg.required)
	if err != nil {
		return err
	}
	plan, err := o.ExplainPlan(root, cfg.required)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "best: %s cost=%s\n%s\n", testexpr.FormatExpr(best), cost, plan)

	if cfg.showMemo {
		fmt.Fprintf(w, "%s\n", m.FormatString(memo.FmtPretty|memo.FmtStats))
	}
	if cfg.showDot {
		fmt.Fprintf(w, "%s\n", m.FormatDot())
	}
	writeGroupSummary(w, m)
	fmt.Fprintf(w, "\n%s groups, %s expressions, ~%s\n\n",
		humanize.Comma(int64(m.GroupCount())), humanize.Comma(int64(m.ExprCount())),
		humanize.IBytes(uint64(m.MemoryEstimate())))
	return writeMetrics(w, o.Metrics())
}

// writeGroupSummary prints one row per group with its size and winners.
func writeGroupSummary(w io.Writer, m *memo.Memo) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"group", "logical", "physical", "rows", "winner", "cost"})
	tbl.SetAutoFormatHeaders(false)
	tbl.SetAlignment(tablewriter.ALIGN_LEFT)
	tbl.SetBorder(false)
	m.ForEachGroup(func(g *memo.Group) {
		var logical, phys int
		for _, e := range g.Members() {
			if e.Op().IsPhysical() {
				phys++
			} else {
				logical++
			}
		}
		rows := "-"
		if s := g.Statistics(); s != nil {
			rows = humanize.Commaf(s.RowCount)
		}
		winner, cost := "-", "-"
		if wn, ok := g.Winner(opt.MinPhysPropsID); ok {
			winner, cost = testexpr.FormatExpr(wn.Expr), wn.Cost.String()
		}
		tbl.Append([]string{
			g.ID().String(), fmt.Sprint(logical), fmt.Sprint(phys), rows, winner, cost,
		})
	})
	tbl.Render()
}

// writeMetrics registers the optimizer counters with a fresh registry and
// prints their values.
func writeMetrics(w io.Writer, metrics *xform.Metrics) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fmt.Fprintf(w, "%s %s\n",
				strings.TrimPrefix(mf.GetName(), "opt_xform_"), humanize.Ftoa(metric.GetCounter().GetValue()))
		}
	}
	return nil
}

func init() {
	rootCmd.Flags().AddFlagSet(rootFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
