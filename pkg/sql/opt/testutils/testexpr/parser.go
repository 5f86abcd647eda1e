// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testexpr

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/errors"
)

// Parse parses an expression tree written as an s-expression, e.g.:
//
//	(Join (Join (Scan a) (Scan b)) (Scan c))
//
// An operator is written as its name followed by its arguments: a table name
// for Scan and TableScan, and two child expressions for the joins. A child can
// also be a reference to an existing memo group, e.g. G3. TableScan takes its
// ordering from the catalog.
func Parse(cat *Catalog, input string) (memo.Node, error) {
	p := parser{cat: cat, toks: tokenize(input)}
	n, err := p.parseExpr()
	if err != nil {
		return memo.Node{}, err
	}
	if p.pos != len(p.toks) {
		return memo.Node{}, errors.Newf("unexpected %q after expression", p.toks[p.pos])
	}
	return n, nil
}

type parser struct {
	cat  *Catalog
	toks []string
	pos  int
}

func tokenize(input string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func (p *parser) next() (string, error) {
	if p.pos >= len(p.toks) {
		return "", errors.New("unexpected end of input")
	}
	tok := p.toks[p.pos]
	p.pos++
	return tok, nil
}

func (p *parser) expect(tok string) error {
	got, err := p.next()
	if err != nil {
		return err
	}
	if got != tok {
		return errors.Newf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *parser) parseExpr() (memo.Node, error) {
	tok, err := p.next()
	if err != nil {
		return memo.Node{}, err
	}
	if tok != "(" {
		return parseGroupRef(tok)
	}

	name, err := p.next()
	if err != nil {
		return memo.Node{}, err
	}
	var n memo.Node
	switch name {
	case "Scan", "TableScan":
		tabName, err := p.next()
		if err != nil {
			return memo.Node{}, err
		}
		tab, ok := p.cat.Table(tabName)
		if !ok {
			return memo.Node{}, errors.Newf("unknown table %q", tabName)
		}
		if name == "Scan" {
			n = memo.Tree(&Scan{Table: tab.Name})
		} else {
			n = memo.Tree(&TableScan{Table: tab.Name, Ordering: tab.Ordering})
		}

	case "Join", "HashJoin", "MergeJoin", "LoopJoin":
		var children [2]memo.Node
		for i := range children {
			if children[i], err = p.parseExpr(); err != nil {
				return memo.Node{}, err
			}
		}
		n = memo.Tree(joinOperator(name), children[0], children[1])

	default:
		return memo.Node{}, errors.Newf("unknown operator %q", name)
	}
	if err := p.expect(")"); err != nil {
		return memo.Node{}, err
	}
	return n, nil
}

func joinOperator(name string) opt.Operator {
	switch name {
	case "HashJoin":
		return &HashJoin{}
	case "MergeJoin":
		return &MergeJoin{}
	case "LoopJoin":
		return &LoopJoin{}
	}
	return &Join{}
}

func parseGroupRef(tok string) (memo.Node, error) {
	if len(tok) < 2 || tok[0] != 'G' {
		return memo.Node{}, errors.Newf("expected expression or group reference, got %q", tok)
	}
	id, err := strconv.ParseUint(tok[1:], 10, 32)
	if err != nil || id == 0 {
		return memo.Node{}, errors.Newf("invalid group reference %q", tok)
	}
	return memo.GroupRef(opt.GroupID(id)), nil
}
