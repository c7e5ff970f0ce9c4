/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"fmt"

	"github.com/gravwell/deviceatlas/property"
)

type compareOp int

const (
	opEqual compareOp = iota
	opNotEqual
	opLess
	opLessEqual
	opGreater
	opGreaterEqual
)

type rawClientRules struct {
	Groups []rawClientGroup `json:"rg"`
}

type rawClientGroup struct {
	Match []rawCondition `json:"p"`
	Sets  []rawRuleSet   `json:"t"`
}

type rawCondition struct {
	Prop  int    `json:"p"`
	Op    string `json:"o"`
	Value int    `json:"v"`
}

type condition struct {
	prop  int
	op    compareOp
	value int
}

type clientGroup struct {
	conds []condition
	sets  []ruleSet
}

// clientRules adjusts the result once client side properties are known
type clientRules struct {
	groups []clientGroup
}

func parseOp(s string) (compareOp, error) {
	switch s {
	case ``, `=`, `==`:
		return opEqual, nil
	case `!=`:
		return opNotEqual, nil
	case `<`:
		return opLess, nil
	case `<=`:
		return opLessEqual, nil
	case `>`:
		return opGreater, nil
	case `>=`:
		return opGreaterEqual, nil
	}
	return opEqual, fmt.Errorf("unknown operator %q", s)
}

func (op compareOp) ordering() bool {
	return op >= opLess
}

func (t *Tree) compileClientRules(raw *rawClientRules) (cr *clientRules, err error) {
	cr = &clientRules{}
	for i, rg := range raw.Groups {
		var g clientGroup
		for _, rc := range rg.Match {
			c := condition{prop: rc.Prop, value: rc.Value}
			if err = t.checkProp(rc.Prop); err != nil {
				return
			} else if err = t.checkValue(rc.Value); err != nil {
				return
			} else if c.op, err = parseOp(rc.Op); err != nil {
				return
			}
			g.conds = append(g.conds, c)
		}
		if g.sets, err = t.compileRuleSets(rg.Sets, t.regexes, false); err != nil {
			err = fmt.Errorf("group %d: %w", i, err)
			return
		}
		cr.groups = append(cr.groups, g)
	}
	return
}

// holds evaluates a condition against the merged bag. Ordering operators
// only apply to numeric properties.
func (c condition) holds(t *Tree, bag property.Bag) bool {
	have, ok := bag[t.propertyName(c.prop)]
	if !ok {
		return false
	}
	want, err := t.value(c.prop, c.value)
	if err != nil {
		return false
	}
	if have, err = property.Coerce(want.Type(), have); err != nil {
		return false
	}
	switch c.op {
	case opEqual:
		return have.Equal(want)
	case opNotEqual:
		return !have.Equal(want)
	}
	if !want.Type().Numeric() {
		return false
	}
	r, ok := have.Compare(want)
	if !ok {
		return false
	}
	switch c.op {
	case opLess:
		return r < 0
	case opLessEqual:
		return r <= 0
	case opGreater:
		return r > 0
	case opGreaterEqual:
		return r >= 0
	}
	return false
}

func (g *clientGroup) matches(t *Tree, bag property.Bag) bool {
	if len(g.conds) == 0 {
		return false
	}
	for _, c := range g.conds {
		if !c.holds(t, bag) {
			return false
		}
	}
	return true
}

// apply merges the client properties into bag and runs the rule groups,
// selected by condition and then by search regex the same way as the UA rules.
// Precedence is client properties, then any second walk, then the original result.
func (cr *clientRules) apply(t *Tree, ua string, bag, client property.Bag) {
	bag.Merge(client)
	var selected []ruleSet
	seen := map[selection]bool{}
	for gi := range cr.groups {
		g := &cr.groups[gi]
		if !g.matches(t, bag) {
			continue
		}
		if si, ok := pickRuleSet(g.sets, ua); ok {
			selected = append(selected, g.sets[si])
			seen[selection{group: gi, set: si}] = true
		}
	}
	for gi := range cr.groups {
		if si, ok := searchRuleSet(cr.groups[gi].sets, ua); ok {
			if sel := (selection{group: gi, set: si}); !seen[sel] {
				selected = append(selected, cr.groups[gi].sets[si])
				seen[sel] = true
			}
		}
	}
	for _, rs := range selected {
		if rs.ua < 0 {
			continue
		}
		ids := idMap{}
		t.walk(t.values[rs.ua].(string), ids, nil)
		second := property.NewBag()
		t.bag(ids, second)
		for k, v := range second {
			if _, ok := client[k]; !ok {
				bag.Set(k, v)
			}
		}
	}
	for _, rs := range selected {
		t.execute(rs, ua, bag, nil)
	}
}
