/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package device

import (
	"errors"
	"fmt"

	"github.com/dlclark/regexp2"
	"github.com/gravwell/deviceatlas/property"
)

var errRegexRule = errors.New("regex rules are not permitted here")

type rawRuleSet struct {
	Refine *int      `json:"f"`
	Search *int      `json:"s"`
	UA     *int      `json:"u"`
	Rules  []rawRule `json:"r"`
}

type rawRule struct {
	Prop  int  `json:"p"`
	Value *int `json:"v"`
	Regex *int `json:"r"`
	Group int  `json:"m"`
}

// rule writes a single property, either a fixed value or a regex capture
type rule struct {
	prop  int
	value int
	re    *regexp2.Regexp
	group int
}

// ruleSet is one selectable entry of a rule group
type ruleSet struct {
	refine *regexp2.Regexp
	search *regexp2.Regexp
	ua     int //value id of a user agent to re-walk, -1 for none
	rules  []rule
}

// selection identifies a rule set within a list of groups
type selection struct {
	group int
	set   int
}

func (t *Tree) compileRuleSets(raw []rawRuleSet, regexes regexTable, allowRegex bool) (sets []ruleSet, err error) {
	sets = make([]ruleSet, 0, len(raw))
	for i, rs := range raw {
		set := ruleSet{ua: -1}
		if rs.Refine != nil {
			if set.refine, err = regexes.get(*rs.Refine); err != nil {
				return
			}
		}
		if rs.Search != nil {
			if set.search, err = regexes.get(*rs.Search); err != nil {
				return
			}
		}
		if rs.UA != nil {
			if err = t.checkValue(*rs.UA); err != nil {
				return
			} else if _, ok := t.values[*rs.UA].(string); !ok {
				err = fmt.Errorf("rule set %d user agent value %d is not a string", i, *rs.UA)
				return
			}
			set.ua = *rs.UA
		}
		for _, rr := range rs.Rules {
			var r rule
			if r, err = t.compileRule(rr, regexes, allowRegex); err != nil {
				err = fmt.Errorf("rule set %d: %w", i, err)
				return
			}
			set.rules = append(set.rules, r)
		}
		sets = append(sets, set)
	}
	return
}

func (t *Tree) compileRule(rr rawRule, regexes regexTable, allowRegex bool) (r rule, err error) {
	r = rule{prop: rr.Prop, value: -1, group: rr.Group}
	if err = t.checkProp(rr.Prop); err != nil {
		return
	}
	switch {
	case rr.Value != nil:
		if err = t.checkValue(*rr.Value); err == nil {
			r.value = *rr.Value
		}
	case rr.Regex != nil:
		if !allowRegex {
			err = errRegexRule
		} else if rr.Group < 0 {
			err = fmt.Errorf("negative match group %d", rr.Group)
		} else {
			r.re, err = regexes.get(*rr.Regex)
		}
	default:
		err = fmt.Errorf("rule for property %d has neither a value nor a regex", rr.Prop)
	}
	return
}

// pickRuleSet chooses the entry for a group whose matcher fired. A single
// entry is taken as is, otherwise the first entry whose refine regex
// matches wins. Entries without a refine regex always match.
func pickRuleSet(sets []ruleSet, ua string) (int, bool) {
	if len(sets) == 1 {
		return 0, true
	}
	for i, s := range sets {
		if s.refine == nil || regexMatches(s.refine, ua) {
			return i, true
		}
	}
	return -1, false
}

// searchRuleSet finds the first entry whose search regex matches ua.
func searchRuleSet(sets []ruleSet, ua string) (int, bool) {
	for i, s := range sets {
		if s.search != nil && regexMatches(s.search, ua) {
			return i, true
		}
	}
	return -1, false
}

// ruleProps is the set of property ids any of the rule sets can produce
func ruleProps(sets ...[]ruleSet) idSet {
	r := idSet{}
	for _, ss := range sets {
		for _, s := range ss {
			for _, rl := range s.rules {
				r[rl.prop] = true
			}
		}
	}
	return r
}

// execute applies a rule set to the bag, sought restricts which properties are written
func (t *Tree) execute(rs ruleSet, ua string, bag property.Bag, sought idSet) {
	for _, r := range rs.rules {
		if sought != nil && !sought[r.prop] {
			continue
		}
		if r.re == nil {
			if v, err := t.value(r.prop, r.value); err == nil {
				bag.Set(t.propertyName(r.prop), v)
			}
			continue
		}
		s, ok := regexGroup(r.re, ua, r.group)
		if !ok {
			continue
		}
		if v, err := property.Coerce(t.names[r.prop].Type, s); err == nil {
			bag.Set(t.propertyName(r.prop), v)
		}
	}
}

func (s idSet) intersects(o idSet) bool {
	for k := range s {
		if o[k] {
			return true
		}
	}
	return false
}
