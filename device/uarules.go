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

	"github.com/goccy/go-json"
	"github.com/gravwell/deviceatlas/property"
)

type rawUaRules struct {
	Skip    []int                      `json:"sk"`
	Regexes map[string]json.RawMessage `json:"reg"`
	Groups  []rawUaGroup               `json:"rg"`
}

type rawUaGroup struct {
	Match map[string]int `json:"p"`
	Sets  []rawRuleSet   `json:"t"`
}

type uaGroup struct {
	match []idPair
	sets  []ruleSet
}

// uaRules refines the walk output by running regexes over the user agent
type uaRules struct {
	skip       []int
	groups     []uaGroup
	matchProps idSet
	ruleProps  idSet
}

func (t *Tree) compileUaRules(raw *rawUaRules) (ur *uaRules, err error) {
	regexes := t.regexes
	if len(raw.Regexes) > 0 {
		if regexes, err = compileRegexTables(raw.Regexes, t.regexes); err != nil {
			return
		}
	}
	ur = &uaRules{matchProps: idSet{}}
	for _, p := range raw.Skip {
		if err = t.checkProp(p); err != nil {
			return
		}
		ur.skip = append(ur.skip, p)
	}
	allSets := make([][]ruleSet, 0, len(raw.Groups))
	for i, rg := range raw.Groups {
		var g uaGroup
		for k, v := range rg.Match {
			var pid int
			if pid, err = t.propID(k); err != nil {
				return
			} else if err = t.checkValue(v); err != nil {
				return
			}
			g.match = append(g.match, idPair{prop: pid, value: v})
			ur.matchProps[pid] = true
		}
		if g.sets, err = t.compileRuleSets(rg.Sets, regexes, true); err != nil {
			err = fmt.Errorf("group %d: %w", i, err)
			return
		}
		allSets = append(allSets, g.sets)
		ur.groups = append(ur.groups, g)
	}
	ur.ruleProps = ruleProps(allSets...)
	return
}

// matches requires every matcher pair to be present in the walk output
func (g *uaGroup) matches(ids idMap) bool {
	if len(g.match) == 0 {
		return false
	}
	for _, p := range g.match {
		if v, ok := ids[p.prop]; !ok || v != p.value {
			return false
		}
	}
	return true
}

// covers is a quick check that the walk produced at least one matcher property
func (ids idMap) covers(props idSet) bool {
	for p := range props {
		if _, ok := ids[p]; ok {
			return true
		}
	}
	return false
}

// skipped reports whether a skip list property is truthy in the walk output
func (ur *uaRules) skipped(t *Tree, ids idMap) bool {
	for _, p := range ur.skip {
		vid, ok := ids[p]
		if !ok {
			continue
		}
		if v, err := t.value(p, vid); err == nil && v.Truthy() {
			return true
		}
	}
	return false
}

// apply selects rule sets by matcher and then by search regex and executes
// them in selection order against ua.
func (ur *uaRules) apply(t *Tree, ua string, ids idMap, bag property.Bag, sought idSet) {
	if sought != nil && !sought.intersects(ur.ruleProps) {
		return
	} else if ur.skipped(t, ids) {
		return
	}
	var selected []selection
	seen := map[selection]bool{}
	for gi := range ur.groups {
		g := &ur.groups[gi]
		if !ids.covers(ur.matchProps) || !g.matches(ids) {
			continue
		}
		if si, ok := pickRuleSet(g.sets, ua); ok {
			sel := selection{group: gi, set: si}
			selected = append(selected, sel)
			seen[sel] = true
		}
	}
	for gi := range ur.groups {
		if si, ok := searchRuleSet(ur.groups[gi].sets, ua); ok {
			if sel := (selection{group: gi, set: si}); !seen[sel] {
				selected = append(selected, sel)
				seen[sel] = true
			}
		}
	}
	for _, sel := range selected {
		t.execute(ur.groups[sel.group].sets[sel.set], ua, bag, sought)
	}
}
