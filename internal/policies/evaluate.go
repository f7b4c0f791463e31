package policies

import (
	"sort"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
)

// Rule names the branch of the evaluation that produced a verdict.
type Rule string

const (
	RuleNoRole         Rule = "no_role"
	RuleNoPolicy       Rule = "no_policy"
	RuleAttributeMatch Rule = "attribute_match"
	RuleGeneralDeny    Rule = "general_deny"
	RuleGeneralAllow   Rule = "general_allow"
	RuleDefault        Rule = "default"
)

// Outcome is a verdict plus the rule and, where one decided, the policy behind it.
type Outcome struct {
	Allowed  bool   `json:"allowed"`
	Rule     Rule   `json:"rule"`
	PolicyID string `json:"policyId,omitempty"`
}

// Request is the input of a single evaluation.
type Request struct {
	RoleIDs      []string
	ResourceType permissions.ResourceType
	ResourceID   string
	Attributes   map[string]string
}

// Match returns the policies that apply to req in evaluation order:
// instance-scoped before role-wide, then oldest first, then by id.
func Match(candidates []Policy, req Request) []Policy {
	roles := make(map[string]struct{}, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		roles[id] = struct{}{}
	}
	matched := make([]Policy, 0, len(candidates))
	for _, p := range candidates {
		if _, ok := roles[p.RoleID]; !ok {
			continue
		}
		if p.ResourceType != req.ResourceType {
			continue
		}
		if p.ResourceID != "" && p.ResourceID != req.ResourceID {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.InstanceScoped() != b.InstanceScoped() {
			return a.InstanceScoped()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return matched
}

// Evaluate applies the attribute policy rules to candidates:
//
//  1. no matching policy allows;
//  2. the first attribute-scoped policy whose attribute equals the request's decides;
//  3. otherwise any general deny denies, else any general allow allows;
//  4. otherwise allow.
func Evaluate(candidates []Policy, req Request) Outcome {
	if len(req.RoleIDs) == 0 {
		return Outcome{Allowed: false, Rule: RuleNoRole}
	}
	matched := Match(candidates, req)
	if len(matched) == 0 {
		return Outcome{Allowed: true, Rule: RuleNoPolicy}
	}

	for _, p := range matched {
		if !p.AttributeScoped() {
			continue
		}
		value, ok := req.Attributes[p.AttributeName]
		if ok && value == p.AttributeValue {
			return Outcome{Allowed: p.Condition, Rule: RuleAttributeMatch, PolicyID: p.ID}
		}
	}

	var allow *Policy
	for i := range matched {
		p := matched[i]
		if !p.General() {
			continue
		}
		if !p.Condition {
			return Outcome{Allowed: false, Rule: RuleGeneralDeny, PolicyID: p.ID}
		}
		if allow == nil {
			allow = &matched[i]
		}
	}
	if allow != nil {
		return Outcome{Allowed: true, Rule: RuleGeneralAllow, PolicyID: allow.ID}
	}
	return Outcome{Allowed: true, Rule: RuleDefault}
}
