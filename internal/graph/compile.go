package graph

import (
	"fmt"
	"sort"
	"time"
)

// WorkTypeTimesheet is the work-item type approval policies are derived for.
const WorkTypeTimesheet = "timesheet"

// MaskValue is what masked rate fields render as.
const MaskValue = "•••"

// ApprovalStep is one approver in a derived chain. Order is the dense
// positional rank (1-based) after sorting; Rank preserves the source edge's
// original order value so that equal ranks can be recognized as parallel
// approvers. Required=false at a shared rank means any one approver suffices.
type ApprovalStep struct {
	Order     int       `json:"order"`
	PartyID   string    `json:"partyId"`
	PartyType PartyType `json:"partyType"`
	Role      string    `json:"role"`
	Rank      int       `json:"rank"`
	Required  bool      `json:"required"`
}

// ApprovalPolicy is the ordered approval chain for one work-item type.
type ApprovalPolicy struct {
	WorkType   string         `json:"workType"`
	Sequential bool           `json:"sequential"`
	Steps      []ApprovalStep `json:"steps"`
}

// FieldScope identifies the field a visibility rule applies to.
type FieldScope struct {
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
	Field      string `json:"field"`
}

// MaskPolicy hides a field's value from specific node ids.
type MaskPolicy struct {
	Action     string   `json:"action"`
	HiddenFrom []string `json:"hiddenFrom"`
	MaskWith   string   `json:"maskWith"`
}

// VisibilityRule masks one sensitive field. Masking is opt-in per contract:
// contracts with an empty hide-list get no rule.
type VisibilityRule struct {
	Scope    FieldScope `json:"scope"`
	Policy   MaskPolicy `json:"policy"`
	Priority int        `json:"priority"`
}

// RoutingRule and NotificationRule are reserved for future rule types. The
// compiler emits empty lists for both.
type RoutingRule struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
}

type NotificationRule struct {
	Event      string   `json:"event"`
	Recipients []string `json:"recipients"`
}

// CompiledProjectConfig is the versioned, immutable output of compiling a
// graph. It carries its own source graph snapshot for auditability and
// replay.
type CompiledProjectConfig struct {
	ProjectID         string             `json:"projectId"`
	Version           int                `json:"version"`
	CompiledAt        time.Time          `json:"compiledAt"`
	CompiledBy        string             `json:"compiledBy"`
	Graph             Snapshot           `json:"graph"`
	ApprovalPolicies  []ApprovalPolicy   `json:"approvalPolicies"`
	VisibilityRules   []VisibilityRule   `json:"visibilityRules"`
	RoutingRules      []RoutingRule      `json:"routingRules"`
	NotificationRules []NotificationRule `json:"notificationRules"`
}

// RateMaskFor reports whether the given viewer node must see the contract's
// rate masked, and the mask string to show. Downstream rate display calls
// this per contract per viewer.
func (c *CompiledProjectConfig) RateMaskFor(contractID, viewerNodeID string) (string, bool) {
	for _, rule := range c.VisibilityRules {
		if rule.Scope.ObjectType != "contract" || rule.Scope.Field != "rate" {
			continue
		}
		if rule.Scope.ObjectID != contractID {
			continue
		}
		for _, hidden := range rule.Policy.HiddenFrom {
			if hidden == viewerNodeID {
				return rule.Policy.MaskWith, true
			}
		}
	}
	return "", false
}

// Compile derives the approval policy and visibility rules from a graph and
// assembles a CompiledProjectConfig. It is deterministic and side-effect-free:
// identical (nodes, edges) input yields identical derived policy content,
// with only Version and CompiledAt varying across calls.
//
// Compile does not re-run Validate; callers must gate on error-severity
// diagnostics first. Dangling edge references are the one precondition
// enforced here, since compiling over them would produce steps that point at
// nobody.
func Compile(nodes []Node, edges []Edge, projectID, compiledBy string, prior *CompiledProjectConfig) (CompiledProjectConfig, error) {
	index := nodeIndex(nodes)
	for _, e := range edges {
		if _, ok := index[e.Source]; !ok {
			return CompiledProjectConfig{}, fmt.Errorf("edge %s references missing node %s", e.ID, e.Source)
		}
		if _, ok := index[e.Target]; !ok {
			return CompiledProjectConfig{}, fmt.Errorf("edge %s references missing node %s", e.ID, e.Target)
		}
	}

	version := 1
	if prior != nil {
		version = prior.Version + 1
	}

	return CompiledProjectConfig{
		ProjectID:         projectID,
		Version:           version,
		CompiledAt:        time.Now().UTC(),
		CompiledBy:        compiledBy,
		Graph:             Snapshot{Nodes: CloneNodes(nodes), Edges: CloneEdges(edges)},
		ApprovalPolicies:  deriveApprovalPolicies(index, edges),
		VisibilityRules:   deriveVisibilityRules(nodes),
		RoutingRules:      []RoutingRule{},
		NotificationRules: []NotificationRule{},
	}, nil
}

// deriveApprovalPolicies sorts approves edges by their order attribute
// (stable: ties keep declaration order, which fixes fan-in grouping at a
// shared rank) and re-numbers steps densely from 1. Sparse source orders like
// [5, 20] compile to steps [1, 2].
func deriveApprovalPolicies(index map[string]Node, edges []Edge) []ApprovalPolicy {
	var approves []Edge
	for _, e := range edges {
		if e.Type == EdgeApproves {
			approves = append(approves, e)
		}
	}
	if len(approves) == 0 {
		return []ApprovalPolicy{}
	}

	sort.SliceStable(approves, func(i, j int) bool {
		return approvalOrder(approves[i]) < approvalOrder(approves[j])
	})

	steps := make([]ApprovalStep, len(approves))
	for i, e := range approves {
		target := index[e.Target]

		partyType := partyTypeOf(target)
		if partyType == "" {
			partyType = PartyCompany
		}
		role := target.Role()
		if role == "" {
			role = "Approver"
		}

		steps[i] = ApprovalStep{
			Order:     i + 1,
			PartyID:   e.Target,
			PartyType: partyType,
			Role:      role,
			Rank:      approvalOrder(e),
			Required:  e.Approves != nil && e.Approves.Required,
		}
	}

	return []ApprovalPolicy{{
		WorkType:   WorkTypeTimesheet,
		Sequential: true,
		Steps:      steps,
	}}
}

func approvalOrder(e Edge) int {
	if e.Approves == nil {
		return 0
	}
	return e.Approves.Order
}

// deriveVisibilityRules emits one MASK rule per contract node with a
// non-empty hideRateFrom list. Rate is visible to everyone by default.
func deriveVisibilityRules(nodes []Node) []VisibilityRule {
	rules := make([]VisibilityRule, 0)
	for _, n := range nodes {
		if n.Type != NodeContract || n.Contract == nil {
			continue
		}
		hidden := n.Contract.Visibility.HideRateFrom
		if len(hidden) == 0 {
			continue
		}
		rules = append(rules, VisibilityRule{
			Scope: FieldScope{
				ObjectType: "contract",
				ObjectID:   n.ID,
				Field:      "rate",
			},
			Policy: MaskPolicy{
				Action:     "mask",
				HiddenFrom: cloneStrings(hidden),
				MaskWith:   MaskValue,
			},
			Priority: 100,
		})
	}
	return rules
}
