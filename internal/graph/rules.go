package graph

import (
	"fmt"
	"strings"
)

// EdgeTypeDef describes one edge type for the editing UI.
type EdgeTypeDef struct {
	ID          EdgeType `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
}

// EdgeCatalog lists every edge type in declaration order. The fallback
// recommendation returns them in this order.
var EdgeCatalog = []EdgeTypeDef{
	{ID: EdgeApproves, Label: "Approves", Description: "Source submits work, target approves it"},
	{ID: EdgeFunds, Label: "Funds", Description: "Source provides budget to target"},
	{ID: EdgeSubcontracts, Label: "Subcontracts", Description: "Source engages target as a subcontractor"},
	{ID: EdgeBillsTo, Label: "Bills To", Description: "Source invoices target"},
	{ID: EdgeAssigns, Label: "Assigns", Description: "Source assigns work to target"},
	{ID: EdgeWorksOn, Label: "Works On", Description: "Source performs work for target"},
	{ID: EdgeEmploys, Label: "Employs", Description: "Source employs target"},
	{ID: EdgeReportsTo, Label: "Reports To", Description: "Source reports to target"},
	{ID: EdgeSubmitsExpensesTo, Label: "Submits Expenses To", Description: "Source sends expense claims to target"},
}

// EdgeLabel returns the display label for an edge type.
func EdgeLabel(t EdgeType) string {
	for _, def := range EdgeCatalog {
		if def.ID == t {
			return def.Label
		}
	}
	return string(t)
}

// Suggestion is the recommendation for a prospective connection. EdgeTypes is
// never empty: unknown pairs fall back to the full catalog.
type Suggestion struct {
	EdgeTypes []EdgeType `json:"edgeTypes"`
	Reasoning string     `json:"reasoning"`
	Examples  []string   `json:"examples"`
}

type pairRule struct {
	edgeTypes []EdgeType
	reasoning string
	examples  []string
}

// pairRules is keyed by "{sourceType}-{targetType}". party-party pairs are
// further disambiguated by partyType in Recommend.
var pairRules = map[string]pairRule{
	"person-party": {
		edgeTypes: []EdgeType{EdgeWorksOn, EdgeApproves, EdgeReportsTo, EdgeSubmitsExpensesTo},
		reasoning: "A person usually performs work for an organization or submits work to it for approval.",
		examples:  []string{"Worker works on Agency engagement", "Worker submits timesheets to Agency for approval"},
	},
	"party-person": {
		edgeTypes: []EdgeType{EdgeEmploys, EdgeAssigns, EdgeApproves},
		reasoning: "An organization employs people and assigns them work.",
		examples:  []string{"Agency employs Worker", "Company assigns Worker to the project"},
	},
	"person-contract": {
		edgeTypes: []EdgeType{EdgeWorksOn, EdgeBillsTo},
		reasoning: "A person works under a contract and bills against it.",
		examples:  []string{"Worker works on the hourly contract"},
	},
	"contract-person": {
		edgeTypes: []EdgeType{EdgeAssigns},
		reasoning: "A contract allocates its scope to a person.",
		examples:  []string{"Contract assigns its deliverables to Worker"},
	},
	"party-contract": {
		edgeTypes: []EdgeType{EdgeFunds, EdgeBillsTo},
		reasoning: "An organization funds a contract, or bills through it.",
		examples:  []string{"Client funds the master services contract"},
	},
	"contract-party": {
		edgeTypes: []EdgeType{EdgeBillsTo},
		reasoning: "A contract's invoices flow to an organization.",
		examples:  []string{"Contract bills to Client"},
	},
	"person-person": {
		edgeTypes: []EdgeType{EdgeReportsTo, EdgeApproves},
		reasoning: "People report to one another; the report's work is approved up the line.",
		examples:  []string{"Worker reports to Team Lead", "Worker's timesheets are approved by Team Lead"},
	},
}

// Recommend returns the edge types that make semantic sense between two node
// types, a rationale, and concrete examples. It is total: any pair, including
// unrecognized ones, yields at least one usable edge type.
//
// sourceParty/targetParty are optional and only consulted for party-party
// pairs, where partyType decides the direction of the relationship.
func Recommend(sourceType, targetType NodeType, sourceParty, targetParty *PartyData) Suggestion {
	if sourceType == NodeParty && targetType == NodeParty {
		if s := recommendPartyPair(sourceParty, targetParty); s != nil {
			return *s
		}
	}

	if rule, ok := pairRules[fmt.Sprintf("%s-%s", sourceType, targetType)]; ok {
		return Suggestion{
			EdgeTypes: append([]EdgeType(nil), rule.edgeTypes...),
			Reasoning: rule.reasoning,
			Examples:  append([]string(nil), rule.examples...),
		}
	}

	return fallbackSuggestion(sourceType, targetType)
}

func recommendPartyPair(sourceParty, targetParty *PartyData) *Suggestion {
	if sourceParty == nil || targetParty == nil {
		return nil
	}

	hiring := func(t PartyType) bool { return t == PartyCompany || t == PartyAgency }
	working := func(t PartyType) bool { return t == PartyContractor || t == PartyFreelancer }

	switch {
	case hiring(sourceParty.PartyType) && working(targetParty.PartyType):
		return &Suggestion{
			EdgeTypes: []EdgeType{EdgeSubcontracts, EdgeAssigns, EdgeFunds},
			Reasoning: "A company or agency engages a contractor: it subcontracts work, assigns tasks, or funds the engagement.",
			Examples:  []string{"Agency subcontracts development to Contractor", "Company assigns the project to Contractor"},
		}
	case working(sourceParty.PartyType) && hiring(targetParty.PartyType):
		return &Suggestion{
			EdgeTypes: []EdgeType{EdgeBillsTo, EdgeWorksOn},
			Reasoning: "A contractor bills the organization that engaged it and works on its projects.",
			Examples:  []string{"Contractor bills to Agency", "Contractor works on Company's project"},
		}
	case sourceParty.PartyType == PartyClient:
		return &Suggestion{
			EdgeTypes: []EdgeType{EdgeFunds, EdgeApproves},
			Reasoning: "A client funds the engagement and sits at the end of the approval chain.",
			Examples:  []string{"Client funds Agency's engagement"},
		}
	case targetParty.PartyType == PartyClient:
		return &Suggestion{
			EdgeTypes: []EdgeType{EdgeBillsTo, EdgeApproves},
			Reasoning: "Work and invoices flow toward the client, who gives final approval.",
			Examples:  []string{"Agency bills to Client", "Agency's work is approved by Client"},
		}
	}
	return nil
}

func fallbackSuggestion(sourceType, targetType NodeType) Suggestion {
	edgeTypes := make([]EdgeType, len(EdgeCatalog))
	for i, def := range EdgeCatalog {
		edgeTypes[i] = def.ID
	}
	return Suggestion{
		EdgeTypes: edgeTypes,
		Reasoning: fmt.Sprintf("No specific recommendation for %s → %s; any relationship type can be used.", sourceType, targetType),
		Examples:  []string{},
	}
}

// DefaultEdgeType returns the first recommended edge type for a pair.
func DefaultEdgeType(sourceType, targetType NodeType, sourceParty, targetParty *PartyData) EdgeType {
	return Recommend(sourceType, targetType, sourceParty, targetParty).EdgeTypes[0]
}

// ChoiceResult reports whether a chosen edge type is within the recommended
// set. Valid is always true: an unusual-but-possible real-world relationship
// is never blocked, only flagged.
type ChoiceResult struct {
	Valid   bool   `json:"valid"`
	Warning string `json:"warning,omitempty"`
}

// ValidateChoice checks a chosen edge type against the recommendation for the
// pair and warns when it falls outside the recommended set.
func ValidateChoice(sourceType, targetType NodeType, chosen EdgeType, sourceParty, targetParty *PartyData) ChoiceResult {
	suggestion := Recommend(sourceType, targetType, sourceParty, targetParty)
	for _, t := range suggestion.EdgeTypes {
		if t == chosen {
			return ChoiceResult{Valid: true}
		}
	}

	labels := make([]string, len(suggestion.EdgeTypes))
	for i, t := range suggestion.EdgeTypes {
		labels[i] = EdgeLabel(t)
	}
	return ChoiceResult{
		Valid: true,
		Warning: fmt.Sprintf("%q is unusual for a %s → %s connection. Recommended: %s.",
			EdgeLabel(chosen), sourceType, targetType, strings.Join(labels, ", ")),
	}
}
