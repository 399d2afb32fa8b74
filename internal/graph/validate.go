package graph

import "fmt"

// Severity classifies a diagnostic. Errors block compilation; warnings are
// advisory only.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes.
const (
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeOrphanNode        = "ORPHAN_NODE"
	CodeMissingApprover   = "MISSING_APPROVER"
	CodeDanglingEdge      = "DANGLING_EDGE"
	CodeContractPartyType = "CONTRACT_PARTY_TYPE"
	CodeUnusualEdge       = "UNUSUAL_EDGE"
)

// Diagnostic is one validation finding. NodeID/EdgeID are set when the
// finding points at a specific element; graph-level findings leave both empty.
type Diagnostic struct {
	NodeID     string   `json:"nodeId,omitempty"`
	EdgeID     string   `json:"edgeId,omitempty"`
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// HasErrors reports whether any diagnostic has error severity. Callers gate
// compilation on this; warnings never block.
func HasErrors(diagnostics []Diagnostic) bool {
	for _, d := range diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate runs all structural checks over the graph and returns errors and
// warnings together. It never mutates its inputs.
func Validate(nodes []Node, edges []Edge) []Diagnostic {
	diagnostics := make([]Diagnostic, 0)
	index := nodeIndex(nodes)

	diagnostics = append(diagnostics, checkDanglingEdges(index, edges)...)
	diagnostics = append(diagnostics, checkApprovalCycle(nodes, edges)...)
	diagnostics = append(diagnostics, checkOrphans(nodes, edges)...)
	diagnostics = append(diagnostics, checkMissingApprover(nodes, edges)...)
	diagnostics = append(diagnostics, checkContractParties(index, nodes)...)
	diagnostics = append(diagnostics, checkUnusualEdges(index, edges)...)

	return diagnostics
}

// checkDanglingEdges flags edges whose endpoints are missing from the node
// set. These are hard errors: compiling over them would derive policy steps
// that reference nobody.
func checkDanglingEdges(index map[string]Node, edges []Edge) []Diagnostic {
	var diagnostics []Diagnostic
	for _, e := range edges {
		for _, endpoint := range []string{e.Source, e.Target} {
			if _, ok := index[endpoint]; !ok {
				diagnostics = append(diagnostics, Diagnostic{
					EdgeID:     e.ID,
					Severity:   SeverityError,
					Code:       CodeDanglingEdge,
					Message:    fmt.Sprintf("Edge %q references missing node %q.", e.ID, endpoint),
					Suggestion: "Delete the edge or restore the node it points at.",
				})
			}
		}
	}
	return diagnostics
}

// checkApprovalCycle runs DFS over the approves-only subgraph, tracking the
// current recursion path. The first cycle found stops the search: one error
// is enough to require a fix.
func checkApprovalCycle(nodes []Node, edges []Edge) []Diagnostic {
	adjacency := make(map[string][]string)
	for _, e := range edges {
		if e.Type == EdgeApproves {
			adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		}
	}

	visited := make(map[string]bool, len(nodes))
	onPath := make(map[string]bool)

	var cycleAt string
	var walk func(id string) bool
	walk = func(id string) bool {
		visited[id] = true
		onPath[id] = true
		for _, next := range adjacency[id] {
			if onPath[next] {
				cycleAt = next
				return true
			}
			if !visited[next] && walk(next) {
				return true
			}
		}
		onPath[id] = false
		return false
	}

	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		if walk(n.ID) {
			return []Diagnostic{{
				NodeID:     cycleAt,
				Severity:   SeverityError,
				Code:       CodeCycleDetected,
				Message:    "The approval chain contains a cycle: approvals would loop forever.",
				Suggestion: "Remove one of the approval edges to break the cycle.",
			}}
		}
	}
	return nil
}

// checkOrphans warns about people and contractor parties with no connections
// at all. Other node kinds may legitimately sit unconnected while a graph is
// being sketched out.
func checkOrphans(nodes []Node, edges []Edge) []Diagnostic {
	connected := make(map[string]bool)
	for _, e := range edges {
		connected[e.Source] = true
		connected[e.Target] = true
	}

	var diagnostics []Diagnostic
	for _, n := range nodes {
		if connected[n.ID] {
			continue
		}
		isOrphanKind := n.Type == NodePerson || partyTypeOf(n) == PartyContractor
		if !isOrphanKind {
			continue
		}
		diagnostics = append(diagnostics, Diagnostic{
			NodeID:     n.ID,
			Severity:   SeverityWarning,
			Code:       CodeOrphanNode,
			Message:    fmt.Sprintf("%q is not connected to anything.", n.Label()),
			Suggestion: "Connect this contractor to a company or agency.",
		})
	}
	return diagnostics
}

// checkMissingApprover emits one graph-level warning when a non-trivial graph
// has no approval edges at all. A 1-2 node graph may legitimately have no
// chain yet.
func checkMissingApprover(nodes []Node, edges []Edge) []Diagnostic {
	for _, e := range edges {
		if e.Type == EdgeApproves {
			return nil
		}
	}
	if len(nodes) <= 2 {
		return nil
	}
	return []Diagnostic{{
		Severity:   SeverityWarning,
		Code:       CodeMissingApprover,
		Message:    "No approval chain is defined for this graph.",
		Suggestion: "Add approval edges so timesheets have somewhere to go.",
	}}
}

// checkContractParties warns when a contract's partyA/partyB reference nodes
// that are not parties. Kept a warning rather than an error to match the
// permissive editing posture: the reference may simply not be wired up yet.
func checkContractParties(index map[string]Node, nodes []Node) []Diagnostic {
	var diagnostics []Diagnostic
	for _, n := range nodes {
		if n.Type != NodeContract || n.Contract == nil {
			continue
		}
		for _, ref := range []string{n.Contract.Parties.PartyA, n.Contract.Parties.PartyB} {
			if ref == "" {
				continue
			}
			referenced, ok := index[ref]
			if ok && referenced.Type == NodeParty {
				continue
			}
			diagnostics = append(diagnostics, Diagnostic{
				NodeID:     n.ID,
				Severity:   SeverityWarning,
				Code:       CodeContractPartyType,
				Message:    fmt.Sprintf("Contract %q lists %q as a party, but that is not a party node.", n.Label(), ref),
				Suggestion: "Point the contract's parties at party nodes.",
			})
		}
	}
	return diagnostics
}

// checkUnusualEdges reuses the recommendation engine to lint edge-type
// choices. These are never errors: any real-world relationship is allowed.
func checkUnusualEdges(index map[string]Node, edges []Edge) []Diagnostic {
	var diagnostics []Diagnostic
	for _, e := range edges {
		source, okS := index[e.Source]
		target, okT := index[e.Target]
		if !okS || !okT {
			continue // already reported as DANGLING_EDGE
		}
		result := ValidateChoice(source.Type, target.Type, e.Type, source.Party, target.Party)
		if result.Warning == "" {
			continue
		}
		diagnostics = append(diagnostics, Diagnostic{
			EdgeID:     e.ID,
			Severity:   SeverityWarning,
			Code:       CodeUnusualEdge,
			Message:    result.Warning,
			Suggestion: "Double-check the relationship type, or keep it if it reflects reality.",
		})
	}
	return diagnostics
}
