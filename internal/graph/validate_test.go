package graph

import "testing"

func personNode(id, name string) Node {
	return Node{ID: id, Type: NodePerson, Person: &PersonData{Name: name}}
}

func partyNode(id, name string, partyType PartyType) Node {
	return Node{ID: id, Type: NodeParty, Party: &PartyData{Name: name, PartyType: partyType}}
}

func approvesEdge(id, source, target string, order int) Edge {
	return Edge{ID: id, Source: source, Target: target, Type: EdgeApproves, Approves: &ApprovesData{Order: order, Required: true}}
}

func diagnosticsWithCode(diagnostics []Diagnostic, code string) []Diagnostic {
	var matched []Diagnostic
	for _, d := range diagnostics {
		if d.Code == code {
			matched = append(matched, d)
		}
	}
	return matched
}

func TestValidateDetectsApprovalCycle(t *testing.T) {
	nodes := []Node{personNode("a", "A"), personNode("b", "B"), personNode("c", "C")}
	edges := []Edge{
		approvesEdge("e1", "a", "b", 1),
		approvesEdge("e2", "b", "c", 2),
		approvesEdge("e3", "c", "a", 3),
	}

	diagnostics := Validate(nodes, edges)
	cycles := diagnosticsWithCode(diagnostics, CodeCycleDetected)
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one CYCLE_DETECTED, got %d", len(cycles))
	}
	if cycles[0].Severity != SeverityError {
		t.Errorf("cycle must be an error, got %s", cycles[0].Severity)
	}
	if !HasErrors(diagnostics) {
		t.Error("HasErrors should report true")
	}
}

func TestValidateAcceptsAcyclicChain(t *testing.T) {
	nodes := []Node{personNode("a", "A"), personNode("b", "B"), personNode("c", "C")}
	edges := []Edge{
		approvesEdge("e1", "a", "b", 1),
		approvesEdge("e2", "b", "c", 2),
	}

	diagnostics := Validate(nodes, edges)
	if len(diagnosticsWithCode(diagnostics, CodeCycleDetected)) != 0 {
		t.Fatal("acyclic chain must not report a cycle")
	}
	if HasErrors(diagnostics) {
		t.Errorf("expected no errors, got %v", diagnostics)
	}
}

func TestValidateCycleIgnoresNonApprovalEdges(t *testing.T) {
	// A funds/billsTo loop is fine; only the approves subgraph must be
	// acyclic.
	nodes := []Node{
		partyNode("client", "Client", PartyClient),
		partyNode("agency", "Agency", PartyAgency),
	}
	edges := []Edge{
		{ID: "e1", Source: "client", Target: "agency", Type: EdgeFunds},
		{ID: "e2", Source: "agency", Target: "client", Type: EdgeBillsTo},
	}

	diagnostics := Validate(nodes, edges)
	if len(diagnosticsWithCode(diagnostics, CodeCycleDetected)) != 0 {
		t.Fatal("non-approval loop must not be reported as a cycle")
	}
}

func TestValidateOrphanPerson(t *testing.T) {
	lonely := personNode("p1", "Lonely")
	diagnostics := Validate([]Node{lonely}, nil)

	orphans := diagnosticsWithCode(diagnostics, CodeOrphanNode)
	if len(orphans) != 1 {
		t.Fatalf("expected exactly one ORPHAN_NODE, got %d", len(orphans))
	}
	if orphans[0].NodeID != "p1" {
		t.Errorf("expected nodeId p1, got %s", orphans[0].NodeID)
	}
	if orphans[0].Severity != SeverityWarning {
		t.Errorf("orphan must be a warning, got %s", orphans[0].Severity)
	}
}

func TestValidateConnectedPersonIsNotOrphan(t *testing.T) {
	nodes := []Node{personNode("p1", "Worker"), partyNode("agency", "Agency", PartyAgency)}
	edges := []Edge{{ID: "e1", Source: "p1", Target: "agency", Type: EdgeWorksOn}}

	diagnostics := Validate(nodes, edges)
	if len(diagnosticsWithCode(diagnostics, CodeOrphanNode)) != 0 {
		t.Fatalf("connected person must not be an orphan: %v", diagnostics)
	}
}

func TestValidateOrphanContractorParty(t *testing.T) {
	nodes := []Node{
		partyNode("c1", "Freelance Shop", PartyContractor),
		partyNode("agency", "Agency", PartyAgency),
		partyNode("client", "Client", PartyClient),
	}
	diagnostics := Validate(nodes, nil)

	orphans := diagnosticsWithCode(diagnostics, CodeOrphanNode)
	if len(orphans) != 1 {
		t.Fatalf("expected one orphan (the contractor), got %d: %v", len(orphans), orphans)
	}
	if orphans[0].NodeID != "c1" {
		t.Errorf("expected nodeId c1, got %s", orphans[0].NodeID)
	}
}

func TestValidateMissingApprover(t *testing.T) {
	nodes := []Node{
		partyNode("client", "Client", PartyClient),
		partyNode("agency", "Agency", PartyAgency),
		personNode("worker", "Worker"),
	}
	edges := []Edge{
		{ID: "e1", Source: "agency", Target: "worker", Type: EdgeEmploys},
		{ID: "e2", Source: "client", Target: "agency", Type: EdgeFunds},
	}

	diagnostics := Validate(nodes, edges)
	missing := diagnosticsWithCode(diagnostics, CodeMissingApprover)
	if len(missing) != 1 {
		t.Fatalf("expected one MISSING_APPROVER, got %d", len(missing))
	}
	if missing[0].NodeID != "" {
		t.Errorf("MISSING_APPROVER is graph-level, got nodeId %q", missing[0].NodeID)
	}
}

func TestValidateSmallGraphNeedsNoApprover(t *testing.T) {
	nodes := []Node{
		partyNode("client", "Client", PartyClient),
		partyNode("agency", "Agency", PartyAgency),
	}
	edges := []Edge{{ID: "e1", Source: "client", Target: "agency", Type: EdgeFunds}}

	diagnostics := Validate(nodes, edges)
	if len(diagnosticsWithCode(diagnostics, CodeMissingApprover)) != 0 {
		t.Fatal("a 2-node graph must not warn about a missing approver")
	}
}

func TestValidateDanglingEdgeIsError(t *testing.T) {
	nodes := []Node{personNode("a", "A")}
	edges := []Edge{approvesEdge("e1", "a", "ghost", 1)}

	diagnostics := Validate(nodes, edges)
	dangling := diagnosticsWithCode(diagnostics, CodeDanglingEdge)
	if len(dangling) != 1 {
		t.Fatalf("expected one DANGLING_EDGE, got %d", len(dangling))
	}
	if dangling[0].Severity != SeverityError {
		t.Errorf("dangling edge must be an error, got %s", dangling[0].Severity)
	}
	if dangling[0].EdgeID != "e1" {
		t.Errorf("expected edgeId e1, got %s", dangling[0].EdgeID)
	}
}

func TestValidateContractPartyTypeWarning(t *testing.T) {
	contract := Node{ID: "ct", Type: NodeContract, Contract: &ContractData{
		Name:         "Engagement",
		ContractType: ContractHourly,
		HourlyRate:   80,
		Parties:      ContractParties{PartyA: "worker", PartyB: "agency"},
	}}
	nodes := []Node{
		contract,
		personNode("worker", "Worker"),
		partyNode("agency", "Agency", PartyAgency),
	}
	edges := []Edge{
		{ID: "e1", Source: "agency", Target: "worker", Type: EdgeEmploys},
		approvesEdge("e2", "worker", "agency", 1),
	}

	diagnostics := Validate(nodes, edges)
	warnings := diagnosticsWithCode(diagnostics, CodeContractPartyType)
	if len(warnings) != 1 {
		t.Fatalf("expected one CONTRACT_PARTY_TYPE (partyA is a person), got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %s", warnings[0].Severity)
	}
}

func TestValidateUnusualEdgeWarning(t *testing.T) {
	nodes := []Node{
		partyNode("client", "Client", PartyClient),
		{ID: "ct", Type: NodeContract, Contract: &ContractData{Name: "MSA", ContractType: ContractFixed, FixedAmount: 10000}},
	}
	edges := []Edge{{ID: "e1", Source: "ct", Target: "client", Type: EdgeReportsTo}}

	diagnostics := Validate(nodes, edges)
	unusual := diagnosticsWithCode(diagnostics, CodeUnusualEdge)
	if len(unusual) != 1 {
		t.Fatalf("expected one UNUSUAL_EDGE, got %d", len(unusual))
	}
	if unusual[0].Severity != SeverityWarning {
		t.Error("unusual edge choice must never be an error")
	}
}

func TestValidateStandardAgencyTemplateIsClean(t *testing.T) {
	snapshot := StandardAgency("Acme")
	diagnostics := Validate(snapshot.Nodes, snapshot.Edges)
	if len(diagnostics) != 0 {
		t.Fatalf("starter template must validate clean, got %v", diagnostics)
	}
}
