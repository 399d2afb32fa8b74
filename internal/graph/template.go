package graph

// Blank returns an empty graph for a project starting from scratch.
func Blank() Snapshot {
	return Snapshot{Nodes: []Node{}, Edges: []Edge{}}
}

// StandardAgency returns the starter graph used when a project has no saved
// snapshot: a client funding an agency that employs a worker, with the usual
// two-step approval chain (worker → agency → client) and an hourly contract
// whose rate is hidden from the worker.
func StandardAgency(projectName string) Snapshot {
	nodes := []Node{
		{
			ID:       "client",
			Type:     NodeParty,
			Position: Position{X: 560, Y: 80},
			Party: &PartyData{
				Name:      projectName + " Client",
				PartyType: PartyClient,
				Role:      "Client",
				Capabilities: Capabilities{
					CanApprove:   true,
					CanViewRates: true,
				},
			},
		},
		{
			ID:       "agency",
			Type:     NodeParty,
			Position: Position{X: 320, Y: 80},
			Party: &PartyData{
				Name:      "Agency",
				PartyType: PartyAgency,
				Role:      "Account Manager",
				Capabilities: Capabilities{
					CanApprove:        true,
					CanViewRates:      true,
					CanEditTimesheets: true,
				},
			},
		},
		{
			ID:       "worker",
			Type:     NodePerson,
			Position: Position{X: 80, Y: 80},
			Person: &PersonData{
				Name: "Worker",
				Role: "Contractor",
				Capabilities: Capabilities{
					CanEditTimesheets: true,
				},
			},
		},
		{
			ID:       "contract-hourly",
			Type:     NodeContract,
			Position: Position{X: 320, Y: 260},
			Contract: &ContractData{
				Name:         "Hourly Engagement",
				ContractType: ContractHourly,
				HourlyRate:   95,
				Parties:      ContractParties{PartyA: "agency", PartyB: "client"},
				Visibility: ContractVisibility{
					HideRateFrom: []string{"worker"},
				},
				WeeklyHourLimit: 40,
			},
		},
	}

	edges := []Edge{
		{ID: "e-employs", Source: "agency", Target: "worker", Type: EdgeEmploys},
		{ID: "e-approve-1", Source: "worker", Target: "agency", Type: EdgeApproves, Approves: &ApprovesData{Order: 1, Required: true}},
		{ID: "e-approve-2", Source: "agency", Target: "client", Type: EdgeApproves, Approves: &ApprovesData{Order: 2, Required: true}},
		{ID: "e-funds", Source: "client", Target: "contract-hourly", Type: EdgeFunds, Funds: &FundsData{FundingType: "retainer"}},
		{ID: "e-bills", Source: "contract-hourly", Target: "client", Type: EdgeBillsTo},
	}

	return Snapshot{Nodes: nodes, Edges: edges}
}
