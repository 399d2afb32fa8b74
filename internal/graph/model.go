// Package graph holds the WorkGraph data model and the logic that turns a
// node/edge graph of parties, contracts, and people into an executable
// approval-and-visibility policy. Everything in this package is pure and
// synchronous: callers hand in nodes and edges, results never alias the input.
package graph

// NodeType identifies the variant of a node.
type NodeType string

const (
	NodeParty    NodeType = "party"
	NodeContract NodeType = "contract"
	NodePerson   NodeType = "person"
)

// PartyType narrows a party node to its organizational flavor.
type PartyType string

const (
	PartyClient     PartyType = "client"
	PartyAgency     PartyType = "agency"
	PartyCompany    PartyType = "company"
	PartyContractor PartyType = "contractor"
	PartyFreelancer PartyType = "freelancer"
)

// ContractType identifies how a contract is billed.
type ContractType string

const (
	ContractHourly ContractType = "hourly"
	ContractDaily  ContractType = "daily"
	ContractFixed  ContractType = "fixed"
	ContractCustom ContractType = "custom"
)

// EdgeType identifies the semantic relationship an edge expresses.
type EdgeType string

const (
	// EdgeApproves is directional: source submits, target approves.
	EdgeApproves          EdgeType = "approves"
	EdgeFunds             EdgeType = "funds"
	EdgeSubcontracts      EdgeType = "subcontracts"
	EdgeBillsTo           EdgeType = "billsTo"
	EdgeAssigns           EdgeType = "assigns"
	EdgeWorksOn           EdgeType = "worksOn"
	EdgeEmploys           EdgeType = "employs"
	EdgeReportsTo         EdgeType = "reportsTo"
	EdgeSubmitsExpensesTo EdgeType = "submitsExpensesTo"
)

// Position is a canvas coordinate. Presentation only; the validator and
// compiler ignore it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Capabilities are the boolean flags shared by party and person nodes.
type Capabilities struct {
	CanApprove        bool `json:"canApprove"`
	CanViewRates      bool `json:"canViewRates"`
	CanEditTimesheets bool `json:"canEditTimesheets"`
}

// PartyData is the payload of a party node.
type PartyData struct {
	Name           string    `json:"name"`
	PartyType      PartyType `json:"partyType"`
	Role           string    `json:"role,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Capabilities
}

// ContractParties references the two party nodes bound by a contract.
// Weak references: a contract does not own its parties.
type ContractParties struct {
	PartyA string `json:"partyA,omitempty"`
	PartyB string `json:"partyB,omitempty"`
}

// ContractVisibility lists node ids that must not see sensitive fields.
type ContractVisibility struct {
	HideRateFrom  []string `json:"hideRateFrom,omitempty"`
	HideTermsFrom []string `json:"hideTermsFrom,omitempty"`
}

// ContractData is the payload of a contract node. Exactly one rate field is
// populated, matching ContractType.
type ContractData struct {
	Name             string             `json:"name"`
	ContractType     ContractType       `json:"contractType"`
	HourlyRate       float64            `json:"hourlyRate,omitempty"`
	DailyRate        float64            `json:"dailyRate,omitempty"`
	FixedAmount      float64            `json:"fixedAmount,omitempty"`
	Parties          ContractParties    `json:"parties"`
	Visibility       ContractVisibility `json:"visibility"`
	WeeklyHourLimit  int                `json:"weeklyHourLimit,omitempty"`
	MonthlyHourLimit int                `json:"monthlyHourLimit,omitempty"`
}

// PersonData is the payload of a person node.
type PersonData struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	UserID string `json:"userId,omitempty"`
	Capabilities
}

// Node is a vertex in the work graph. Exactly one payload pointer is set,
// matching Type.
type Node struct {
	ID       string        `json:"id"`
	Type     NodeType      `json:"type"`
	Position Position      `json:"position"`
	Party    *PartyData    `json:"party,omitempty"`
	Contract *ContractData `json:"contract,omitempty"`
	Person   *PersonData   `json:"person,omitempty"`
}

// Label returns the display name of the node regardless of variant.
func (n Node) Label() string {
	switch n.Type {
	case NodeParty:
		if n.Party != nil {
			return n.Party.Name
		}
	case NodeContract:
		if n.Contract != nil {
			return n.Contract.Name
		}
	case NodePerson:
		if n.Person != nil {
			return n.Person.Name
		}
	}
	return n.ID
}

// Role returns the node's role attribute, or "" when the variant has none.
func (n Node) Role() string {
	switch n.Type {
	case NodeParty:
		if n.Party != nil {
			return n.Party.Role
		}
	case NodePerson:
		if n.Person != nil {
			return n.Person.Role
		}
	}
	return ""
}

// ApprovesData is the payload of an approves edge.
type ApprovesData struct {
	// Order is the rank of this approver in the chain, 1 or greater.
	// Not required to be contiguous; equal values at the same target mean
	// parallel approvers at the same rank.
	Order    int  `json:"order"`
	Required bool `json:"required"`
}

// FundsData is the payload of a funds edge.
type FundsData struct {
	Amount      float64 `json:"amount"`
	FundingType string  `json:"fundingType,omitempty"`
}

// SubcontractsData is the payload of a subcontracts edge.
type SubcontractsData struct {
	Role string `json:"role,omitempty"`
	// Markup is a percentage, 0-100.
	Markup float64 `json:"markup"`
}

// Edge is a directed, typed relationship between two nodes. The payload
// pointer matching Type is set for edge types that carry one.
type Edge struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	Type         EdgeType          `json:"edgeType"`
	Approves     *ApprovesData     `json:"approves,omitempty"`
	Funds        *FundsData        `json:"funds,omitempty"`
	Subcontracts *SubcontractsData `json:"subcontracts,omitempty"`
}

// Snapshot bundles nodes and edges for persistence and for the compiled
// config's embedded graph copy.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Party != nil {
		party := *n.Party
		out.Party = &party
	}
	if n.Contract != nil {
		contract := *n.Contract
		contract.Visibility.HideRateFrom = cloneStrings(n.Contract.Visibility.HideRateFrom)
		contract.Visibility.HideTermsFrom = cloneStrings(n.Contract.Visibility.HideTermsFrom)
		out.Contract = &contract
	}
	if n.Person != nil {
		person := *n.Person
		out.Person = &person
	}
	return out
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	out := e
	if e.Approves != nil {
		approves := *e.Approves
		out.Approves = &approves
	}
	if e.Funds != nil {
		funds := *e.Funds
		out.Funds = &funds
	}
	if e.Subcontracts != nil {
		sub := *e.Subcontracts
		out.Subcontracts = &sub
	}
	return out
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneEdges deep-copies an edge slice.
func CloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func nodeIndex(nodes []Node) map[string]Node {
	index := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}
	return index
}

// partyTypeOf returns the party type of a node, or "" for non-party nodes.
func partyTypeOf(n Node) PartyType {
	if n.Type == NodeParty && n.Party != nil {
		return n.Party.PartyType
	}
	return ""
}
