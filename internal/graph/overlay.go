package graph

// Mode selects which lens an overlay projection applies.
type Mode string

const (
	ModeFull      Mode = "full"
	ModeApprovals Mode = "approvals"
	ModeMoney     Mode = "money"
	ModePeople    Mode = "people"
	ModeAccess    Mode = "access"
)

// ValidMode reports whether m is a known overlay mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeFull, ModeApprovals, ModeMoney, ModePeople, ModeAccess:
		return true
	}
	return false
}

// modeEdgeTypes is the fixed allow-list of edge types visible under each
// non-full mode.
var modeEdgeTypes = map[Mode][]EdgeType{
	ModeApprovals: {EdgeApproves},
	ModeMoney:     {EdgeFunds, EdgeBillsTo, EdgeSubcontracts},
	ModePeople:    {EdgeEmploys, EdgeReportsTo, EdgeWorksOn},
	ModeAccess:    {EdgeAssigns, EdgeSubmitsExpensesTo},
}

// OverlayNode is a node annotated with presentation hints for one mode.
type OverlayNode struct {
	Node
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	Highlight bool    `json:"highlight"`
}

// OverlayEdge is an edge annotated with presentation hints for one mode.
type OverlayEdge struct {
	Edge
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	Highlight bool    `json:"highlight"`
}

// OverlayStats summarizes how much of the graph a mode keeps visible.
type OverlayStats struct {
	VisibleNodes int `json:"visibleNodes"`
	TotalNodes   int `json:"totalNodes"`
	VisibleEdges int `json:"visibleEdges"`
	TotalEdges   int `json:"totalEdges"`
}

// Projection is the result of applying an overlay mode.
type Projection struct {
	Nodes []OverlayNode `json:"nodes"`
	Edges []OverlayEdge `json:"edges"`
	Stats OverlayStats  `json:"stats"`
}

const dimmedOpacity = 0.15

// Project filters and recolors the graph for one viewing mode. It is a pure
// transform: inputs are never mutated, every node and edge comes back as an
// annotated deep copy.
//
// Under full, everything is visible. Under any other mode, an edge is visible
// iff its type is in the mode's allow-list, and a node is visible iff it is
// incident to at least one visible edge.
func Project(nodes []Node, edges []Edge, mode Mode) Projection {
	stats := OverlayStats{TotalNodes: len(nodes), TotalEdges: len(edges)}

	if mode == ModeFull {
		outNodes := make([]OverlayNode, len(nodes))
		for i, n := range nodes {
			outNodes[i] = OverlayNode{Node: n.Clone(), Visible: true, Opacity: 1}
		}
		outEdges := make([]OverlayEdge, len(edges))
		for i, e := range edges {
			outEdges[i] = OverlayEdge{Edge: e.Clone(), Visible: true, Opacity: 1}
		}
		stats.VisibleNodes = len(nodes)
		stats.VisibleEdges = len(edges)
		return Projection{Nodes: outNodes, Edges: outEdges, Stats: stats}
	}

	allowed := make(map[EdgeType]bool)
	for _, t := range modeEdgeTypes[mode] {
		allowed[t] = true
	}

	visibleNodeIDs := make(map[string]bool)
	outEdges := make([]OverlayEdge, len(edges))
	for i, e := range edges {
		visible := allowed[e.Type]
		annotated := OverlayEdge{Edge: e.Clone(), Visible: visible, Opacity: dimmedOpacity}
		if visible {
			annotated.Opacity = 1
			annotated.Highlight = true
			visibleNodeIDs[e.Source] = true
			visibleNodeIDs[e.Target] = true
			stats.VisibleEdges++
		}
		outEdges[i] = annotated
	}

	outNodes := make([]OverlayNode, len(nodes))
	for i, n := range nodes {
		visible := visibleNodeIDs[n.ID]
		annotated := OverlayNode{Node: n.Clone(), Visible: visible, Opacity: dimmedOpacity}
		if visible {
			annotated.Opacity = 1
			annotated.Highlight = true
			stats.VisibleNodes++
		}
		outNodes[i] = annotated
	}

	return Projection{Nodes: outNodes, Edges: outEdges, Stats: stats}
}
