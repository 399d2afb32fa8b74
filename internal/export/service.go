package export

import (
	"context"
	"encoding/json"
	"fmt"

	"worklane/api/internal/graph"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, id string) (ProjectInfo, error)
	GetPolicyConfig(ctx context.Context, projectID string, version int) (PolicyInfo, error)
}

// ProjectInfo holds basic project metadata
type ProjectInfo struct {
	ID   string
	Name string
}

// PolicyInfo holds one stored policy version. Config is the compiled
// configuration JSON as persisted at publish time.
type PolicyInfo struct {
	Version int
	Status  string
	Config  string
}

// Service renders policy summaries and converts them to the requested format
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, title, err := s.renderHTML(ctx, req)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// renderHTML loads the policy version and renders the summary document.
func (s *Service) renderHTML(ctx context.Context, req Request) (string, string, error) {
	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return "", "", fmt.Errorf("get project: %w", err)
	}

	policy, err := s.store.GetPolicyConfig(ctx, req.ProjectID, req.Version)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
	}

	var compiled graph.CompiledProjectConfig
	if err := json.Unmarshal([]byte(policy.Config), &compiled); err != nil {
		return "", "", fmt.Errorf("%w: decode config: %v", ErrPolicyUnavailable, err)
	}

	data := buildTemplateData(project, policy, compiled)
	html, err := RenderPolicyHTML(data)
	if err != nil {
		return "", "", fmt.Errorf("render template: %w", err)
	}

	title := fmt.Sprintf("%s policy v%d", project.Name, compiled.Version)
	return html, title, nil
}

// buildTemplateData flattens a compiled configuration into rows the
// template iterates over. Labels fall back to node ids when the snapshot
// no longer carries the node.
func buildTemplateData(project ProjectInfo, policy PolicyInfo, compiled graph.CompiledProjectConfig) TemplateData {
	labels := make(map[string]string, len(compiled.Graph.Nodes))
	for _, n := range compiled.Graph.Nodes {
		labels[n.ID] = n.Label()
	}

	label := func(id string) string {
		if l, ok := labels[id]; ok && l != "" {
			return l
		}
		return id
	}

	data := TemplateData{
		ProjectName: project.Name,
		Version:     compiled.Version,
		Status:      policy.Status,
		CompiledBy:  compiled.CompiledBy,
		CompiledAt:  compiled.CompiledAt,
		NodeCount:   len(compiled.Graph.Nodes),
		EdgeCount:   len(compiled.Graph.Edges),
	}

	for _, pol := range compiled.ApprovalPolicies {
		chain := TemplateChain{WorkType: pol.WorkType, Sequential: pol.Sequential}
		for _, step := range pol.Steps {
			chain.Steps = append(chain.Steps, TemplateStep{
				Order:     step.Order,
				Approver:  label(step.PartyID),
				Role:      step.Role,
				PartyType: string(step.PartyType),
				Required:  step.Required,
			})
		}
		data.Chains = append(data.Chains, chain)
	}

	for _, rule := range compiled.VisibilityRules {
		hidden := make([]string, 0, len(rule.Policy.HiddenFrom))
		for _, id := range rule.Policy.HiddenFrom {
			hidden = append(hidden, label(id))
		}
		data.MaskRules = append(data.MaskRules, TemplateMaskRule{
			Contract:   label(rule.Scope.ObjectID),
			Field:      rule.Scope.Field,
			MaskWith:   rule.Policy.MaskWith,
			HiddenFrom: hidden,
		})
	}

	return data
}
