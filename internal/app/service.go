package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"worklane/api/internal/archive"
	"worklane/api/internal/auth"
	"worklane/api/internal/authpw"
	"worklane/api/internal/config"
	"worklane/api/internal/email"
	"worklane/api/internal/export"
	"worklane/api/internal/graph"
	"worklane/api/internal/rbac"
	"worklane/api/internal/search"
	"worklane/api/internal/session"
	"worklane/api/internal/snapshot"
	"worklane/api/internal/store"
	"worklane/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// SaveGraphInput is the full replacement snapshot a save request carries.
// Saves are last-write-wins commits; there is no merge.
type SaveGraphInput struct {
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
	Message string       `json:"message"`
}

type EntryInput struct {
	ContractID string  `json:"contractId"`
	WorkDate   string  `json:"workDate"`
	Hours      float64 `json:"hours"`
	Note       string  `json:"note"`
}

type DecisionInput struct {
	Comment string `json:"comment"`
}

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	ListUsers(context.Context) ([]store.User, error)
	UpdateUserRole(context.Context, string, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProjectState(context.Context, string, string, string, string, string) error
	UpsertMembership(context.Context, store.Membership) error
	GetMembership(context.Context, string, string) (store.Membership, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	InsertPolicyVersion(context.Context, store.PolicyVersion) error
	GetPolicyVersion(context.Context, string) (store.PolicyVersion, error)
	GetActivePolicyVersion(context.Context, string) (store.PolicyVersion, error)
	GetPolicyVersionForDate(context.Context, string, time.Time) (store.PolicyVersion, error)
	ListPolicyVersions(context.Context, string) ([]store.PolicyVersion, error)
	ActivatePolicyVersion(context.Context, string, string, time.Time) error
	ReplaceGraphNodes(context.Context, string, []store.GraphNodeRow) error
	InsertTimesheetEntry(context.Context, store.TimesheetEntry) error
	GetTimesheetEntry(context.Context, string) (store.TimesheetEntry, error)
	ListTimesheetEntries(context.Context, string, string, string) ([]store.TimesheetEntry, error)
	UpdateTimesheetEntryStatus(context.Context, string, string, int) error
	SumHoursForRange(context.Context, string, string, time.Time, time.Time) (float64, error)
	InsertApprovalAction(context.Context, store.ApprovalAction) error
	ListApprovalActions(context.Context, string) ([]store.ApprovalAction, error)
	InsertAuditEvent(context.Context, store.AuditEvent) error
	ListAuditEvents(context.Context, string, int) ([]store.AuditEvent, error)
	SummaryCounts(context.Context) (int, int, int, error)
}

// refreshStore holds refresh sessions. Postgres backs it by default; Redis
// takes over when configured.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type snapshotService interface {
	EnsureProjectRepo(projectID string, initial graph.Snapshot, author string) error
	Save(projectID string, snap graph.Snapshot, author, message string) (snapshot.CommitInfo, error)
	Head(projectID string) (graph.Snapshot, snapshot.CommitInfo, error)
	LoadForDate(projectID string, at time.Time) (graph.Snapshot, snapshot.CommitInfo, error)
	History(projectID string, limit int) ([]snapshot.CommitInfo, error)
	TagVersion(projectID, hash, name string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	refresh   refreshStore
	snapshots snapshotService
	search    *search.Service
	authpw    *authpw.Service
	email     *email.Service
	exporter  *export.Service
	archive   *archive.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, snapshots *snapshot.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		refresh:   dataStore,
		snapshots: snapshots,
		search:    searchSvc,
	}
}

// NewWithSessionStore builds a service that keeps refresh sessions in Redis
// instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, snapshots *snapshot.Service, searchSvc *search.Service) *Service {
	svc := New(cfg, dataStore, snapshots, searchSvc)
	svc.refresh = sessions
	return svc
}

func (s *Service) SetAuthPassword(svc *authpw.Service) { s.authpw = svc }
func (s *Service) SetEmail(svc *email.Service)         { s.email = svc }
func (s *Service) SetExporter(svc *export.Service)     { s.exporter = svc }
func (s *Service) SetArchive(svc *archive.Service)     { s.archive = svc }

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a demo project the first time the API starts against an
// empty database: a manager and a worker account, the standard agency graph,
// and an active v1 policy so timesheets can flow immediately.
func (s *Service) Bootstrap(ctx context.Context) error {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return nil
	}

	manager, err := s.ensureUser(ctx, "avery@worklane.dev", "Avery", "manager")
	if err != nil {
		return err
	}
	worker, err := s.ensureUser(ctx, "sam@worklane.dev", "Sam", "worker")
	if err != nil {
		return err
	}

	project := store.Project{
		ID:          util.NewID("proj"),
		Name:        "Acme Rollout",
		Slug:        slugify("Acme Rollout"),
		Description: "Contractor staffing for the Acme platform rollout.",
		Status:      "active",
		CreatedBy:   manager.DisplayName,
		UpdatedBy:   manager.DisplayName,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return err
	}

	seed := graph.StandardAgency(project.Name)
	if err := s.snapshots.EnsureProjectRepo(project.ID, seed, manager.DisplayName); err != nil {
		return err
	}
	if err := s.store.ReplaceGraphNodes(ctx, project.ID, graphNodeRows(project.ID, seed.Nodes)); err != nil {
		return err
	}

	memberships := []store.Membership{
		{ProjectID: project.ID, UserID: manager.ID, Role: "manager", NodeID: "agency"},
		{ProjectID: project.ID, UserID: worker.ID, Role: "worker", NodeID: "worker"},
	}
	for _, m := range memberships {
		if err := s.store.UpsertMembership(ctx, m); err != nil {
			return err
		}
	}

	_, head, err := s.snapshots.Head(project.ID)
	if err != nil {
		return err
	}
	compiled, err := graph.Compile(seed.Nodes, seed.Edges, project.ID, manager.DisplayName, nil)
	if err != nil {
		return err
	}
	configJSON, err := json.Marshal(compiled)
	if err != nil {
		return err
	}
	version := store.PolicyVersion{
		ID:         util.NewID("pv"),
		ProjectID:  project.ID,
		Version:    compiled.Version,
		Status:     "draft",
		Config:     string(configJSON),
		CompiledBy: manager.DisplayName,
		CompiledAt: compiled.CompiledAt,
		CommitHash: head.Hash,
	}
	if err := s.store.InsertPolicyVersion(ctx, version); err != nil {
		return err
	}
	if err := s.store.ActivatePolicyVersion(ctx, project.ID, version.ID, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.snapshots.TagVersion(project.ID, head.Hash, fmt.Sprintf("policy-v%d", version.Version)); err != nil {
		return err
	}

	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			Status:      project.Status,
		})
		s.search.IndexNodes(project.ID, nodeRecords(project.ID, seed.Nodes))
	}
	return nil
}

func (s *Service) ensureUser(ctx context.Context, emailAddr, displayName, role string) (store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, err
	}

	user = store.User{
		ID:              util.NewID("usr"),
		DisplayName:     displayName,
		Email:           emailAddr,
		Role:            role,
		IsEmailVerified: true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// --- Sessions ---

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- Projects ---

func (s *Service) ListProjects(ctx context.Context) ([]map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectPayload(p))
	}
	return items, nil
}

func (s *Service) CreateProject(ctx context.Context, name, description string, session Session) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	project := store.Project{
		ID:          util.NewID("proj"),
		Name:        name,
		Slug:        slugify(name),
		Description: strings.TrimSpace(description),
		Status:      "active",
		CreatedBy:   session.UserName,
		UpdatedBy:   session.UserName,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	if err := s.store.UpsertMembership(ctx, store.Membership{
		ProjectID: project.ID,
		UserID:    session.UserID,
		Role:      "manager",
	}); err != nil {
		return nil, fmt.Errorf("add creator membership: %w", err)
	}

	seed := graph.StandardAgency(project.Name)
	if err := s.snapshots.EnsureProjectRepo(project.ID, seed, session.UserName); err != nil {
		return nil, fmt.Errorf("init project graph: %w", err)
	}
	if err := s.store.ReplaceGraphNodes(ctx, project.ID, graphNodeRows(project.ID, seed.Nodes)); err != nil {
		return nil, fmt.Errorf("index graph nodes: %w", err)
	}

	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			Status:      project.Status,
		})
		s.search.IndexNodes(project.ID, nodeRecords(project.ID, seed.Nodes))
	}

	s.audit(ctx, "project.created", session.UserName, project.ID, nil, nil, map[string]any{"name": project.Name})
	return projectPayload(project), nil
}

func (s *Service) GetProject(ctx context.Context, projectID string, session Session) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	payload := projectPayload(project)

	members, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload["members"] = membershipPayloads(members)

	active, err := s.store.GetActivePolicyVersion(ctx, projectID)
	switch {
	case err == nil:
		payload["activePolicy"] = policyVersionPayload(active, false)
	case errors.Is(err, sql.ErrNoRows):
		payload["activePolicy"] = nil
	default:
		return nil, err
	}

	if _, head, err := s.snapshots.Head(projectID); err == nil {
		payload["graphCommit"] = commitPayload(head)
	}
	return payload, nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID, name, description, status string, session Session) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name == "" {
		name = project.Name
	}
	if description = strings.TrimSpace(description); description == "" {
		description = project.Description
	}
	if status = strings.TrimSpace(status); status == "" {
		status = project.Status
	}
	if status != "active" && status != "archived" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be active or archived", nil)
	}

	if err := s.store.UpdateProjectState(ctx, projectID, name, description, status, session.UserName); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: projectID, Name: name, Description: description, Status: status})
	}

	s.audit(ctx, "project.updated", session.UserName, projectID, nil, nil, map[string]any{"status": status})
	updated, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return projectPayload(updated), nil
}

// --- Graph ---

// loadGraph returns the project graph at a point in time, falling back to the
// standard starter template when the project has no snapshot history yet.
func (s *Service) loadGraph(ctx context.Context, projectID string, at *time.Time) (graph.Snapshot, snapshot.CommitInfo, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return graph.Snapshot{}, snapshot.CommitInfo{}, err
	}

	load := func() (graph.Snapshot, snapshot.CommitInfo, error) {
		if at != nil {
			return s.snapshots.LoadForDate(projectID, *at)
		}
		return s.snapshots.Head(projectID)
	}

	snap, info, err := load()
	if err == nil {
		return snap, info, nil
	}
	if at != nil && errors.Is(err, snapshot.ErrNoSnapshotForDate) {
		return graph.Snapshot{}, snapshot.CommitInfo{}, domainError(http.StatusNotFound, "NO_SNAPSHOT", "No graph snapshot exists at or before that date", nil)
	}

	// No repo yet: seed the starter template and retry.
	if err := s.snapshots.EnsureProjectRepo(projectID, graph.StandardAgency(project.Name), "Worklane"); err != nil {
		return graph.Snapshot{}, snapshot.CommitInfo{}, fmt.Errorf("seed project graph: %w", err)
	}
	return load()
}

func (s *Service) GetGraph(ctx context.Context, projectID, atParam string, session Session) (map[string]any, error) {
	var at *time.Time
	if strings.TrimSpace(atParam) != "" {
		parsed, err := parseDay(atParam)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at must be a YYYY-MM-DD date", nil)
		}
		// End of day so "at=2026-03-09" includes commits made that day.
		end := parsed.Add(24*time.Hour - time.Nanosecond)
		at = &end
	}

	snap, info, err := s.loadGraph(ctx, projectID, at)
	if err != nil {
		return nil, err
	}

	nodes, maskedRates := s.maskRates(ctx, projectID, snap.Nodes, session)
	diagnostics := graph.Validate(snap.Nodes, snap.Edges)

	return map[string]any{
		"nodes":       nodes,
		"edges":       snap.Edges,
		"commit":      commitPayload(info),
		"diagnostics": diagnostics,
		"hasErrors":   graph.HasErrors(diagnostics),
		"maskedRates": maskedRates,
	}, nil
}

func (s *Service) SaveGraph(ctx context.Context, projectID string, input SaveGraphInput, session Session) (map[string]any, error) {
	current, _, err := s.loadGraph(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	next := graph.Snapshot{Nodes: input.Nodes, Edges: input.Edges}
	if next.Nodes == nil {
		next.Nodes = []graph.Node{}
	}
	if next.Edges == nil {
		next.Edges = []graph.Edge{}
	}
	diagnostics := graph.Validate(next.Nodes, next.Edges)

	if !snapshot.HasChanges(current, next) {
		_, head, err := s.snapshots.Head(projectID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"commit":      commitPayload(head),
			"diagnostics": diagnostics,
			"hasErrors":   graph.HasErrors(diagnostics),
			"changed":     false,
		}, nil
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "Update graph"
	}
	info, err := s.snapshots.Save(projectID, next, session.UserName, message)
	if err != nil {
		return nil, fmt.Errorf("save graph: %w", err)
	}

	if err := s.store.ReplaceGraphNodes(ctx, projectID, graphNodeRows(projectID, next.Nodes)); err != nil {
		return nil, fmt.Errorf("index graph nodes: %w", err)
	}
	if s.search != nil {
		s.search.IndexNodes(projectID, nodeRecords(projectID, next.Nodes))
	}

	s.audit(ctx, "graph.saved", session.UserName, projectID, nil, nil, map[string]any{
		"commit": info.Hash,
		"nodes":  len(next.Nodes),
		"edges":  len(next.Edges),
	})

	return map[string]any{
		"commit":      commitPayload(info),
		"diagnostics": diagnostics,
		"hasErrors":   graph.HasErrors(diagnostics),
		"changed":     true,
	}, nil
}

func (s *Service) ValidateGraph(ctx context.Context, projectID string) (map[string]any, error) {
	snap, _, err := s.loadGraph(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}
	diagnostics := graph.Validate(snap.Nodes, snap.Edges)
	return map[string]any{
		"diagnostics": diagnostics,
		"hasErrors":   graph.HasErrors(diagnostics),
	}, nil
}

// RecommendEdge suggests edge types for a prospective source→target
// connection, and warns when an explicitly chosen type is unusual.
func (s *Service) RecommendEdge(ctx context.Context, projectID, sourceID, targetID, chosen string) (map[string]any, error) {
	snap, _, err := s.loadGraph(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	var source, target *graph.Node
	for i := range snap.Nodes {
		switch snap.Nodes[i].ID {
		case sourceID:
			source = &snap.Nodes[i]
		case targetID:
			target = &snap.Nodes[i]
		}
	}
	if source == nil || target == nil {
		return nil, domainError(http.StatusNotFound, "NODE_NOT_FOUND", "Source or target node not found", nil)
	}

	suggestion := graph.Recommend(source.Type, target.Type, source.Party, target.Party)
	payload := map[string]any{
		"suggestion": suggestion,
		"default":    graph.DefaultEdgeType(source.Type, target.Type, source.Party, target.Party),
	}
	if chosen != "" {
		payload["choice"] = graph.ValidateChoice(source.Type, target.Type, graph.EdgeType(chosen), source.Party, target.Party)
	}
	return payload, nil
}

func (s *Service) OverlayGraph(ctx context.Context, projectID, mode string) (map[string]any, error) {
	m := graph.Mode(mode)
	if mode == "" {
		m = graph.ModeFull
	}
	if !graph.ValidMode(m) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "mode must be one of full, approvals, money, people, access", nil)
	}

	snap, _, err := s.loadGraph(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}
	projection := graph.Project(snap.Nodes, snap.Edges, m)
	return map[string]any{
		"mode":  m,
		"nodes": projection.Nodes,
		"edges": projection.Edges,
		"stats": projection.Stats,
	}, nil
}

func (s *Service) GraphHistory(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	commits, err := s.snapshots.History(projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("graph history: %w", err)
	}
	items := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		items = append(items, commitPayload(c))
	}
	return map[string]any{"commits": items}, nil
}

// maskRates applies the active policy's visibility rules to contract nodes
// for the viewing user. Managers and admins always see rates.
func (s *Service) maskRates(ctx context.Context, projectID string, nodes []graph.Node, session Session) ([]graph.Node, map[string]string) {
	masked := map[string]string{}
	role := s.effectiveRole(ctx, projectID, session)
	if role == "manager" || role == "admin" {
		return nodes, masked
	}

	viewerNode := ""
	if m, err := s.store.GetMembership(ctx, projectID, session.UserID); err == nil {
		viewerNode = m.NodeID
	}
	if viewerNode == "" {
		return nodes, masked
	}

	policy, err := s.activeCompiledPolicy(ctx, projectID)
	if err != nil {
		return nodes, masked
	}

	out := graph.CloneNodes(nodes)
	for i := range out {
		if out[i].Type != graph.NodeContract || out[i].Contract == nil {
			continue
		}
		if mask, hidden := policy.RateMaskFor(out[i].ID, viewerNode); hidden {
			out[i].Contract.HourlyRate = 0
			out[i].Contract.DailyRate = 0
			out[i].Contract.FixedAmount = 0
			masked[out[i].ID] = mask
		}
	}
	return out, masked
}

// --- Policy compilation and publishing ---

func (s *Service) CompilePolicy(ctx context.Context, projectID string, session Session) (map[string]any, error) {
	snap, head, err := s.loadGraph(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	diagnostics := graph.Validate(snap.Nodes, snap.Edges)
	if graph.HasErrors(diagnostics) {
		return nil, domainError(http.StatusUnprocessableEntity, "GRAPH_INVALID", "Graph has validation errors; fix them before compiling", diagnostics)
	}

	prior, err := s.activeCompiledPolicy(ctx, projectID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	compiled, err := graph.Compile(snap.Nodes, snap.Edges, projectID, session.UserName, prior)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}

	configJSON, err := json.Marshal(compiled)
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}

	version := store.PolicyVersion{
		ID:         util.NewID("pv"),
		ProjectID:  projectID,
		Version:    compiled.Version,
		Status:     "draft",
		Config:     string(configJSON),
		CompiledBy: session.UserName,
		CompiledAt: compiled.CompiledAt,
		CommitHash: head.Hash,
	}
	if err := s.store.InsertPolicyVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("store policy version: %w", err)
	}

	s.audit(ctx, "policy.compiled", session.UserName, projectID, nil, &version.ID, map[string]any{
		"version": version.Version,
		"commit":  head.Hash,
	})

	payload := policyVersionPayload(version, true)
	payload["diagnostics"] = diagnostics
	return payload, nil
}

func (s *Service) PublishPolicy(ctx context.Context, projectID, versionID, effectiveFromParam string, session Session) (map[string]any, error) {
	version, err := s.store.GetPolicyVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.ProjectID != projectID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Policy version not found in this project", nil)
	}

	effectiveFrom := time.Now().UTC()
	if strings.TrimSpace(effectiveFromParam) != "" {
		parsed, err := parseDay(effectiveFromParam)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "effectiveFrom must be a YYYY-MM-DD date", nil)
		}
		effectiveFrom = parsed
	}

	if err := s.store.ActivatePolicyVersion(ctx, projectID, versionID, effectiveFrom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusConflict, "NOT_DRAFT", "Only draft policy versions can be published", nil)
		}
		return nil, fmt.Errorf("activate policy: %w", err)
	}

	if version.CommitHash != "" {
		if err := s.snapshots.TagVersion(projectID, version.CommitHash, fmt.Sprintf("policy-v%d", version.Version)); err != nil {
			log.Printf("policy: tag version %d for %s: %v", version.Version, projectID, err)
		}
	}

	if s.archive != nil {
		go func(v store.PolicyVersion) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.archive.StorePolicy(ctx, v.ProjectID, v.Version, []byte(v.Config)); err != nil {
				log.Printf("archive: store policy v%d for %s: %v", v.Version, v.ProjectID, err)
			}
		}(version)
	}

	s.notifyPolicyPublished(ctx, projectID, version.Version)
	s.audit(ctx, "policy.published", session.UserName, projectID, nil, &version.ID, map[string]any{
		"version":       version.Version,
		"effectiveFrom": effectiveFrom.Format("2006-01-02"),
	})

	published, err := s.store.GetPolicyVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return policyVersionPayload(published, false), nil
}

func (s *Service) ListPolicyVersions(ctx context.Context, projectID string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListPolicyVersions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		items = append(items, policyVersionPayload(v, false))
	}
	return map[string]any{"versions": items}, nil
}

// GetPolicy returns the active policy, or the one in force at a given date.
func (s *Service) GetPolicy(ctx context.Context, projectID, atParam string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	var version store.PolicyVersion
	var err error
	if strings.TrimSpace(atParam) != "" {
		at, parseErr := parseDay(atParam)
		if parseErr != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at must be a YYYY-MM-DD date", nil)
		}
		version, err = s.store.GetPolicyVersionForDate(ctx, projectID, at.Add(24*time.Hour-time.Nanosecond))
	} else {
		version, err = s.store.GetActivePolicyVersion(ctx, projectID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NO_POLICY", "No policy version is in force", nil)
		}
		return nil, err
	}
	return policyVersionPayload(version, true), nil
}

func (s *Service) ExportPolicy(ctx context.Context, projectID string, version int, format string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	f := export.Format(format)
	if f != export.FormatPDF && f != export.FormatDOCX {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}
	return s.exporter.Export(ctx, export.Request{ProjectID: projectID, Version: version, Format: f})
}

func (s *Service) activeCompiledPolicy(ctx context.Context, projectID string) (*graph.CompiledProjectConfig, error) {
	version, err := s.store.GetActivePolicyVersion(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return decodePolicy(version)
}

// policyForEntry resolves the policy an entry is governed by: the version in
// force when it was submitted. Entries keep that version even if a newer one
// is published while they are in flight.
func (s *Service) policyForEntry(ctx context.Context, entry store.TimesheetEntry) (*graph.CompiledProjectConfig, error) {
	if entry.SubmittedAt != nil {
		version, err := s.store.GetPolicyVersionForDate(ctx, entry.ProjectID, *entry.SubmittedAt)
		if err == nil {
			return decodePolicy(version)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return s.activeCompiledPolicy(ctx, entry.ProjectID)
}

// --- Timesheets ---

func (s *Service) CreateEntry(ctx context.Context, projectID string, input EntryInput, session Session) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	workDate, err := parseDay(input.WorkDate)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workDate must be a YYYY-MM-DD date", nil)
	}
	if input.Hours <= 0 || input.Hours > 24 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "hours must be between 0 and 24", nil)
	}

	nodeID := ""
	if m, err := s.store.GetMembership(ctx, projectID, session.UserID); err == nil {
		nodeID = m.NodeID
	}

	contractID := strings.TrimSpace(input.ContractID)
	if contractID != "" {
		snap, _, err := s.loadGraph(ctx, projectID, nil)
		if err != nil {
			return nil, err
		}
		contract := findContract(snap.Nodes, contractID)
		if contract == nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "contractId does not name a contract node", nil)
		}
		if limit := contract.Contract.WeeklyHourLimit; limit > 0 {
			weekStart, weekEnd := weekBounds(workDate)
			logged, err := s.store.SumHoursForRange(ctx, contractID, session.UserID, weekStart, weekEnd)
			if err != nil {
				return nil, fmt.Errorf("sum weekly hours: %w", err)
			}
			if logged+input.Hours > float64(limit) {
				return nil, domainError(http.StatusUnprocessableEntity, "HOUR_LIMIT_EXCEEDED",
					fmt.Sprintf("Entry would exceed the contract's weekly limit of %d hours", limit),
					map[string]any{"limit": limit, "logged": logged})
			}
		}
	}

	entry := store.TimesheetEntry{
		ID:         util.NewID("ts"),
		ProjectID:  projectID,
		ContractID: contractID,
		UserID:     session.UserID,
		NodeID:     nodeID,
		WorkDate:   workDate,
		Hours:      input.Hours,
		Note:       strings.TrimSpace(input.Note),
		Status:     "draft",
	}
	if err := s.store.InsertTimesheetEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	s.audit(ctx, "timesheet.created", session.UserName, projectID, &entry.ID, nil, map[string]any{
		"workDate": input.WorkDate,
		"hours":    input.Hours,
	})
	return entryPayload(entry, nil), nil
}

func (s *Service) SubmitEntry(ctx context.Context, entryID string, session Session) (map[string]any, error) {
	entry, err := s.store.GetTimesheetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the entry owner can submit it", nil)
	}
	if entry.Status != "draft" && entry.Status != "rejected" {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Entry has already been submitted", nil)
	}

	policy, err := s.activeCompiledPolicy(ctx, entry.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusConflict, "NO_ACTIVE_POLICY", "Publish an approval policy before submitting timesheets", nil)
		}
		return nil, err
	}
	steps := timesheetSteps(policy)
	if len(steps) == 0 {
		return nil, domainError(http.StatusConflict, "NO_APPROVAL_CHAIN", "The active policy has no approval chain", nil)
	}

	if err := s.store.UpdateTimesheetEntryStatus(ctx, entryID, "submitted", 1); err != nil {
		return nil, fmt.Errorf("submit entry: %w", err)
	}

	updated, err := s.store.GetTimesheetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	s.notifyStepApprovers(ctx, updated, stepGroups(steps)[0])
	s.audit(ctx, "timesheet.submitted", session.UserName, entry.ProjectID, &entry.ID, nil, nil)
	return entryPayload(updated, nil), nil
}

// DecideEntry records an approve or reject at the entry's current step and
// advances the chain. Parallel approvers share a rank: every required one
// must approve; a rank with no required approvers needs any single approval.
func (s *Service) DecideEntry(ctx context.Context, entryID, decision string, input DecisionInput, session Session) (map[string]any, error) {
	if decision != "approved" && decision != "rejected" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be approved or rejected", nil)
	}

	entry, err := s.store.GetTimesheetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != "submitted" {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Entry is not awaiting approval", nil)
	}

	policy, err := s.policyForEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusConflict, "NO_ACTIVE_POLICY", "No policy version governs this entry", nil)
		}
		return nil, err
	}
	groups := stepGroups(timesheetSteps(policy))
	if entry.CurrentStep < 1 || entry.CurrentStep > len(groups) {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Entry step is outside the approval chain", nil)
	}
	group := groups[entry.CurrentStep-1]

	actorStep := s.matchApproverStep(ctx, entry.ProjectID, group, session)
	if actorStep == nil {
		return nil, domainError(http.StatusForbidden, "NOT_YOUR_STEP", "You are not an approver at the current step", nil)
	}

	if err := s.store.InsertApprovalAction(ctx, store.ApprovalAction{
		EntryID:   entry.ID,
		StepOrder: actorStep.Order,
		PartyID:   actorStep.PartyID,
		ActorID:   session.UserID,
		ActorName: session.UserName,
		Decision:  decision,
		Comment:   strings.TrimSpace(input.Comment),
	}); err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}

	if decision == "rejected" {
		if err := s.store.UpdateTimesheetEntryStatus(ctx, entry.ID, "rejected", entry.CurrentStep); err != nil {
			return nil, fmt.Errorf("reject entry: %w", err)
		}
		s.audit(ctx, "timesheet.rejected", session.UserName, entry.ProjectID, &entry.ID, nil, map[string]any{"step": entry.CurrentStep})
		return s.GetEntry(ctx, entry.ID, session)
	}

	actions, err := s.store.ListApprovalActions(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	if groupSatisfied(group, actions) {
		if entry.CurrentStep == len(groups) {
			if err := s.store.UpdateTimesheetEntryStatus(ctx, entry.ID, "approved", entry.CurrentStep); err != nil {
				return nil, fmt.Errorf("approve entry: %w", err)
			}
			s.audit(ctx, "timesheet.approved", session.UserName, entry.ProjectID, &entry.ID, nil, nil)
		} else {
			next := entry.CurrentStep + 1
			if err := s.store.UpdateTimesheetEntryStatus(ctx, entry.ID, "submitted", next); err != nil {
				return nil, fmt.Errorf("advance entry: %w", err)
			}
			updated, err := s.store.GetTimesheetEntry(ctx, entry.ID)
			if err == nil {
				s.notifyStepApprovers(ctx, updated, groups[next-1])
			}
			s.audit(ctx, "timesheet.step_advanced", session.UserName, entry.ProjectID, &entry.ID, nil, map[string]any{"step": next})
		}
	}

	return s.GetEntry(ctx, entry.ID, session)
}

func (s *Service) ListEntries(ctx context.Context, projectID, userFilter, statusFilter string, session Session) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	// Workers only see their own entries.
	role := s.effectiveRole(ctx, projectID, session)
	if role == "worker" || role == "viewer" {
		userFilter = session.UserID
	}

	entries, err := s.store.ListTimesheetEntries(ctx, projectID, userFilter, statusFilter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryPayload(e, nil))
	}
	return map[string]any{"entries": items}, nil
}

func (s *Service) GetEntry(ctx context.Context, entryID string, session Session) (map[string]any, error) {
	entry, err := s.store.GetTimesheetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	role := s.effectiveRole(ctx, entry.ProjectID, session)
	if (role == "worker" || role == "viewer") && entry.UserID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	actions, err := s.store.ListApprovalActions(ctx, entryID)
	if err != nil {
		return nil, err
	}

	payload := entryPayload(entry, actions)
	if policy, err := s.policyForEntry(ctx, entry); err == nil {
		payload["steps"] = timesheetSteps(policy)
	}
	return payload, nil
}

// --- Search, summary, audit ---

func (s *Service) Search(ctx context.Context, q, filterType, projectID string, limit, offset int, session Session) (map[string]any, error) {
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": q}, nil
	}
	resp := s.search.Search(search.Query{
		Text:            q,
		FilterType:      search.ResultType(filterType),
		FilterProjectID: projectID,
		Limit:           limit,
		Offset:          offset,
	})

	// Contract terms are need-to-know. Workers and viewers get their rates
	// masked elsewhere, so contract nodes stay out of their search results
	// entirely.
	role := rbac.Normalize(session.Role)
	if role == rbac.RoleWorker || role == rbac.RoleViewer {
		filtered := make([]search.Result, 0, len(resp.Results))
		for _, r := range resp.Results {
			if r.Type == search.ResultNode && r.NodeType == string(graph.NodeContract) {
				continue
			}
			filtered = append(filtered, r)
		}
		resp.Total -= len(resp.Results) - len(filtered)
		resp.Results = filtered
	}
	return map[string]any{"results": resp.Results, "total": resp.Total, "query": resp.Query}, nil
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	projects, pending, approved, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"projects":        projects,
		"pendingEntries":  pending,
		"approvedEntries": approved,
	}, nil
}

func (s *Service) AuditLog(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	events, err := s.store.ListAuditEvents(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(events))
	for _, e := range events {
		item := map[string]any{
			"id":        e.ID,
			"eventType": e.EventType,
			"actor":     e.ActorName,
			"createdAt": e.CreatedAt,
		}
		if e.EntryID != nil {
			item["entryId"] = *e.EntryID
		}
		if e.VersionID != nil {
			item["versionId"] = *e.VersionID
		}
		if len(e.Payload) > 0 {
			item["payload"] = e.Payload
		}
		items = append(items, item)
	}
	return map[string]any{"events": items}, nil
}

// --- Notifications ---

func (s *Service) notifyStepApprovers(ctx context.Context, entry store.TimesheetEntry, group []graph.ApprovalStep) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}

	project, err := s.store.GetProject(ctx, entry.ProjectID)
	if err != nil {
		return
	}
	worker, err := s.store.GetUserByID(ctx, entry.UserID)
	if err != nil {
		return
	}
	members, err := s.store.ListMembers(ctx, entry.ProjectID)
	if err != nil {
		return
	}

	partyIDs := map[string]struct{}{}
	for _, step := range group {
		partyIDs[step.PartyID] = struct{}{}
	}

	reviewURL := fmt.Sprintf("%s/projects/%s/timesheets/%s", strings.TrimRight(s.cfg.BaseURL, "/"), entry.ProjectID, entry.ID)
	for _, m := range members {
		if _, ok := partyIDs[m.NodeID]; !ok {
			continue
		}
		user, err := s.store.GetUserByID(ctx, m.UserID)
		if err != nil || user.Email == "" {
			continue
		}
		go func(u store.User) {
			if err := s.email.SendApprovalPendingEmail(
				u.Email, u.DisplayName, project.Name, worker.DisplayName,
				entry.WorkDate.Format("2006-01-02"), fmt.Sprintf("%.2f", entry.Hours), reviewURL,
			); err != nil {
				log.Printf("email: approval pending to %s: %v", u.Email, err)
			}
		}(user)
	}
}

// SendVerificationEmail delivers a signup verification link in the
// background. A no-op when SMTP is not configured.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.BaseURL, "/"), token)
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("email: verification to %s: %v", to, err)
		}
	}()
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.BaseURL, "/"), token)
	go func() {
		if err := s.email.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("email: password reset to %s: %v", to, err)
		}
	}()
}

func (s *Service) notifyPolicyPublished(ctx context.Context, projectID string, version int) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return
	}
	members, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return
	}

	policyURL := fmt.Sprintf("%s/projects/%s/policy", strings.TrimRight(s.cfg.BaseURL, "/"), projectID)
	for _, m := range members {
		user, err := s.store.GetUserByID(ctx, m.UserID)
		if err != nil || user.Email == "" {
			continue
		}
		go func(u store.User) {
			if err := s.email.SendPolicyPublishedEmail(u.Email, u.DisplayName, project.Name, version, policyURL); err != nil {
				log.Printf("email: policy published to %s: %v", u.Email, err)
			}
		}(user)
	}
}

// --- Helpers ---

func (s *Service) audit(ctx context.Context, eventType, actor, projectID string, entryID, versionID *string, payload map[string]any) {
	if err := s.store.InsertAuditEvent(ctx, store.AuditEvent{
		EventType: eventType,
		ActorName: actor,
		ProjectID: projectID,
		EntryID:   entryID,
		VersionID: versionID,
		Payload:   payload,
	}); err != nil {
		log.Printf("audit: record %s for %s: %v", eventType, projectID, err)
	}
}

func decodePolicy(version store.PolicyVersion) (*graph.CompiledProjectConfig, error) {
	var compiled graph.CompiledProjectConfig
	if err := json.Unmarshal([]byte(version.Config), &compiled); err != nil {
		return nil, fmt.Errorf("decode policy version %s: %w", version.ID, err)
	}
	return &compiled, nil
}

func timesheetSteps(policy *graph.CompiledProjectConfig) []graph.ApprovalStep {
	for _, p := range policy.ApprovalPolicies {
		if p.WorkType == graph.WorkTypeTimesheet {
			return p.Steps
		}
	}
	return nil
}

// stepGroups partitions an ordered step list into rank groups. Steps with the
// same rank are parallel approvers and form one group.
func stepGroups(steps []graph.ApprovalStep) [][]graph.ApprovalStep {
	var groups [][]graph.ApprovalStep
	for _, step := range steps {
		if len(groups) > 0 {
			last := groups[len(groups)-1]
			if last[0].Rank == step.Rank {
				groups[len(groups)-1] = append(last, step)
				continue
			}
		}
		groups = append(groups, []graph.ApprovalStep{step})
	}
	return groups
}

/// groupSatisfied reports whether a rank group has collected enough approvals:
// every required step approved, or any one approval when none are required.
func groupSatisfied(group []graph.ApprovalStep, actions []store.ApprovalAction) bool {
	approvedSteps := map[int]bool{}
	for _, a := range actions {
		if a.Decision == "approved" {
			approvedSteps[a.StepOrder] = true
		}
	}

	anyRequired := false
	anyApproved := false
	for _, step := range group {
		if approvedSteps[step.Order] {
			anyApproved = true
		}
		if step.Required {
			anyRequired = true
			if !approvedSteps[step.Order] {
				return false
			}
		}
	}
	if anyRequired {
		return true
	}
	return anyApproved
}

// matchApproverStep returns the step in the group the session may decide for,
// or nil. Admins may decide for any step in the group.
func (s *Service) matchApproverStep(ctx context.Context, projectID string, group []graph.ApprovalStep, session Session) *graph.ApprovalStep {
	membership, err := s.store.GetMembership(ctx, projectID, session.UserID)
	if err == nil && membership.NodeID != "" {
		for i := range group {
			if group[i].PartyID == membership.NodeID {
				return &group[i]
			}
		}
	}
	if rbac.Normalize(session.Role) == rbac.RoleAdmin {
		return &group[0]
	}
	return nil
}

func findContract(nodes []graph.Node, contractID string) *graph.Node {
	for i := range nodes {
		if nodes[i].ID == contractID && nodes[i].Type == graph.NodeContract && nodes[i].Contract != nil {
			return &nodes[i]
		}
	}
	return nil
}

func graphNodeRows(projectID string, nodes []graph.Node) []store.GraphNodeRow {
	rows := make([]store.GraphNodeRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, store.GraphNodeRow{
			ProjectID: projectID,
			NodeID:    n.ID,
			NodeType:  string(n.Type),
			Label:     n.Label(),
			Role:      n.Role(),
		})
	}
	return rows
}

func nodeRecords(projectID string, nodes []graph.Node) []search.NodeRecord {
	records := make([]search.NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, search.NodeRecord{
			ID:        projectID + ":" + n.ID,
			NodeID:    n.ID,
			ProjectID: projectID,
			NodeType:  string(n.Type),
			Label:     n.Label(),
			Role:      n.Role(),
		})
	}
	return records
}

func projectPayload(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"slug":        p.Slug,
		"description": p.Description,
		"status":      p.Status,
		"createdBy":   p.CreatedBy,
		"updatedBy":   p.UpdatedBy,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

func membershipPayloads(members []store.Membership) []map[string]any {
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, map[string]any{
			"userId": m.UserID,
			"role":   m.Role,
			"nodeId": m.NodeID,
		})
	}
	return items
}

func policyVersionPayload(v store.PolicyVersion, includeConfig bool) map[string]any {
	payload := map[string]any{
		"id":         v.ID,
		"projectId":  v.ProjectID,
		"version":    v.Version,
		"status":     v.Status,
		"compiledBy": v.CompiledBy,
		"compiledAt": v.CompiledAt,
		"commitHash": v.CommitHash,
	}
	if v.PublishedAt != nil {
		payload["publishedAt"] = *v.PublishedAt
	}
	if v.EffectiveFrom != nil {
		payload["effectiveFrom"] = *v.EffectiveFrom
	}
	if includeConfig {
		var config any
		if err := json.Unmarshal([]byte(v.Config), &config); err == nil {
			payload["config"] = config
		}
	}
	return payload
}

func commitPayload(c snapshot.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      c.Hash,
		"message":   c.Message,
		"author":    c.Author,
		"createdAt": c.CreatedAt,
	}
}

func entryPayload(e store.TimesheetEntry, actions []store.ApprovalAction) map[string]any {
	payload := map[string]any{
		"id":          e.ID,
		"projectId":   e.ProjectID,
		"contractId":  e.ContractID,
		"userId":      e.UserID,
		"nodeId":      e.NodeID,
		"workDate":    e.WorkDate.Format("2006-01-02"),
		"hours":       e.Hours,
		"note":        e.Note,
		"status":      e.Status,
		"currentStep": e.CurrentStep,
		"createdAt":   e.CreatedAt,
		"updatedAt":   e.UpdatedAt,
	}
	if e.SubmittedAt != nil {
		payload["submittedAt"] = *e.SubmittedAt
	}
	if actions != nil {
		items := make([]map[string]any, 0, len(actions))
		for _, a := range actions {
			items = append(items, map[string]any{
				"stepOrder": a.StepOrder,
				"partyId":   a.PartyID,
				"actor":     a.ActorName,
				"decision":  a.Decision,
				"comment":   a.Comment,
				"createdAt": a.CreatedAt,
			})
		}
		payload["actions"] = items
	}
	return payload
}

func parseDay(value string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(value))
}

/// weekBounds returns the Monday 00:00 and Sunday end of the week containing t.
func weekBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(weekday - 1))
	end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return start, end
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
