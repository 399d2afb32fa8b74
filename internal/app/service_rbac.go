package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"worklane/api/internal/rbac"
	"worklane/api/internal/store"
)

var projectRoles = map[string]bool{
	"viewer":   true,
	"worker":   true,
	"approver": true,
	"manager":  true,
}

// effectiveRole resolves the role a user acts under within a project. A
// project membership overrides the global role, except that global admins
// stay admins everywhere.
func (s *Service) effectiveRole(ctx context.Context, projectID string, session Session) string {
	if rbac.Normalize(session.Role) == rbac.RoleAdmin {
		return "admin"
	}
	if m, err := s.store.GetMembership(ctx, projectID, session.UserID); err == nil && m.Role != "" {
		return m.Role
	}
	return string(rbac.Normalize(session.Role))
}

// requireProjectAction checks that the session may perform an action inside a
// project, using the effective (membership-aware) role.
func (s *Service) requireProjectAction(ctx context.Context, projectID string, session Session, action rbac.Action) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	role := s.effectiveRole(ctx, projectID, session)
	if !rbac.Can(rbac.Normalize(role), action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) ListProjectMembers(ctx context.Context, projectID string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		item := map[string]any{
			"userId": m.UserID,
			"role":   m.Role,
			"nodeId": m.NodeID,
		}
		if user, err := s.store.GetUserByID(ctx, m.UserID); err == nil {
			item["displayName"] = user.DisplayName
			item["email"] = user.Email
		}
		items = append(items, item)
	}
	return map[string]any{"members": items}, nil
}

// SetProjectMember adds or updates a project membership, optionally binding
// the user to a graph node so approvals and rate masking can resolve them.
func (s *Service) SetProjectMember(ctx context.Context, projectID, userID, role, nodeID string, session Session) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if !projectRoles[role] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be one of viewer, worker, approver, manager", nil)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "User not found", nil)
		}
		return nil, err
	}

	if nodeID != "" {
		snap, _, err := s.loadGraph(ctx, projectID, nil)
		if err != nil {
			return nil, err
		}
		found := false
		for _, n := range snap.Nodes {
			if n.ID == nodeID {
				found = true
				break
			}
		}
		if !found {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "nodeId does not exist in the project graph", nil)
		}
	}

	membership := store.Membership{ProjectID: projectID, UserID: userID, Role: role, NodeID: nodeID}
	if err := s.store.UpsertMembership(ctx, membership); err != nil {
		return nil, err
	}

	s.audit(ctx, "member.updated", session.UserName, projectID, nil, nil, map[string]any{
		"userId": userID,
		"role":   role,
		"nodeId": nodeID,
	})
	return map[string]any{"userId": userID, "role": role, "nodeId": nodeID}, nil
}

// --- Admin ---

func (s *Service) ListUsers(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{
			"id":          u.ID,
			"displayName": u.DisplayName,
			"email":       u.Email,
			"role":        u.Role,
			"verified":    u.IsEmailVerified,
			"createdAt":   u.CreatedAt,
		})
	}
	return map[string]any{"users": items}, nil
}

func (s *Service) UpdateUserRole(ctx context.Context, userID, role string, session Session) (map[string]any, error) {
	if !projectRoles[role] && role != "admin" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be one of viewer, worker, approver, manager, admin", nil)
	}
	if userID == session.UserID && role != "admin" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "admins cannot demote themselves", nil)
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return nil, err
	}

	s.audit(ctx, "user.role_updated", session.UserName, "", nil, nil, map[string]any{
		"userId": userID,
		"role":   role,
	})

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
	}, nil
}
