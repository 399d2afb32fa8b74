package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worklane/api/internal/export"
)

// exportStore adapts the data store to the export service's narrower view.
type exportStore struct {
	store dataStore
}

// ExportDataStore returns the adapter the export service reads projects and
// policy configs through.
func (s *Service) ExportDataStore() export.DataStore {
	return exportStore{store: s.store}
}

func (e exportStore) GetProject(ctx context.Context, id string) (export.ProjectInfo, error) {
	project, err := e.store.GetProject(ctx, id)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{ID: project.ID, Name: project.Name}, nil
}

func (e exportStore) GetPolicyConfig(ctx context.Context, projectID string, version int) (export.PolicyInfo, error) {
	if version == 0 {
		active, err := e.store.GetActivePolicyVersion(ctx, projectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return export.PolicyInfo{}, fmt.Errorf("%w: no active policy", export.ErrPolicyUnavailable)
			}
			return export.PolicyInfo{}, err
		}
		return export.PolicyInfo{Version: active.Version, Status: active.Status, Config: active.Config}, nil
	}

	versions, err := e.store.ListPolicyVersions(ctx, projectID)
	if err != nil {
		return export.PolicyInfo{}, err
	}
	for _, v := range versions {
		if v.Version == version {
			return export.PolicyInfo{Version: v.Version, Status: v.Status, Config: v.Config}, nil
		}
	}
	return export.PolicyInfo{}, fmt.Errorf("%w: version %d not found", export.ErrPolicyUnavailable, version)
}
