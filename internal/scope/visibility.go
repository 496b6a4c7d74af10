// Package scope builds the Visibility capability that every store
// operation takes as an argument, so scope enforcement can never be
// skipped by a call site that forgets to filter.
package scope

import "ragservice/internal/domain"

// Visibility is the set of ScopeKeys a caller may observe, derived once
// per request from their resolved tenant and the X-Workspace-Id /
// X-Principal-Id headers.
type Visibility struct {
	TenantID    string
	WorkspaceID string
	PrincipalID string
}

// New builds a Visibility from a resolved tenant and optional workspace/
// principal headers. workspaceID and principalID are empty when absent.
func New(tenantID, workspaceID, principalID string) Visibility {
	return Visibility{TenantID: tenantID, WorkspaceID: workspaceID, PrincipalID: principalID}
}

// Keys enumerates the ScopeKeys this Visibility allows a read to return:
// always the tenant-level key; additionally the workspace-level key when
// a workspace is set; additionally the user-level key when a principal is
// also set.
func (v Visibility) Keys() []domain.ScopeKey {
	keys := []domain.ScopeKey{{TenantID: v.TenantID, Scope: domain.ScopeTenant}}
	if v.WorkspaceID != "" {
		keys = append(keys, domain.ScopeKey{TenantID: v.TenantID, Scope: domain.ScopeWorkspace, WorkspaceID: v.WorkspaceID})
		if v.PrincipalID != "" {
			keys = append(keys, domain.ScopeKey{
				TenantID:    v.TenantID,
				Scope:       domain.ScopeUser,
				WorkspaceID: v.WorkspaceID,
				PrincipalID: v.PrincipalID,
			})
		}
	}
	return keys
}

// Allows reports whether key lies within this Visibility's set.
func (v Visibility) Allows(key domain.ScopeKey) bool {
	if key.TenantID != v.TenantID {
		return false
	}
	switch key.Scope {
	case domain.ScopeTenant:
		return true
	case domain.ScopeWorkspace:
		return v.WorkspaceID != "" && key.WorkspaceID == v.WorkspaceID
	case domain.ScopeUser:
		return v.WorkspaceID != "" && v.PrincipalID != "" &&
			key.WorkspaceID == v.WorkspaceID && key.PrincipalID == v.PrincipalID
	default:
		return false
	}
}
