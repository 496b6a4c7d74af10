package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeKey_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		key     ScopeKey
		wantErr bool
	}{
		{"tenant ok", ScopeKey{TenantID: "acme", Scope: ScopeTenant}, false},
		{"tenant with workspace set", ScopeKey{TenantID: "acme", Scope: ScopeTenant, WorkspaceID: "ws-1"}, true},
		{"workspace ok", ScopeKey{TenantID: "acme", Scope: ScopeWorkspace, WorkspaceID: "ws-1"}, false},
		{"workspace missing id", ScopeKey{TenantID: "acme", Scope: ScopeWorkspace}, true},
		{"workspace with principal set", ScopeKey{TenantID: "acme", Scope: ScopeWorkspace, WorkspaceID: "ws-1", PrincipalID: "u1"}, true},
		{"user ok", ScopeKey{TenantID: "acme", Scope: ScopeUser, WorkspaceID: "ws-1", PrincipalID: "u1"}, false},
		{"user missing principal", ScopeKey{TenantID: "acme", Scope: ScopeUser, WorkspaceID: "ws-1"}, true},
		{"user missing workspace", ScopeKey{TenantID: "acme", Scope: ScopeUser, PrincipalID: "u1"}, true},
		{"missing tenant", ScopeKey{Scope: ScopeTenant}, true},
		{"unknown scope", ScopeKey{TenantID: "acme", Scope: "bogus"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.key.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
