package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		role      Role
		wantErr   bool
		wantRole  Role
	}{
		{
			name:     "anonymous",
			role:     RoleUser,
			wantErr:  true,
			wantRole: "",
		},
		{
			name:      "missing role",
			principal: Principal{UserID: "u1", Roles: []Role{RoleUser}},
			role:      RoleAdmin,
			wantErr:   true,
			wantRole:  RoleAdmin,
		},
		{
			name:      "has role",
			principal: Principal{UserID: "u1", Roles: []Role{RoleUser, RoleAdmin}},
			role:      RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(tt.principal, tt.role)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var uErr *UnauthorizedError
			require.True(t, errors.As(err, &uErr))
			assert.Equal(t, tt.wantRole, uErr.Role)
		})
	}
}

func TestUnauthorizedError_Authenticated(t *testing.T) {
	assert.False(t, (&UnauthorizedError{}).Authenticated())
	assert.True(t, (&UnauthorizedError{Role: RoleAdmin}).Authenticated())

	var uErr *UnauthorizedError
	require.True(t, errors.As(Deny("cart belongs to another user"), &uErr))
	assert.True(t, uErr.Authenticated())
	assert.Contains(t, uErr.Error(), "another user")
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, FromContext(ctx).Authenticated())

	p := Principal{UserID: "u1", Roles: []Role{RoleUser}}
	got := FromContext(WithPrincipal(ctx, p))
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.IsInRole(RoleUser))
	assert.False(t, got.IsInRole(RoleAdmin))
}
