package authcore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/seclava/go-authcore"
)

func TestAccountContext(t *testing.T) {
	account := &authcore.Account{Username: "alice"}

	ctx := authcore.WithContext(context.Background(), account)

	found, ok := authcore.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", found.Username)

	_, ok = authcore.FromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContext(t *testing.T) {
	claims := &authcore.JWTClaims{
		UID:        "88f431a1-5a4d-4e4c-83a8-58a69d458b40",
		UserRole:   authcore.RoleAdmin,
		TokenClass: authcore.TokenClassAccess,
	}

	ctx := authcore.WithClaimsContext(context.Background(), claims)

	found, ok := authcore.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, authcore.RoleAdmin, found.Role())

	_, ok = authcore.GetClaims(context.Background())
	assert.False(t, ok)
}

func TestCan(t *testing.T) {
	admin := authcore.WithClaimsContext(context.Background(), &authcore.JWTClaims{UserRole: authcore.RoleAdmin})
	user := authcore.WithClaimsContext(context.Background(), &authcore.JWTClaims{UserRole: authcore.RoleUser})

	assert.True(t, authcore.Can(admin, authcore.RoleAdmin))
	assert.True(t, authcore.Can(admin, authcore.RoleUser))
	assert.False(t, authcore.Can(user, authcore.RoleAdmin))
	assert.False(t, authcore.Can(context.Background(), authcore.RoleUser))
}
