package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoles(t *testing.T) {
	tests := []struct {
		input string
		want  Roles
	}{
		{"", nil},
		{"USER", Roles{RoleUser}},
		{"user, critic", Roles{RoleUser, RoleCritic}},
		{"ADMIN,,ADMIN", Roles{RoleAdmin}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRoles(tt.input))
		})
	}
}

func TestRoles_ValueScan(t *testing.T) {
	roles := Roles{RoleCritic, RoleAdmin}

	v, err := roles.Value()
	require.NoError(t, err)
	assert.Equal(t, "CRITIC,ADMIN", v)

	var scanned Roles
	require.NoError(t, scanned.Scan([]byte("CRITIC,ADMIN")))
	assert.True(t, scanned.Has(RoleAdmin))
	assert.False(t, scanned.Has(RoleUser))

	assert.Error(t, scanned.Scan(42))
}

func TestUser_Validate(t *testing.T) {
	u := &User{Username: " alice "}
	require.NoError(t, u.Validate())
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, Roles{RoleUser}, u.Roles)

	assert.Equal(t, ErrUsernameRequired, (&User{}).Validate())
}
