package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAclSpecNormalize(t *testing.T) {
	tests := []struct {
		name    string
		spec    AclSpec
		want    AclSpec
		wantErr bool
	}{
		{
			name: "defaults",
			spec: AclSpec{PrincipalEmail: " ann@example.com ", Permission: "ALLOW", Operation: "Read"},
			want: AclSpec{PrincipalEmail: "ann@example.com", Permission: PermissionAllow, Operation: OperationRead, Host: HostAny, Role: RoleAny},
		},
		{
			name: "role is canonicalized",
			spec: AclSpec{PrincipalEmail: "a@b", Permission: "deny", Operation: "*", Host: "10.0.0.1", Role: "DATA OWNER"},
			want: AclSpec{PrincipalEmail: "a@b", Permission: PermissionDeny, Operation: OperationAll, Host: "10.0.0.1", Role: RoleDataOwner},
		},
		{name: "missing email", spec: AclSpec{Permission: "allow", Operation: "read"}, wantErr: true},
		{name: "bad permission", spec: AclSpec{PrincipalEmail: "a@b", Permission: "maybe", Operation: "read"}, wantErr: true},
		{name: "bad operation", spec: AclSpec{PrincipalEmail: "a@b", Permission: "allow", Operation: "alter"}, wantErr: true},
		{name: "bad role", spec: AclSpec{PrincipalEmail: "a@b", Permission: "allow", Operation: "read", Role: "admin"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Normalize()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAcl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "clicks", Topic{Name: "clicks", ProjectID: 1}.Key())
	assert.Equal(t,
		TopicShare{TopicName: "clicks", OwnerProjectID: 1, ProjectID: 2}.Key(),
		TopicShare{TopicName: "clicks", OwnerProjectID: 9, ProjectID: 2}.Key())
	assert.Equal(t, int64(7), AclRule{ID: 7}.Key())
}
