package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "complete", req: Request{Subject: "alice", Action: "orders.create", Tenant: "paper"}},
		{name: "missing all", req: Request{}, wantErr: "missing required fields: subject, action, tenant"},
		{name: "missing tenant", req: Request{Subject: "alice", Action: "orders.read"}, wantErr: "missing required fields: tenant"},
		{
			name:    "subject spoofing a write bucket",
			req:     Request{Subject: "alice:orders.create", Action: "positions.read", Tenant: "paper"},
			wantErr: "subject must not contain ':'",
		},
		{
			name:    "tenant with separator",
			req:     Request{Subject: "alice", Action: "positions.read", Tenant: "paper:alice"},
			wantErr: "tenant must not contain ':'",
		},
		{name: "colon in action is allowed", req: Request{Subject: "alice", Action: "orders:create", Tenant: "paper"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestRequest_SortedRolesCopies(t *testing.T) {
	req := &Request{Roles: []string{"trader", "admin"}}

	sorted := req.SortedRoles()
	assert.Equal(t, []string{"admin", "trader"}, sorted)
	assert.Equal(t, []string{"trader", "admin"}, req.Roles)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ReasonAllowed, CodeOf("allowed"))
	assert.Equal(t, ReasonPositionLimit, CodeOf("position-limit: position size 10 not below limit 10"))
	assert.Equal(t, ReasonMalformedContext, CodeOf("malformed-context: now_hour: expected number, got string"))
}
