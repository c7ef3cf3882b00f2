package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() *Document {
	accounts := []string{"A-1"}
	return &Document{
		APIVersion:   APIVersion,
		Roles:        map[string][]string{"trader": {"orders.create"}},
		Tenants:      map[string]TenantDocument{"production": {Accounts: &accounts}},
		CanaryVenues: []string{"KRAKEN"},
		Limits:       DefaultLimits(),
	}
}

func TestValidate(t *testing.T) {
	empty := []string{""}

	tests := []struct {
		name    string
		mutate  func(d *Document)
		wantErr string
	}{
		{name: "valid", mutate: func(d *Document) {}},
		{name: "zero limits use defaults", mutate: func(d *Document) { d.Limits = Limits{} }},
		{name: "api version", mutate: func(d *Document) { d.APIVersion = "" }, wantErr: "unsupported apiVersion"},
		{name: "empty role name", mutate: func(d *Document) { d.Roles[" "] = []string{"x"} }, wantErr: "role name cannot be empty"},
		{name: "empty action", mutate: func(d *Document) { d.Roles["trader"] = []string{""} }, wantErr: "role trader: action at index 0 is empty"},
		{name: "empty tenant", mutate: func(d *Document) { d.Tenants[""] = TenantDocument{} }, wantErr: "tenant name cannot be empty"},
		{name: "empty account", mutate: func(d *Document) { d.Tenants["paper"] = TenantDocument{Accounts: &empty} }, wantErr: "tenant paper accounts"},
		{name: "empty venue", mutate: func(d *Document) { d.Tenants["paper"] = TenantDocument{Venues: &empty} }, wantErr: "tenant paper venues"},
		{name: "empty canary venue", mutate: func(d *Document) { d.CanaryVenues = []string{"KRAKEN", ""} }, wantErr: "canaryVenues"},
		{name: "open hour range", mutate: func(d *Document) { d.Limits.TradingHours.OpenHour = 24 }, wantErr: "openHour 24 out of range"},
		{name: "close hour range", mutate: func(d *Document) { d.Limits.TradingHours.CloseHour = 25 }, wantErr: "closeHour 25 out of range"},
		{name: "inverted window", mutate: func(d *Document) { d.Limits.TradingHours.OpenHour = 16 }, wantErr: "must be before closeHour"},
		{name: "missing venue", mutate: func(d *Document) { d.Limits.TradingHours.Venue = "" }, wantErr: "requires venue and assetClass"},
		{name: "canary orders", mutate: func(d *Document) { d.Limits.Canary.MaxDailyOrders = 0 }, wantErr: "maxDailyOrders must be positive"},
		{name: "canary notional", mutate: func(d *Document) { d.Limits.Canary.MaxOrderNotional = -1 }, wantErr: "maxOrderNotional must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)

			err := Validate(doc)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrInvalidConfig)
}

func TestWarnings(t *testing.T) {
	empty := []string{}
	doc := validDocument()
	doc.Roles["observer"] = nil
	doc.Tenants["locked"] = TenantDocument{Accounts: &empty}
	doc.Tenants["open"] = TenantDocument{}

	assert.Equal(t, []string{
		"role observer grants no permissions",
		"tenant locked has an empty account allowlist and will be denied every account",
		"tenant open is listed but unrestricted in both dimensions",
	}, Warnings(doc))
	assert.Nil(t, Warnings(nil))
}
