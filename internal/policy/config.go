// Package policy provides the static authorization tables consulted by the
// decision engine, their on-disk document format, and atomic replacement
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// PermissionSet is a closed set of action names
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from a list of actions
func NewPermissionSet(actions ...string) PermissionSet {
	set := make(PermissionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Has reports whether the set contains an action
func (p PermissionSet) Has(action string) bool {
	_, ok := p[action]
	return ok
}

// Actions returns the set members in sorted order
func (p PermissionSet) Actions() []string {
	out := make([]string, 0, len(p))
	for a := range p {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// TradingHours bounds the exchange-local trading window for one venue and
// asset class. The window is [OpenHour, CloseHour).
type TradingHours struct {
	Venue      string `yaml:"venue" json:"venue"`
	AssetClass string `yaml:"assetClass" json:"assetClass"`
	OpenHour   int    `yaml:"openHour" json:"openHour"`
	CloseHour  int    `yaml:"closeHour" json:"closeHour"`
}

// CanaryLimits caps activity on canary venues. Both bounds are exclusive.
type CanaryLimits struct {
	MaxDailyOrders   float64 `yaml:"maxDailyOrders" json:"maxDailyOrders"`
	MaxOrderNotional float64 `yaml:"maxOrderNotional" json:"maxOrderNotional"`
}

// Limits holds the numeric thresholds used by the attribute checks
type Limits struct {
	TradingHours TradingHours `yaml:"tradingHours" json:"tradingHours"`
	Canary       CanaryLimits `yaml:"canary" json:"canary"`
}

// DefaultLimits returns the thresholds used when a document does not set them.
// The 09:30 equity open is approximated to hour 9.
func DefaultLimits() Limits {
	return Limits{
		TradingHours: TradingHours{
			Venue:      "IBKR",
			AssetClass: "equity",
			OpenHour:   9,
			CloseHour:  16,
		},
		Canary: CanaryLimits{
			MaxDailyOrders:   100,
			MaxOrderNotional: 10000,
		},
	}
}

type stringSet map[string]struct{}

func newStringSet(items []string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Config is an immutable snapshot of the authorization tables.
// Build one with New or DefaultConfig; there are no mutators.
type Config struct {
	roles        map[string]PermissionSet
	accounts     map[string]stringSet
	venues       map[string]stringSet
	canaryVenues stringSet
	limits       Limits
	fingerprint  string
}

// PermissionsOf returns a copy of the permissions granted by a role.
// Unknown roles yield an empty set.
func (c *Config) PermissionsOf(role string) PermissionSet {
	perms := c.roles[role]
	out := make(PermissionSet, len(perms))
	for a := range perms {
		out[a] = struct{}{}
	}
	return out
}

// RolesPermit reports whether any of the roles grants the action
func (c *Config) RolesPermit(roles []string, action string) bool {
	for _, r := range roles {
		if c.roles[r].Has(action) {
			return true
		}
	}
	return false
}

// AllowedAccounts returns the tenant's account allowlist. The boolean is
// false when the tenant is unrestricted.
func (c *Config) AllowedAccounts(tenant string) ([]string, bool) {
	set, ok := c.accounts[tenant]
	if !ok {
		return nil, false
	}
	return set.sorted(), true
}

// AllowedVenues returns the tenant's venue allowlist. The boolean is false
// when the tenant is unrestricted.
func (c *Config) AllowedVenues(tenant string) ([]string, bool) {
	set, ok := c.venues[tenant]
	if !ok {
		return nil, false
	}
	return set.sorted(), true
}

// AccountPermitted reports whether the tenant may use the account
func (c *Config) AccountPermitted(tenant, account string) bool {
	set, ok := c.accounts[tenant]
	if !ok {
		return true
	}
	_, member := set[account]
	return member
}

// VenuePermitted reports whether the tenant may route to the venue
func (c *Config) VenuePermitted(tenant, venue string) bool {
	set, ok := c.venues[tenant]
	if !ok {
		return true
	}
	_, member := set[venue]
	return member
}

// AccountRestricted reports whether the tenant has an account allowlist
func (c *Config) AccountRestricted(tenant string) bool {
	_, ok := c.accounts[tenant]
	return ok
}

// VenueRestricted reports whether the tenant has a venue allowlist
func (c *Config) VenueRestricted(tenant string) bool {
	_, ok := c.venues[tenant]
	return ok
}

// IsCanaryVenue reports whether the venue is subject to canary throttling
func (c *Config) IsCanaryVenue(venue string) bool {
	_, ok := c.canaryVenues[venue]
	return ok
}

// CanaryVenues returns the canary venue set in sorted order
func (c *Config) CanaryVenues() []string {
	return c.canaryVenues.sorted()
}

// Roles returns the configured role names in sorted order
func (c *Config) Roles() []string {
	out := make([]string, 0, len(c.roles))
	for r := range c.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Limits returns the configured thresholds
func (c *Config) Limits() Limits {
	return c.limits
}

// Fingerprint is a stable hash of the tables, for status reporting
func (c *Config) Fingerprint() string {
	return c.fingerprint
}

// Document returns an equivalent document, with sorted lists
func (c *Config) Document() *Document {
	doc := &Document{
		APIVersion:   APIVersion,
		Roles:        make(map[string][]string, len(c.roles)),
		Tenants:      make(map[string]TenantDocument),
		CanaryVenues: c.canaryVenues.sorted(),
		Limits:       c.limits,
	}
	for r, perms := range c.roles {
		doc.Roles[r] = perms.Actions()
	}
	for t, set := range c.accounts {
		td := doc.Tenants[t]
		accounts := set.sorted()
		td.Accounts = &accounts
		doc.Tenants[t] = td
	}
	for t, set := range c.venues {
		td := doc.Tenants[t]
		venues := set.sorted()
		td.Venues = &venues
		doc.Tenants[t] = td
	}
	return doc
}

// New validates a document and builds an immutable Config from it.
// The document is copied; later changes to it do not affect the Config.
func New(doc *Document) (*Config, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	limits := doc.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}

	cfg := &Config{
		roles:        make(map[string]PermissionSet, len(doc.Roles)),
		accounts:     make(map[string]stringSet),
		venues:       make(map[string]stringSet),
		canaryVenues: newStringSet(doc.CanaryVenues),
		limits:       limits,
	}
	for role, actions := range doc.Roles {
		cfg.roles[role] = NewPermissionSet(actions...)
	}
	for tenant, td := range doc.Tenants {
		if td.Accounts != nil {
			cfg.accounts[tenant] = newStringSet(*td.Accounts)
		}
		if td.Venues != nil {
			cfg.venues[tenant] = newStringSet(*td.Venues)
		}
	}
	cfg.fingerprint = fingerprint(cfg)
	return cfg, nil
}

// MustNew is New for statically known documents; it panics on error
func MustNew(doc *Document) *Config {
	cfg, err := New(doc)
	if err != nil {
		panic(err)
	}
	return cfg
}

func fingerprint(c *Config) string {
	// json.Marshal sorts map keys, and every list in Document is sorted
	b, err := json.Marshal(c.Document())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// DefaultConfig returns the built-in tables. Deployments normally supply
// their own document; these cover the demo, paper and production tenants.
func DefaultConfig() *Config {
	return MustNew(DefaultDocument())
}

// DefaultDocument returns the document behind DefaultConfig
func DefaultDocument() *Document {
	prodAccounts := []string{"DU0000001", "DU0000002"}
	prodVenues := []string{"IBKR", "CCXT"}
	return &Document{
		APIVersion: APIVersion,
		Roles: map[string][]string{
			"trader": {
				"orders.create", "orders.cancel", "orders.replace", "orders.read",
				"positions.read", "broker.submit",
			},
			"risk": {
				"orders.read", "orders.cancel", "positions.read", "risk.read", "risk.update",
			},
			"broker": {
				"broker.submit", "broker.cancel", "orders.read",
			},
			"human": {
				"orders.read", "positions.read", "dashboard.read",
			},
			"admin": {
				"orders.create", "orders.cancel", "orders.replace", "orders.read",
				"positions.read", "broker.submit", "broker.cancel",
				"risk.read", "risk.update", "dashboard.read",
			},
		},
		Tenants: map[string]TenantDocument{
			"production": {Accounts: &prodAccounts, Venues: &prodVenues},
		},
		CanaryVenues: []string{"KRAKEN"},
		Limits:       DefaultLimits(),
	}
}
