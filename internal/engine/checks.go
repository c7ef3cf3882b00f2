package engine

import (
	"fmt"
	"strconv"

	"github.com/authz-engine/trading-pdp/internal/policy"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// CheckResult is the outcome of a single check
type CheckResult struct {
	Name   string           `json:"name"`
	OK     bool             `json:"ok"`
	Code   types.ReasonCode `json:"code,omitempty"`
	Detail string           `json:"detail,omitempty"`
}

// Reason renders the result as a decision reason
func (r CheckResult) Reason() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return string(r.Code) + ": " + r.Detail
}

const roleCheckName = "role_permission"

type checkFunc func(cfg *policy.Config, req *types.Request, attrs attributes) CheckResult

type check struct {
	name string
	// attrs are type-checked whenever present, even if the check does not
	// engage for this request
	attrs []attrSpec
	// inspects gates the type check; nil means always
	inspects func(cfg *policy.Config, req *types.Request) bool
	eval     checkFunc
}

// run type-checks the attributes owned by the check, then evaluates it
func (c check) run(cfg *policy.Config, req *types.Request, attrs attributes) CheckResult {
	if c.inspects == nil || c.inspects(cfg, req) {
		for _, spec := range c.attrs {
			if err := attrs.validate(spec); err != nil {
				res := malformed(spec.key, err)
				res.Name = c.name
				return res
			}
		}
	}
	res := c.eval(cfg, req, attrs)
	res.Name = c.name
	return res
}

// abacChecks run after the role gate. The order is the reason precedence:
// when several fail, the earliest one names the denial.
var abacChecks = []check{
	{
		name:  "trading_hours",
		attrs: []attrSpec{{types.AttrAssetClass, kindString}, {types.AttrVenue, kindString}, {types.AttrNowHour, kindNumber}},
		eval:  tradingHoursOK,
	},
	{
		name:  "circuit_breaker",
		attrs: []attrSpec{{types.AttrCircuitBreakerActive, kindBool}},
		eval:  circuitBreakerOK,
	},
	{
		name:  "canary",
		attrs: []attrSpec{{types.AttrVenue, kindString}, {types.AttrDailyOrderCount, kindNumber}, {types.AttrOrderNotional, kindNumber}},
		eval:  canaryOK,
	},
	{
		name:  "position_limit",
		attrs: []attrSpec{{types.AttrPositionSize, kindNumber}, {types.AttrPositionLimit, kindNumber}},
		eval:  positionLimitOK,
	},
	{
		// Unrestricted tenants are never denied here, whatever account_id holds
		name:     "account_allowed",
		attrs:    []attrSpec{{types.AttrAccountID, kindString}},
		inspects: func(cfg *policy.Config, req *types.Request) bool { return cfg.AccountRestricted(req.Tenant) },
		eval:     accountAllowed,
	},
	{
		name:     "venue_allowed",
		attrs:    []attrSpec{{types.AttrVenue, kindString}},
		inspects: func(cfg *policy.Config, req *types.Request) bool { return cfg.VenueRestricted(req.Tenant) },
		eval:     venueAllowed,
	},
}

// CheckNames returns the attribute check names in precedence order
func CheckNames() []string {
	names := make([]string, len(abacChecks))
	for i, c := range abacChecks {
		names[i] = c.name
	}
	return names
}

func pass() CheckResult {
	return CheckResult{OK: true}
}

func fail(code types.ReasonCode, format string, args ...interface{}) CheckResult {
	return CheckResult{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func malformed(key string, err error) CheckResult {
	return fail(types.ReasonMalformedContext, "%s: %v", key, err)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rolePermission(cfg *policy.Config, req *types.Request) CheckResult {
	if cfg.RolesPermit(req.Roles, req.Action) {
		return CheckResult{Name: roleCheckName, OK: true}
	}
	res := fail(types.ReasonRolePermissionDenied, "roles %v do not grant %s", req.SortedRoles(), req.Action)
	res.Name = roleCheckName
	return res
}

// tradingHoursOK only engages for the configured venue and asset class pair
func tradingHoursOK(cfg *policy.Config, _ *types.Request, attrs attributes) CheckResult {
	window := cfg.Limits().TradingHours

	assetClass, _, err := attrs.str(types.AttrAssetClass)
	if err != nil {
		return malformed(types.AttrAssetClass, err)
	}
	venue, _, err := attrs.str(types.AttrVenue)
	if err != nil {
		return malformed(types.AttrVenue, err)
	}
	if assetClass != window.AssetClass || venue != window.Venue {
		return pass()
	}

	hour, present, err := attrs.number(types.AttrNowHour)
	if err != nil {
		return malformed(types.AttrNowHour, err)
	}
	if !present {
		return fail(types.ReasonTradingHours, "%s missing for %s on %s", types.AttrNowHour, assetClass, venue)
	}
	if hour < float64(window.OpenHour) || hour >= float64(window.CloseHour) {
		return fail(types.ReasonTradingHours, "%s on %s outside trading hours [%d,%d) at hour %s",
			assetClass, venue, window.OpenHour, window.CloseHour, num(hour))
	}
	return pass()
}

func circuitBreakerOK(_ *policy.Config, _ *types.Request, attrs attributes) CheckResult {
	active, _, err := attrs.flag(types.AttrCircuitBreakerActive)
	if err != nil {
		return malformed(types.AttrCircuitBreakerActive, err)
	}
	if active {
		return fail(types.ReasonCircuitBreaker, "circuit breaker active")
	}
	return pass()
}

func canaryOK(cfg *policy.Config, _ *types.Request, attrs attributes) CheckResult {
	venue, _, err := attrs.str(types.AttrVenue)
	if err != nil {
		return malformed(types.AttrVenue, err)
	}
	if !cfg.IsCanaryVenue(venue) {
		return pass()
	}

	limits := cfg.Limits().Canary

	count, present, err := attrs.number(types.AttrDailyOrderCount)
	if err != nil {
		return malformed(types.AttrDailyOrderCount, err)
	}
	if !present {
		return fail(types.ReasonCanaryThrottle, "%s missing for canary venue %s", types.AttrDailyOrderCount, venue)
	}

	notional, present, err := attrs.number(types.AttrOrderNotional)
	if err != nil {
		return malformed(types.AttrOrderNotional, err)
	}
	if !present {
		return fail(types.ReasonCanaryThrottle, "%s missing for canary venue %s", types.AttrOrderNotional, venue)
	}

	if count >= limits.MaxDailyOrders {
		return fail(types.ReasonCanaryThrottle, "canary venue %s daily order count %s reached limit %s",
			venue, num(count), num(limits.MaxDailyOrders))
	}
	if notional >= limits.MaxOrderNotional {
		return fail(types.ReasonCanaryThrottle, "canary venue %s order notional %s reached limit %s",
			venue, num(notional), num(limits.MaxOrderNotional))
	}
	return pass()
}

// positionLimitOK fails closed when either operand is missing
func positionLimitOK(_ *policy.Config, req *types.Request, attrs attributes) CheckResult {
	if req.Action != types.ActionOrdersCreate {
		return pass()
	}

	size, present, err := attrs.number(types.AttrPositionSize)
	if err != nil {
		return malformed(types.AttrPositionSize, err)
	}
	if !present {
		return fail(types.ReasonPositionLimit, "%s missing", types.AttrPositionSize)
	}

	limit, present, err := attrs.number(types.AttrPositionLimit)
	if err != nil {
		return malformed(types.AttrPositionLimit, err)
	}
	if !present {
		return fail(types.ReasonPositionLimit, "%s missing", types.AttrPositionLimit)
	}

	if size >= limit {
		return fail(types.ReasonPositionLimit, "position size %s not below limit %s", num(size), num(limit))
	}
	return pass()
}

func accountAllowed(cfg *policy.Config, req *types.Request, attrs attributes) CheckResult {
	if !cfg.AccountRestricted(req.Tenant) {
		return pass()
	}

	account, present, err := attrs.str(types.AttrAccountID)
	if err != nil {
		return malformed(types.AttrAccountID, err)
	}
	if !present {
		return fail(types.ReasonAccountNotAllowed, "tenant %s requires %s", req.Tenant, types.AttrAccountID)
	}
	if !cfg.AccountPermitted(req.Tenant, account) {
		return fail(types.ReasonAccountNotAllowed, "account %s not allowed for tenant %s", account, req.Tenant)
	}
	return pass()
}

func venueAllowed(cfg *policy.Config, req *types.Request, attrs attributes) CheckResult {
	if !cfg.VenueRestricted(req.Tenant) {
		return pass()
	}

	venue, present, err := attrs.str(types.AttrVenue)
	if err != nil {
		return malformed(types.AttrVenue, err)
	}
	if !present {
		return fail(types.ReasonVenueNotAllowed, "tenant %s requires %s", req.Tenant, types.AttrVenue)
	}
	if !cfg.VenuePermitted(req.Tenant, venue) {
		return fail(types.ReasonVenueNotAllowed, "venue %s not allowed for tenant %s", venue, req.Tenant)
	}
	return pass()
}
