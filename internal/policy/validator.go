package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid policy configuration")

// Validate checks the structure of a document
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document cannot be nil", ErrInvalidConfig)
	}

	if doc.APIVersion != APIVersion {
		return fmt.Errorf("%w: unsupported apiVersion %q (want %q)", ErrInvalidConfig, doc.APIVersion, APIVersion)
	}

	for _, role := range sortedKeys(doc.Roles) {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%w: role name cannot be empty", ErrInvalidConfig)
		}
		for i, action := range doc.Roles[role] {
			if strings.TrimSpace(action) == "" {
				return fmt.Errorf("%w: role %s: action at index %d is empty", ErrInvalidConfig, role, i)
			}
		}
	}

	for tenant, td := range doc.Tenants {
		if strings.TrimSpace(tenant) == "" {
			return fmt.Errorf("%w: tenant name cannot be empty", ErrInvalidConfig)
		}
		if td.Accounts != nil {
			if err := validateMembers("tenant "+tenant+" accounts", *td.Accounts); err != nil {
				return err
			}
		}
		if td.Venues != nil {
			if err := validateMembers("tenant "+tenant+" venues", *td.Venues); err != nil {
				return err
			}
		}
	}

	if err := validateMembers("canaryVenues", doc.CanaryVenues); err != nil {
		return err
	}

	// A zero Limits block means "use defaults" and is filled in by New
	if doc.Limits == (Limits{}) {
		return nil
	}
	return validateLimits(doc.Limits)
}

func validateLimits(l Limits) error {
	th := l.TradingHours
	if th.OpenHour < 0 || th.OpenHour >= 24 {
		return fmt.Errorf("%w: tradingHours.openHour %d out of range [0,24)", ErrInvalidConfig, th.OpenHour)
	}
	if th.CloseHour <= 0 || th.CloseHour > 24 {
		return fmt.Errorf("%w: tradingHours.closeHour %d out of range (0,24]", ErrInvalidConfig, th.CloseHour)
	}
	if th.OpenHour >= th.CloseHour {
		return fmt.Errorf("%w: tradingHours.openHour %d must be before closeHour %d", ErrInvalidConfig, th.OpenHour, th.CloseHour)
	}
	if th.Venue == "" || th.AssetClass == "" {
		return fmt.Errorf("%w: tradingHours requires venue and assetClass", ErrInvalidConfig)
	}
	if l.Canary.MaxDailyOrders <= 0 {
		return fmt.Errorf("%w: canary.maxDailyOrders must be positive", ErrInvalidConfig)
	}
	if l.Canary.MaxOrderNotional <= 0 {
		return fmt.Errorf("%w: canary.maxOrderNotional must be positive", ErrInvalidConfig)
	}
	return nil
}

func validateMembers(field string, members []string) error {
	for i, m := range members {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: %s: entry at index %d is empty", ErrInvalidConfig, field, i)
		}
	}
	return nil
}

// Warnings lists non-fatal issues an operator should see, such as roles that
// grant nothing or tenants whose allowlist is empty
func Warnings(doc *Document) []string {
	if doc == nil {
		return nil
	}

	var warnings []string
	for _, role := range sortedKeys(doc.Roles) {
		if len(doc.Roles[role]) == 0 {
			warnings = append(warnings, fmt.Sprintf("role %s grants no permissions", role))
		}
	}

	tenants := make([]string, 0, len(doc.Tenants))
	for t := range doc.Tenants {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	for _, t := range tenants {
		td := doc.Tenants[t]
		if td.Accounts != nil && len(*td.Accounts) == 0 {
			warnings = append(warnings, fmt.Sprintf("tenant %s has an empty account allowlist and will be denied every account", t))
		}
		if td.Venues != nil && len(*td.Venues) == 0 {
			warnings = append(warnings, fmt.Sprintf("tenant %s has an empty venue allowlist and will be denied every venue", t))
		}
		if td.Accounts == nil && td.Venues == nil {
			warnings = append(warnings, fmt.Sprintf("tenant %s is listed but unrestricted in both dimensions", t))
		}
	}
	return warnings
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
