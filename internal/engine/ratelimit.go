package engine

import (
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// writeActions get a limiter bucket per action; everything else shares one
// bucket per subject
var writeActions = map[string]struct{}{
	types.ActionOrdersCreate:  {},
	types.ActionOrdersCancel:  {},
	types.ActionOrdersReplace: {},
}

// RateLimitKey derives the key an external limiter should charge for the
// request: tenant:subject:action for order writes, tenant:subject otherwise.
// Segments are not escaped, so a tenant or subject containing ':' could land
// in another principal's bucket. Request.Validate rejects those at the
// transports; direct callers must do the same.
func RateLimitKey(tenant, subject, action string) string {
	if _, ok := writeActions[action]; ok {
		return tenant + ":" + subject + ":" + action
	}
	return tenant + ":" + subject
}
