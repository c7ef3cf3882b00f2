package server

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// requestFromStruct reads a Request from its Struct form. Context values keep
// their Struct types: numbers arrive as float64.
func requestFromStruct(s *structpb.Struct) (*types.Request, error) {
	if s == nil {
		return nil, fmt.Errorf("request cannot be empty")
	}

	req := &types.Request{}
	var err error
	if req.Subject, err = stringField(s, "subject"); err != nil {
		return nil, err
	}
	if req.Action, err = stringField(s, "action"); err != nil {
		return nil, err
	}
	if req.Resource, err = stringField(s, "resource"); err != nil {
		return nil, err
	}
	if req.Tenant, err = stringField(s, "tenant"); err != nil {
		return nil, err
	}

	if v, ok := s.GetFields()["roles"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
		case *structpb.Value_ListValue:
			for i, item := range k.ListValue.GetValues() {
				role, ok := item.GetKind().(*structpb.Value_StringValue)
				if !ok {
					return nil, fmt.Errorf("roles[%d] must be a string", i)
				}
				req.Roles = append(req.Roles, role.StringValue)
			}
		default:
			return nil, fmt.Errorf("roles must be a list of strings")
		}
	}

	if v, ok := s.GetFields()["context"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
		case *structpb.Value_StructValue:
			req.Context = k.StructValue.AsMap()
		default:
			return nil, fmt.Errorf("context must be an object")
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	default:
		return "", fmt.Errorf("%s must be a string", name)
	}
}

// decisionToStruct renders a Decision with its JSON field names.
// timestamp_ns is a decimal string, as int64 is in proto3 JSON, because a
// Struct number is a double and would lose nanosecond precision.
func decisionToStruct(d *types.Decision) *structpb.Struct {
	return &structpb.Struct{Fields: decisionFields(d)}
}

func decisionFields(d *types.Decision) map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"allow":          structpb.NewBoolValue(d.Allow),
		"reason":         structpb.NewStringValue(d.Reason),
		"rate_limit_key": structpb.NewStringValue(d.RateLimitKey),
		"audit": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"sub":          structpb.NewStringValue(d.Audit.Subject),
			"action":       structpb.NewStringValue(d.Audit.Action),
			"resource":     structpb.NewStringValue(d.Audit.Resource),
			"tenant":       structpb.NewStringValue(d.Audit.Tenant),
			"allow":        structpb.NewBoolValue(d.Audit.Allow),
			"reason":       structpb.NewStringValue(d.Audit.Reason),
			"timestamp_ns": structpb.NewStringValue(strconv.FormatInt(d.Audit.TimestampNs, 10)),
		}}),
	}
}

func explainToStruct(d *types.Decision, checks []engine.CheckResult) *structpb.Struct {
	list := make([]*structpb.Value, 0, len(checks))
	for _, c := range checks {
		list = append(list, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name":   structpb.NewStringValue(c.Name),
			"ok":     structpb.NewBoolValue(c.OK),
			"code":   structpb.NewStringValue(string(c.Code)),
			"detail": structpb.NewStringValue(c.Detail),
		}}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"decision": structpb.NewStructValue(decisionToStruct(d)),
		"code":     structpb.NewStringValue(string(d.Code)),
		"checks":   structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

func errorStruct(err error) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"error": structpb.NewStringValue(err.Error()),
	}}
}
