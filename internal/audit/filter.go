package audit

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/storage"
)

// Matcher evaluates a parsed timeline filter against one audit event.
type Matcher func(storage.AuditEvent) bool

// timelineDeclarations returns the field declarations for timeline filtering.
func timelineDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("event_type", filtering.TypeString),
		filtering.DeclareIdent("actor_id", filtering.TypeString),
		filtering.DeclareIdent("source", filtering.TypeString),
		filtering.DeclareIdent("severity", filtering.TypeString),
		filtering.DeclareIdent("ts", filtering.TypeTimestamp),
	)
}

// ParseTimelineFilter parses an AIP-160 filter expression into a matcher.
// An empty filter matches every event.
func ParseTimelineFilter(filterStr string) (Matcher, error) {
	if strings.TrimSpace(filterStr) == "" {
		return func(storage.AuditEvent) bool { return true }, nil
	}

	decls, err := timelineDeclarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuditFilterInvalid, "parse timeline filter", err)
	}

	matcher, err := translateExpr(parsed.CheckedExpr.Expr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuditFilterInvalid, "translate timeline filter", err)
	}
	return matcher, nil
}

// translateExpr translates a CEL expression into a matcher.
func translateExpr(e *expr.Expr) (Matcher, error) {
	if e == nil {
		return func(storage.AuditEvent) bool { return true }, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (Matcher, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateBinary(call.Args, func(left, right Matcher) Matcher {
			return func(evt storage.AuditEvent) bool { return left(evt) && right(evt) }
		})
	case "_||_", "OR":
		return translateBinary(call.Args, func(left, right Matcher) Matcher {
			return func(evt storage.AuditEvent) bool { return left(evt) || right(evt) }
		})
	case "_==_", "=":
		return translateComparison(call.Args, func(cmp int) bool { return cmp == 0 })
	case "_!=_", "!=":
		return translateComparison(call.Args, func(cmp int) bool { return cmp != 0 })
	case "_<_", "<":
		return translateComparison(call.Args, func(cmp int) bool { return cmp < 0 })
	case "_<=_", "<=":
		return translateComparison(call.Args, func(cmp int) bool { return cmp <= 0 })
	case "_>_", ">":
		return translateComparison(call.Args, func(cmp int) bool { return cmp > 0 })
	case "_>=_", ">=":
		return translateComparison(call.Args, func(cmp int) bool { return cmp >= 0 })
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateBinary(args []*expr.Expr, combine func(left, right Matcher) Matcher) (Matcher, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("binary operator requires 2 arguments")
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return nil, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return nil, err
	}
	return combine(left, right), nil
}

func translateComparison(args []*expr.Expr, accept func(cmp int) bool) (Matcher, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}

	if field == "ts" {
		want, err := extractTimestampValue(args[1])
		if err != nil {
			return nil, err
		}
		return func(evt storage.AuditEvent) bool {
			ts := evt.Timestamp.UTC()
			switch {
			case ts.Before(want):
				return accept(-1)
			case ts.After(want):
				return accept(1)
			}
			return accept(0)
		}, nil
	}

	value, err := extractStringValue(args[1])
	if err != nil {
		return nil, err
	}

	read, err := stringFieldReader(field)
	if err != nil {
		return nil, err
	}
	return func(evt storage.AuditEvent) bool {
		return accept(strings.Compare(read(evt), value))
	}, nil
}

func stringFieldReader(field string) (func(storage.AuditEvent) string, error) {
	switch field {
	case "event_type":
		return func(evt storage.AuditEvent) string { return evt.EventType }, nil
	case "actor_id":
		return func(evt storage.AuditEvent) string { return evt.ActorID }, nil
	case "source":
		return func(evt storage.AuditEvent) string { return evt.Source }, nil
	case "severity":
		return func(evt storage.AuditEvent) string { return evt.Severity }, nil
	}
	return nil, fmt.Errorf("unknown field: %s", field)
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractStringValue(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	strVal, ok := constExpr.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant")
	}
	return strVal.StringValue, nil
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, fmt.Errorf("nil timestamp argument")
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok || call.CallExpr.Function != "timestamp" || len(call.CallExpr.Args) != 1 {
		return time.Time{}, fmt.Errorf("timestamp comparison requires timestamp(\"...\")")
	}
	raw, err := extractStringValue(call.CallExpr.Args[0])
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp format: %s", raw)
		}
	}
	return t.UTC(), nil
}
