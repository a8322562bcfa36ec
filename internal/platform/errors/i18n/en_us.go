package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
var messagesEnUS = map[Code]string{
	"UNKNOWN": "An unexpected error occurred.",

	"ENTITY_EMPTY_ID":     "An entity id is required.",
	"ENTITY_INVALID_KIND": "The entity kind {{.kind}} is not recognized.",

	"PLAN_EMPTY_FIELD_PATH":       "A field path is required.",
	"PLAN_INVALID_FIELD_PATH":     "The field path {{.path}} is malformed.",
	"PLAN_UNKNOWN_NAMESPACE":      "The field path {{.path}} uses a namespace not allowed for {{.kind}} entities.",
	"PLAN_EMPTY_COLLECTION":       "A collection name is required.",
	"PLAN_EMPTY_TEMPORARY_ID":     "Created entities require a temporary id.",
	"PLAN_DUPLICATE_TEMPORARY_ID": "The temporary id {{.id}} is used more than once.",
	"PLAN_UNRESOLVED_TEMP_REF":    "The reference {{.ref}} does not match any created entity.",
	"FACTORY_UNKNOWN_ITEM_KIND":   "No factory is registered for item kind {{.kind}}.",
	"FACTORY_COMPILATION_ERROR":   "The item {{.kind}} could not be prepared.",

	"LEDGER_INVALID_COST":       "The cost must be a non-negative amount.",
	"LEDGER_INVALID_BALANCE":    "The entity balance could not be read.",
	"LEDGER_INSUFFICIENT_FUNDS": "Insufficient funds: {{.current}} available, {{.required}} required.",

	"GOVERNANCE_UNAUTHORIZED_MUTATION":   "This change was attempted outside the mutation authority.",
	"GOVERNANCE_NESTED_MUTATION_BLOCKED": "A governed mutation is already in progress.",
	"GOVERNANCE_EMPTY_OPERATION":         "An operation name is required.",
	"GOVERNANCE_EMPTY_SOURCE":            "A mutation source is required.",
	"GOVERNANCE_LOCK_HELD":               "Another operation holds this entity: {{.operation}}.",
	"GOVERNANCE_ROLLBACK_FAILED":         "The entity could not be restored after a failure.",

	"TRANSACTION_INVALID_INPUT":  "The transaction request is malformed.",
	"TRANSACTION_NOT_CONTROLLER": "You do not control this entity.",
	"TRANSACTION_APPLY_FAILED":   "The transaction could not be committed.",

	"AUDIT_FILTER_INVALID": "The timeline filter expression is invalid.",
	"AUDIT_CLEAR_DENIED":   "Clearing the audit trail requires an operator grant.",

	"GRANT_INVALID":  "The operator grant is invalid.",
	"GRANT_EXPIRED":  "The operator grant has expired.",
	"GRANT_MISMATCH": "The operator grant does not match this operation.",

	"NOT_FOUND": "The requested record was not found.",
}
