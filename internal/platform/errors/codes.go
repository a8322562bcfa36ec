package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Entity errors
	CodeEntityEmptyID     Code = "ENTITY_EMPTY_ID"
	CodeEntityInvalidKind Code = "ENTITY_INVALID_KIND"

	// Plan errors
	CodePlanEmptyFieldPath      Code = "PLAN_EMPTY_FIELD_PATH"
	CodePlanInvalidFieldPath    Code = "PLAN_INVALID_FIELD_PATH"
	CodePlanUnknownNamespace    Code = "PLAN_UNKNOWN_NAMESPACE"
	CodePlanEmptyCollection     Code = "PLAN_EMPTY_COLLECTION"
	CodePlanEmptyTemporaryID    Code = "PLAN_EMPTY_TEMPORARY_ID"
	CodePlanDuplicateTempID     Code = "PLAN_DUPLICATE_TEMPORARY_ID"
	CodePlanUnresolvedTempRef   Code = "PLAN_UNRESOLVED_TEMP_REF"
	CodeFactoryUnknownItemKind  Code = "FACTORY_UNKNOWN_ITEM_KIND"
	CodeFactoryCompilationError Code = "FACTORY_COMPILATION_ERROR"

	// Ledger errors
	CodeLedgerInvalidCost       Code = "LEDGER_INVALID_COST"
	CodeLedgerInvalidBalance    Code = "LEDGER_INVALID_BALANCE"
	CodeLedgerInsufficientFunds Code = "LEDGER_INSUFFICIENT_FUNDS"

	// Governance errors
	CodeGovernanceUnauthorizedMutation Code = "GOVERNANCE_UNAUTHORIZED_MUTATION"
	CodeGovernanceNestedBlocked        Code = "GOVERNANCE_NESTED_MUTATION_BLOCKED"
	CodeGovernanceEmptyOperation       Code = "GOVERNANCE_EMPTY_OPERATION"
	CodeGovernanceEmptySource          Code = "GOVERNANCE_EMPTY_SOURCE"
	CodeGovernanceLockHeld             Code = "GOVERNANCE_LOCK_HELD"
	CodeGovernanceRollbackFailed       Code = "GOVERNANCE_ROLLBACK_FAILED"

	// Transaction errors
	CodeTransactionInvalidInput  Code = "TRANSACTION_INVALID_INPUT"
	CodeTransactionNotController Code = "TRANSACTION_NOT_CONTROLLER"
	CodeTransactionApplyFailed   Code = "TRANSACTION_APPLY_FAILED"

	// Audit errors
	CodeAuditFilterInvalid Code = "AUDIT_FILTER_INVALID"
	CodeAuditClearDenied   Code = "AUDIT_CLEAR_DENIED"

	// Operator grant errors
	CodeGrantInvalid  Code = "GRANT_INVALID"
	CodeGrantExpired  Code = "GRANT_EXPIRED"
	CodeGrantMismatch Code = "GRANT_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeEntityEmptyID,
		CodeEntityInvalidKind,
		CodePlanEmptyFieldPath,
		CodePlanInvalidFieldPath,
		CodePlanUnknownNamespace,
		CodePlanEmptyCollection,
		CodePlanEmptyTemporaryID,
		CodePlanDuplicateTempID,
		CodeFactoryUnknownItemKind,
		CodeLedgerInvalidCost,
		CodeLedgerInvalidBalance,
		CodeTransactionInvalidInput,
		CodeAuditFilterInvalid,
		CodeGovernanceEmptyOperation,
		CodeGovernanceEmptySource:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeLedgerInsufficientFunds,
		CodeGovernanceLockHeld,
		CodeGovernanceNestedBlocked,
		CodePlanUnresolvedTempRef:
		return codes.FailedPrecondition

	// PermissionDenied - caller lacks rights
	case CodeGovernanceUnauthorizedMutation,
		CodeTransactionNotController,
		CodeAuditClearDenied,
		CodeGrantInvalid,
		CodeGrantExpired,
		CodeGrantMismatch:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound
	}

	// Internal - operation failed mid-flight or unmapped
	return codes.Internal
}
