package governance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emberwake/warden/internal/drift"
	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/platform/id"
	"github.com/emberwake/warden/internal/storage"
)

// TransactionHistoryFlag is the flags-bag path holding the bounded list of
// applied transaction ids, newest last.
const TransactionHistoryFlag = "warden.transactions"

// TransactionHistoryCap bounds the transaction-id history list.
const TransactionHistoryCap = 100

var (
	// ErrNestedBlocked indicates an attempt to open a context while an
	// active context blocks nesting.
	ErrNestedBlocked = apperrors.New(apperrors.CodeGovernanceNestedBlocked, "a governed mutation is already in progress")
	// ErrEmptyOperation indicates apply options without an operation name.
	ErrEmptyOperation = apperrors.New(apperrors.CodeGovernanceEmptyOperation, "operation name is required")
	// ErrEmptySource indicates apply options without a source tag.
	ErrEmptySource = apperrors.New(apperrors.CodeGovernanceEmptySource, "mutation source is required")
)

// ApplyOptions describes one authorized apply.
type ApplyOptions struct {
	// Operation names the logical operation (e.g. "transaction:purchase").
	Operation string
	// Source is the explicit caller tag recorded for auditing.
	Source string
	// SuppressRecalc skips the single post-apply derived-data recomputation;
	// the caller takes responsibility for triggering one later.
	SuppressRecalc bool
	// BlockNested rejects any nested authorized mutation opened while this
	// apply is in flight.
	BlockNested bool
	// TransactionID, when set, is appended to the entity's bounded
	// transaction history for caller-level deduplication.
	TransactionID string
}

// Applied reports the outcome of one authorized apply.
type Applied struct {
	// CreatedIDs maps temporary ids from the plan's create bucket to the
	// real ids the store assigned.
	CreatedIDs map[string]string
	// Mutations is the number of store primitive calls the apply issued.
	Mutations int64
}

// Authority is the single component permitted to open an authorization
// context and drive store writes. Construct one per runtime and thread it
// explicitly; there is no package-level instance.
type Authority struct {
	reader storage.EntityReader
	sink   storage.MutationSink

	mu       sync.Mutex
	inFlight map[string]*AuthContext

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewAuthority creates the single writer over a (typically interceptor
// wrapped) mutation sink.
func NewAuthority(reader storage.EntityReader, sink storage.MutationSink) *Authority {
	return &Authority{
		reader:      reader,
		sink:        sink,
		inFlight:    map[string]*AuthContext{},
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// Apply executes a plan against an entity as one governed operation.
//
// The authorization context is opened before the first primitive call and
// closed in a deferred block, so a failed write never leaves a stale open
// context. Writes are ordered: top-level creates (materializing temporary
// ids), batched field sets on the target, sub-entity deletes, sub-entity
// adds, then temp-targeted field sets on created entities. Derived-data
// recomputation is suppressed for the individual writes and triggered once
// at the end unless the options suppress it entirely.
//
// Apply does not attempt partial compensation: if a store write fails midway
// the raw error is surfaced and callers needing rollback wrap the call in
// SafeMutator.
func (a *Authority) Apply(ctx context.Context, entityID string, p plan.Plan, opts ApplyOptions) (Applied, error) {
	if opts.Operation == "" {
		return Applied{}, ErrEmptyOperation
	}
	if opts.Source == "" {
		return Applied{}, ErrEmptySource
	}

	target, err := a.reader.GetEntity(ctx, entityID)
	if err != nil {
		return Applied{}, err
	}
	if err := p.Validate(target.Kind); err != nil {
		return Applied{}, err
	}

	ac, ctx, err := a.openContext(ctx, entityID, opts)
	if err != nil {
		return Applied{}, err
	}
	defer a.closeContext(entityID, ac)

	ctx = storage.WithRecalcSuppressed(ctx)

	applied := Applied{CreatedIDs: map[string]string{}}

	// Top-level creates first so later buckets can resolve temporary ids.
	for _, kind := range sortedKinds(p.Create) {
		for _, spec := range p.Create[kind] {
			resolved := spec
			resolved.Kind = kind
			realID, err := a.sink.CreateEntity(ctx, resolved)
			if err != nil {
				return applied, err
			}
			applied.CreatedIDs[spec.TemporaryID] = realID
		}
	}

	targetSets, tempSets, err := splitSets(p.Set, applied.CreatedIDs)
	if err != nil {
		return applied, err
	}
	if len(targetSets) > 0 {
		if err := a.sink.SetEntityFields(ctx, entityID, targetSets); err != nil {
			return applied, err
		}
	}

	for _, collection := range sortedKeys(p.Delete) {
		if err := a.sink.DeleteSubEntities(ctx, entityID, collection, p.Delete[collection]); err != nil {
			return applied, err
		}
	}

	for _, collection := range sortedKeys(p.Add) {
		specs := resolveSpecs(p.Add[collection], applied.CreatedIDs)
		if _, err := a.sink.CreateSubEntities(ctx, entityID, collection, specs); err != nil {
			return applied, err
		}
	}

	for _, createdID := range sortedKeys(tempSets) {
		realID, ok := applied.CreatedIDs[createdID]
		if !ok {
			return applied, apperrors.WithMetadata(apperrors.CodePlanUnresolvedTempRef,
				"set path references unknown temporary id",
				map[string]string{"ref": createdID})
		}
		if err := a.sink.SetEntityFields(ctx, realID, tempSets[createdID]); err != nil {
			return applied, err
		}
	}

	// One recalculation per apply instead of one per primitive.
	if !opts.SuppressRecalc {
		if recalc, ok := a.sink.(storage.Recalculator); ok {
			if err := recalc.RecalculateEntity(ctx, entityID); err != nil {
				return applied, err
			}
		}
	}

	if err := a.sealEntity(ctx, entityID, opts.TransactionID); err != nil {
		return applied, err
	}

	applied.Mutations = ac.Mutations()
	return applied, nil
}

// Restore replaces an entity's state from a snapshot through the governed
// path. Used by SafeMutator rollback; the restored state is re-sealed so the
// rollback itself does not read as drift.
func (a *Authority) Restore(ctx context.Context, snap storage.Snapshot, opts ApplyOptions) error {
	if opts.Operation == "" {
		return ErrEmptyOperation
	}
	if opts.Source == "" {
		return ErrEmptySource
	}
	ac, ctx, err := a.openContext(ctx, snap.Entity.ID, opts)
	if err != nil {
		return err
	}
	defer a.closeContext(snap.Entity.ID, ac)

	ctx = storage.WithRecalcSuppressed(ctx)
	if err := a.sink.RestoreEntity(ctx, snap); err != nil {
		return err
	}
	return a.sealEntity(ctx, snap.Entity.ID, "")
}

// RecordDriftBaseline stores the current structural signature for an entity
// that has never been sealed by an authorized mutation.
func (a *Authority) RecordDriftBaseline(ctx context.Context, entityID, source string) error {
	ac, ctx, err := a.openContext(ctx, entityID, ApplyOptions{Operation: "drift:baseline", Source: source})
	if err != nil {
		return err
	}
	defer a.closeContext(entityID, ac)

	ctx = storage.WithRecalcSuppressed(ctx)
	return a.sealEntity(ctx, entityID, "")
}

// sealEntity recomputes the drift signature (and appends the transaction id
// when present) as the final governed write of an apply.
func (a *Authority) sealEntity(ctx context.Context, entityID, transactionID string) error {
	current, err := a.reader.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	signature, err := drift.Signature(current)
	if err != nil {
		return err
	}

	flags := map[string]any{drift.SignatureFlag: signature}
	if transactionID != "" {
		flags[TransactionHistoryFlag] = appendBounded(current.Flags, transactionID)
	}
	return a.sink.SetEntityFlags(ctx, entityID, flags)
}

// openContext creates the authorization context for one apply. At most one
// context may be active per entity; nesting within one call stack is refused
// when the active context blocks it.
func (a *Authority) openContext(ctx context.Context, entityID string, opts ApplyOptions) (*AuthContext, context.Context, error) {
	if active, ok := AuthContextFrom(ctx); ok && active.BlockNested {
		return nil, ctx, apperrors.WithMetadata(apperrors.CodeGovernanceNestedBlocked,
			"a governed mutation is already in progress",
			map[string]string{"operation": active.Operation})
	}

	contextID, err := a.idGenerator()
	if err != nil {
		return nil, ctx, err
	}
	ac := &AuthContext{
		ID:             contextID,
		Operation:      opts.Operation,
		Source:         opts.Source,
		SuppressRecalc: opts.SuppressRecalc,
		BlockNested:    opts.BlockNested,
		OpenedAt:       a.clock().UTC(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, busy := a.inFlight[entityID]; busy {
		return nil, ctx, apperrors.WithMetadata(apperrors.CodeGovernanceNestedBlocked,
			"another apply is in flight for this entity",
			map[string]string{"operation": existing.Operation})
	}
	a.inFlight[entityID] = ac
	return ac, withAuthContext(ctx, ac), nil
}

func (a *Authority) closeContext(entityID string, ac *AuthContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[entityID] == ac {
		delete(a.inFlight, entityID)
	}
}

// splitSets partitions set entries into writes on the target entity and
// writes on created entities addressed by temporary id. Plain string values
// holding temp references are resolved to real ids.
func splitSets(sets map[string]any, created map[string]string) (target map[string]any, temp map[string]map[string]any, err error) {
	target = map[string]any{}
	temp = map[string]map[string]any{}
	for path, value := range sets {
		resolved, err := resolveValue(value, created)
		if err != nil {
			return nil, nil, err
		}
		if tempID, fieldPath, ok := plan.SplitTempPath(path); ok {
			if temp[tempID] == nil {
				temp[tempID] = map[string]any{}
			}
			temp[tempID][fieldPath] = resolved
			continue
		}
		target[path] = resolved
	}
	return target, temp, nil
}

// resolveSpecs resolves temp references inside sub-entity spec data.
func resolveSpecs(specs []plan.SubEntitySpec, created map[string]string) []plan.SubEntitySpec {
	resolved := make([]plan.SubEntitySpec, len(specs))
	for i, spec := range specs {
		data := make(map[string]any, len(spec.Data))
		for key, value := range spec.Data {
			if replacement, err := resolveValue(value, created); err == nil {
				data[key] = replacement
			} else {
				data[key] = value
			}
		}
		resolved[i] = plan.SubEntitySpec{Type: spec.Type, Data: data}
	}
	return resolved
}

func resolveValue(value any, created map[string]string) (any, error) {
	ref, ok := value.(string)
	if !ok || !plan.IsTempRef(ref) {
		return value, nil
	}
	realID, ok := created[plan.TempID(ref)]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodePlanUnresolvedTempRef,
			"value references unknown temporary id", map[string]string{"ref": ref})
	}
	return realID, nil
}

func appendBounded(flags map[string]any, transactionID string) []any {
	var history []any
	if existing, ok := flags[TransactionHistoryFlag].([]any); ok {
		history = append(history, existing...)
	}
	history = append(history, transactionID)
	if len(history) > TransactionHistoryCap {
		history = history[len(history)-TransactionHistoryCap:]
	}
	return history
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedKinds(m map[entity.Kind][]plan.CreateSpec) []entity.Kind {
	kinds := make([]entity.Kind, 0, len(m))
	for kind := range m {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
