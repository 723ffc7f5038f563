package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
)

// In-memory repository fakes. They mirror the SQL-backed semantics closely
// enough for orchestration tests: per-namespace storage, conflict on
// completed periods, and pending-only status transitions.

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]model.Tenant
	active  map[uuid.UUID]bool
}

func newFakeTenantRepo(tenants ...model.Tenant) *fakeTenantRepo {
	r := &fakeTenantRepo{
		tenants: make(map[uuid.UUID]model.Tenant),
		active:  make(map[uuid.UUID]bool),
	}
	for _, t := range tenants {
		r.tenants[t.ID] = t
		r.active[t.ID] = true
	}
	return r
}

func (r *fakeTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	return &t, nil
}

func (r *fakeTenantRepo) ListActive(ctx context.Context) ([]model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Tenant
	for id, t := range r.tenants {
		if r.active[id] {
			out = append(out, t)
		}
	}
	sortTenants(out)
	return out, nil
}

func (r *fakeTenantRepo) ListAll(ctx context.Context) ([]model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Tenant
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sortTenants(out)
	return out, nil
}

func (r *fakeTenantRepo) UpdatePlan(ctx context.Context, id uuid.UUID, plan model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	t.Plan = plan
	r.tenants[id] = t
	return nil
}

func (r *fakeTenantRepo) UpdateProviderCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	t.ProviderCustomerID = customerID
	r.tenants[id] = t
	return nil
}

func (r *fakeTenantRepo) UpdateConnectAccountID(ctx context.Context, id uuid.UUID, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	t.ConnectAccountID = accountID
	r.tenants[id] = t
	return nil
}

func sortTenants(ts []model.Tenant) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Namespace < ts[j].Namespace })
}

type fakeUsageRepo struct {
	mu     sync.Mutex
	events map[string][]model.UsageEvent // by namespace
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{events: make(map[string][]model.UsageEvent)}
}

func (r *fakeUsageRepo) Insert(ctx context.Context, scope model.TenantScope, ev *model.UsageEvent) (*model.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *ev
	out.ID = uuid.New()
	out.TenantID = scope.TenantID
	out.CreatedAt = time.Now().UTC()
	r.events[scope.Namespace] = append(r.events[scope.Namespace], out)
	return &out, nil
}

func (r *fakeUsageRepo) Query(ctx context.Context, scope model.TenantScope, f model.UsageFilter) ([]model.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []model.UsageEvent
	for _, ev := range r.events[scope.Namespace] {
		if ev.RecordedAt.Before(f.Start) || !ev.RecordedAt.Before(f.End) {
			continue
		}
		if f.Metric != "" && ev.Metric != f.Metric {
			continue
		}
		matched = append(matched, ev)
	}
	// Same ordering contract as the SQL repo: recorded_at ASC, id ASC tiebreak.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].RecordedAt.Equal(matched[j].RecordedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].RecordedAt.Before(matched[j].RecordedAt)
	})
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *fakeUsageRepo) Aggregate(ctx context.Context, scope model.TenantScope, metric model.Metric, start, end time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, ev := range r.events[scope.Namespace] {
		if ev.Metric != metric {
			continue
		}
		if ev.RecordedAt.Before(start) || !ev.RecordedAt.Before(end) {
			continue
		}
		total += ev.Quantity
	}
	return total, nil
}

type fakeBillingRepo struct {
	mu      sync.Mutex
	records map[string]map[string]*model.BillingRecord // namespace -> period
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{records: make(map[string]map[string]*model.BillingRecord)}
}

func (r *fakeBillingRepo) get(scope model.TenantScope, period string) *model.BillingRecord {
	ns, ok := r.records[scope.Namespace]
	if !ok {
		return nil
	}
	return ns[period]
}

func (r *fakeBillingRepo) GetForPeriod(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (*model.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.get(scope, period.String())
	if rec == nil {
		return nil, &model.NotFoundError{Resource: "billing record", ID: scope.TenantID.String() + "/" + period.String()}
	}
	out := *rec
	return &out, nil
}

func (r *fakeBillingRepo) UpsertPending(ctx context.Context, scope model.TenantScope, rec *model.BillingRecord) (*model.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[scope.Namespace] == nil {
		r.records[scope.Namespace] = make(map[string]*model.BillingRecord)
	}
	existing := r.get(scope, rec.Period.String())
	if existing != nil {
		if existing.Status == model.BillingStatusCompleted {
			return nil, &model.ConflictError{Resource: "billing record", Reason: "period " + rec.Period.String() + " already completed"}
		}
		existing.Lines = rec.Lines
		existing.TotalCents = rec.TotalCents
		existing.Status = model.BillingStatusPending
		existing.FailureReason = ""
		existing.UpdatedAt = time.Now().UTC()
		out := *existing
		return &out, nil
	}
	stored := *rec
	stored.Status = model.BillingStatusPending
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	r.records[scope.Namespace][rec.Period.String()] = &stored
	out := stored
	return &out, nil
}

func (r *fakeBillingRepo) find(scope model.TenantScope, id uuid.UUID) *model.BillingRecord {
	for _, rec := range r.records[scope.Namespace] {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (r *fakeBillingRepo) MarkCompleted(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(scope, id)
	if rec == nil || rec.Status != model.BillingStatusPending {
		return &model.ConflictError{Resource: "billing record", Reason: "record is not pending"}
	}
	rec.Status = model.BillingStatusCompleted
	rec.ProviderChargeID = providerChargeID
	rec.FailureReason = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeBillingRepo) MarkFailed(ctx context.Context, scope model.TenantScope, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(scope, id)
	if rec == nil || rec.Status != model.BillingStatusPending {
		return nil
	}
	rec.Status = model.BillingStatusFailed
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeBillingRepo) SetProviderCharge(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(scope, id)
	if rec == nil {
		return nil
	}
	rec.ProviderChargeID = providerChargeID
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeBillingRepo) ListStuckPending(ctx context.Context, scope model.TenantScope, cutoff time.Time) ([]model.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BillingRecord
	for _, rec := range r.records[scope.Namespace] {
		if rec.Status == model.BillingStatusPending && rec.UpdatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// seed marks a record directly, bypassing lifecycle checks.
func (r *fakeBillingRepo) seed(scope model.TenantScope, rec model.BillingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[scope.Namespace] == nil {
		r.records[scope.Namespace] = make(map[string]*model.BillingRecord)
	}
	stored := rec
	r.records[scope.Namespace][rec.Period.String()] = &stored
}

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*model.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uuid.UUID]*model.Subscription)}
}

func (r *fakeSubscriptionRepo) Get(ctx context.Context, tenantID uuid.UUID) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[tenantID]
	if !ok {
		return nil, &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	out := *sub
	return &out, nil
}

func (r *fakeSubscriptionRepo) Upsert(ctx context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *sub
	stored.UpdatedAt = time.Now().UTC()
	if existing, ok := r.subs[sub.TenantID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = stored.UpdatedAt
	}
	r.subs[sub.TenantID] = &stored
	return nil
}

func (r *fakeSubscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, tenantID uuid.UUID, cancel bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[tenantID]
	if !ok {
		return &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	sub.CancelAtPeriodEnd = cancel
	return nil
}

func (r *fakeSubscriptionRepo) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status model.SubscriptionStatus, providerSubscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[tenantID]
	if !ok {
		return &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	sub.Status = status
	if providerSubscriptionID != "" {
		sub.ProviderSubscriptionID = providerSubscriptionID
	}
	return nil
}

func testTenant(name string, plan model.Plan) model.Tenant {
	id := uuid.New()
	return model.Tenant{
		ID:                 id,
		Name:               name,
		Plan:               plan,
		Namespace:          "tenant_" + name,
		ProviderCustomerID: "cus_" + name,
		CreatedAt:          time.Now().UTC(),
	}
}
