package service_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/audit"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/outbox"
	"github.com/capital-cycle-ledger/internal/domain/plan"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/domain/task"
	"github.com/capital-cycle-ledger/internal/settlement/components"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory database. Transactions run one at a time;
// ExecuteTx snapshots every table and restores it when fn fails.
type memStore struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	accounts  map[uuid.UUID]account.Account
	tasks     map[uuid.UUID]task.Task
	addresses map[uuid.UUID]pool.Address
	entries   []ledger.Entry
	outbox    []outbox.Message
	settings  map[string]decimal.Decimal
	plans     map[string]plan.Plan
	lastEntry time.Time
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  map[uuid.UUID]account.Account{},
		tasks:     map[uuid.UUID]task.Task{},
		addresses: map[uuid.UUID]pool.Address{},
		settings:  map[string]decimal.Decimal{},
		plans:     map[string]plan.Plan{},
	}
}

type memSnapshot struct {
	accounts  map[uuid.UUID]account.Account
	tasks     map[uuid.UUID]task.Task
	addresses map[uuid.UUID]pool.Address
	entries   []ledger.Entry
	outbox    []outbox.Message
	settings  map[string]decimal.Decimal
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := memSnapshot{
		accounts:  cloneMap(s.accounts),
		tasks:     cloneMap(s.tasks),
		addresses: cloneMap(s.addresses),
		entries:   append([]ledger.Entry(nil), s.entries...),
		outbox:    append([]outbox.Message(nil), s.outbox...),
		settings:  cloneMap(s.settings),
	}
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.accounts, s.tasks, s.addresses = snap.accounts, snap.tasks, snap.addresses
		s.entries, s.outbox, s.settings = snap.entries, snap.outbox, snap.settings
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) putAccount(a *account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
}

func (s *memStore) account(id uuid.UUID) account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) putTask(t *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
}

func (s *memStore) task(id uuid.UUID) task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

func (s *memStore) putAddress(a *pool.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.ID] = *a
}

func (s *memStore) address(id uuid.UUID) pool.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addresses[id]
}

// addEntry seeds a ledger entry at the given time.
func (s *memStore) addEntry(e *ledger.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	if e.CreatedAt.After(s.lastEntry) {
		s.lastEntry = e.CreatedAt
	}
}

func (s *memStore) entriesFor(accountID uuid.UUID) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) outboxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, a *account.Account) error {
	r.s.putAccount(a)
	return nil
}

func (r memAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	return &a, nil
}

func (r memAccounts) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return r.GetByID(ctx, id)
}

func (r memAccounts) Update(_ context.Context, a *account.Account) error {
	if _, err := a.CheckInvariants(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		return account.ErrAccountNotFound{AccountID: a.ID}
	}
	a.Version++
	r.s.accounts[a.ID] = *a
	return nil
}

func (r memAccounts) HasDeposits(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.AccountID == id && e.Kind == ledger.KindDeposit {
			return true, nil
		}
	}
	return false, nil
}

func (r memAccounts) list(after uuid.UUID, limit int, keep func(account.Account) bool) []uuid.UUID {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range r.s.accounts {
		if keep(a) && id.String() > after.String() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (r memAccounts) ListCommissionCandidates(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	return r.list(after, limit, func(a account.Account) bool {
		return a.PlanName != nil && !a.IsBlocked && a.Capital.IsPositive()
	}), nil
}

func (r memAccounts) ListAccrualCandidates(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	return r.list(after, limit, func(a account.Account) bool {
		return !a.IsBlocked && !a.CycleCompleted && a.Capital.IsPositive()
	}), nil
}

func (r memAccounts) WithTx(pgx.Tx) account.Repository { return r }

type memLedger struct{ s *memStore }

func (r memLedger) Create(_ context.Context, e *ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !e.CreatedAt.After(r.s.lastEntry) {
		e.CreatedAt = r.s.lastEntry.Add(time.Microsecond)
	}
	r.s.lastEntry = e.CreatedAt
	r.s.entries = append(r.s.entries, *e)
	return nil
}

func (r memLedger) LatestCutoff(_ context.Context, accountID uuid.UUID) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *time.Time
	for _, e := range r.s.entries {
		if e.AccountID == accountID && e.IsCutoff() && (latest == nil || e.CreatedAt.After(*latest)) {
			at := e.CreatedAt
			latest = &at
		}
	}
	return latest, nil
}

func (r memLedger) SumSince(_ context.Context, accountID uuid.UUID, kinds []ledger.Kind, tags []ledger.Tag, cutoff *time.Time) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, e := range r.s.entries {
		if e.AccountID != accountID || !containsKind(kinds, e.Kind) {
			continue
		}
		if len(tags) > 0 && !containsTag(tags, e.Tag) {
			continue
		}
		if cutoff != nil && !e.CreatedAt.After(*cutoff) {
			continue
		}
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

func (r memLedger) CountByKind(_ context.Context, accountID uuid.UUID, kind ledger.Kind) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.entries {
		if e.AccountID == accountID && e.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (r memLedger) HasTag(_ context.Context, accountID uuid.UUID, tag ledger.Tag) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.AccountID == accountID && e.Tag == tag {
			return true, nil
		}
	}
	return false, nil
}

func (r memLedger) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range r.s.entriesFor(accountID) {
		e := e
		out = append(out, &e)
	}
	return page(out, limit, offset), nil
}

func (r memLedger) WithTx(pgx.Tx) ledger.Repository { return r }

func containsKind(kinds []ledger.Kind, k ledger.Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

func containsTag(tags []ledger.Tag, t ledger.Tag) bool {
	for _, c := range tags {
		if c == t {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type memTasks struct{ s *memStore }

func (r memTasks) Create(_ context.Context, t *task.Task) error {
	r.s.putTask(t)
	return nil
}

func (r memTasks) GetByID(_ context.Context, id uuid.UUID) (*task.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound{TaskID: id}
	}
	return &t, nil
}

func (r memTasks) LockForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return r.GetByID(ctx, id)
}

func (r memTasks) Update(_ context.Context, t *task.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return task.ErrTaskNotFound{TaskID: t.ID}
	}
	r.s.tasks[t.ID] = *t
	return nil
}

func (r memTasks) filter(keep func(task.Task) bool) []*task.Task {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*task.Task
	for _, t := range r.s.tasks {
		if keep(t) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memTasks) ListOpenByAddress(_ context.Context, addressID uuid.UUID, exclude uuid.UUID) ([]*task.Task, error) {
	return r.filter(func(t task.Task) bool {
		return t.ID != exclude && t.Status.IsOpen() && t.AssignedAddressID != nil && *t.AssignedAddressID == addressID
	}), nil
}

func (r memTasks) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*task.Task, error) {
	return page(r.filter(func(t task.Task) bool { return t.AccountID == accountID }), limit, offset), nil
}

func (r memTasks) ListByStatus(_ context.Context, status task.Status, limit, offset int) ([]*task.Task, error) {
	return page(r.filter(func(t task.Task) bool { return t.Status == status }), limit, offset), nil
}

func (r memTasks) WithTx(pgx.Tx) task.Repository { return r }

type memAddresses struct{ s *memStore }

func (r memAddresses) Import(_ context.Context, addresses []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := map[string]bool{}
	for _, a := range r.s.addresses {
		existing[a.Address] = true
	}
	var n int64
	for i, a := range addresses {
		if existing[a] {
			continue
		}
		existing[a] = true
		id := uuid.New()
		r.s.addresses[id] = pool.Address{
			ID:        id,
			Address:   a,
			Status:    pool.StatusAvailable,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Microsecond),
		}
		n++
	}
	return n, nil
}

func (r memAddresses) GetByID(_ context.Context, id uuid.UUID) (*pool.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.addresses[id]
	if !ok {
		return nil, pool.ErrAddressNotFound{AddressID: id}
	}
	return &a, nil
}

func (r memAddresses) LockForUpdate(ctx context.Context, id uuid.UUID) (*pool.Address, error) {
	return r.GetByID(ctx, id)
}

func (r memAddresses) LockOpenReservation(_ context.Context, accountID uuid.UUID) (*pool.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.addresses {
		if a.Status == pool.StatusReserved && a.ReservedByAccountID != nil && *a.ReservedByAccountID == accountID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r memAddresses) LockOldestAvailable(_ context.Context) (*pool.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *pool.Address
	for _, a := range r.s.addresses {
		if a.Status != pool.StatusAvailable {
			continue
		}
		if oldest == nil || a.CreatedAt.Before(oldest.CreatedAt) {
			a := a
			oldest = &a
		}
	}
	if oldest == nil {
		return nil, shared.ErrPoolExhausted
	}
	return oldest, nil
}

func (r memAddresses) Update(_ context.Context, a *pool.Address) error {
	r.s.putAddress(a)
	return nil
}

func (r memAddresses) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.addresses[id]; !ok {
		return pool.ErrAddressNotFound{AddressID: id}
	}
	delete(r.s.addresses, id)
	return nil
}

func (r memAddresses) RecycleExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.addresses {
		if a.Status != pool.StatusReserved || a.ReservedAt == nil || !a.ReservedAt.Before(cutoff) {
			continue
		}
		completed := false
		for _, t := range r.s.tasks {
			if t.Status == task.StatusCompleted && t.AssignedAddressID != nil && *t.AssignedAddressID == id {
				completed = true
			}
		}
		if completed {
			continue
		}
		_, _ = a.Release()
		r.s.addresses[id] = a
		n++
	}
	return n, nil
}

func (r memAddresses) Inventory(_ context.Context) (pool.Inventory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var inv pool.Inventory
	for _, a := range r.s.addresses {
		switch a.Status {
		case pool.StatusAvailable:
			inv.Available++
		case pool.StatusReserved:
			inv.Reserved++
		case pool.StatusUsed:
			inv.Used++
		}
	}
	return inv, nil
}

func (r memAddresses) WithTx(pgx.Tx) pool.Repository { return r }

type memOutbox struct{ s *memStore }

func (r memOutbox) Create(_ context.Context, m *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = int64(len(r.s.outbox) + 1)
	r.s.outbox = append(r.s.outbox, *m)
	return nil
}

func (r memOutbox) GetPending(context.Context, int) ([]*outbox.Message, error) { return nil, nil }

func (r memOutbox) UpdateStatus(context.Context, int64, shared.OutboxStatus) error { return nil }

func (r memOutbox) IncrementAttempts(context.Context, int64) error { return nil }

func (r memOutbox) WithTx(pgx.Tx) outbox.Repository { return r }

type memSettings struct{ s *memStore }

func (r memSettings) GetDecimal(_ context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v, ok := r.s.settings[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (r memSettings) SetDecimal(_ context.Context, key string, value decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings[key] = value
	return nil
}

func (r memSettings) WithTx(pgx.Tx) settings.Repository { return r }

type memPlans struct{ s *memStore }

func (r memPlans) GetByName(_ context.Context, name string) (*plan.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[name]
	if !ok {
		return nil, plan.ErrPlanNotFound{Name: name}
	}
	return &p, nil
}

func (r memPlans) List(context.Context) ([]*plan.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*plan.Plan
	for _, p := range r.s.plans {
		p := p
		out = append(out, &p)
	}
	return out, nil
}

func (r memPlans) WithTx(pgx.Tx) plan.Repository { return r }

type memAuditSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *memAuditSink) Record(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memAuditSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

type memNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (n *memNotifier) NotifyLowInventory(_ context.Context, available int64, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, available)
	return nil
}

var testReferralConfig = config.ReferralConfig{
	DefaultCommissionRate: decimal.RequireFromString("0.10"),
	BasePassiveRate:       decimal.RequireFromString("0.03"),
	ElevatedPassiveRate:   decimal.RequireFromString("0.05"),
}

// harness wires the real components over the in-memory store.
type harness struct {
	store      *memStore
	sink       *memAuditSink
	notifier   *memNotifier
	settlement *service.SettlementService
	tasks      *service.TaskService
	pools      *service.PoolService
	engine     *service.EngineService
	batch      *service.BatchRunner
}

func newHarness(pick service.ReturnPicker) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	sink := &memAuditSink{}
	notifier := &memNotifier{}

	accountRepo := memAccounts{store}
	ledgerRepo := memLedger{store}
	taskRepo := memTasks{store}
	addressRepo := memAddresses{store}

	accounts := components.NewAccountManager(accountRepo, logger)
	ledgerWriter := components.NewLedgerWriter(ledgerRepo, memOutbox{store}, logger)
	cycleAcc := components.NewCycleAccountant(ledgerRepo)
	allocator := components.NewAddressAllocator(addressRepo, taskRepo, logger)
	referrals := components.NewReferralRewarder(accountRepo, ledgerRepo, memSettings{store}, testReferralConfig, logger)
	auditRecorder := components.NewAuditRecorder(sink, logger)
	watcher := components.NewInventoryWatcher(addressRepo, notifier, 2, logger)
	validator := components.NewRequestValidator(logger)

	h := &harness{store: store, sink: sink, notifier: notifier}
	h.settlement = service.NewSettlementService(store, taskRepo, accounts, ledgerWriter, cycleAcc, allocator, referrals, auditRecorder, watcher, logger)
	h.tasks = service.NewTaskService(store, taskRepo, accountRepo, accounts, ledgerWriter, cycleAcc, allocator, validator, auditRecorder, watcher, logger)
	h.pools = service.NewPoolService(store, addressRepo, taskRepo, allocator, auditRecorder, watcher, logger)
	h.engine = service.NewEngineService(store, memPlans{store}, accounts, ledgerWriter, cycleAcc, auditRecorder, 30, pick, logger)

	batch, err := service.NewBatchRunner(accountRepo, h.engine, h.pools, service.BatchConfig{
		WorkerPoolSize:          4,
		PageSize:                2,
		ReservationTimeoutHours: 24,
	}, logger)
	if err != nil {
		panic(err)
	}
	h.batch = batch
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) seedAccount(capital, balance string) *account.Account {
	acc := account.NewAccount(nil)
	acc.Capital = dec(capital)
	acc.Balance = dec(balance)
	h.store.putAccount(acc)
	return acc
}

func (h *harness) seedTask(accountID uuid.UUID, kind task.Kind, amount string) *task.Task {
	t := task.NewTask(accountID, kind, dec(amount))
	h.store.putTask(t)
	return t
}

var (
	secondTier = task.Reviewer{ID: uuid.New(), Tier: task.TierSecond}
	firstTier  = task.Reviewer{ID: uuid.New(), Tier: task.TierFirst}
)
