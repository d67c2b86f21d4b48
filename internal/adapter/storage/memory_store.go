package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

// MemoryStore is an in-process port.Store. Transactions stage their writes
// and validate every version they were based on at commit, so concurrent
// transactions conflict exactly like they do against the SQL store.
type MemoryStore struct {
	mu         sync.RWMutex
	products   *memTable[*domain.Product]
	clocks     *memTable[*domain.AuctionClock]
	orders     *memTable[*domain.Order]
	orderLines *memTable[*domain.OrderLine]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: newMemTable(domain.EntityProduct,
			func(p *domain.Product) *domain.Product { c := *p; return &c },
			func(p *domain.Product) *domain.Version { return &p.Version }),
		clocks: newMemTable(domain.EntityClock,
			func(c *domain.AuctionClock) *domain.AuctionClock { cp := *c; return &cp },
			func(c *domain.AuctionClock) *domain.Version { return &c.Version }),
		orders: newMemTable(domain.EntityOrder,
			func(o *domain.Order) *domain.Order { c := *o; return &c },
			func(o *domain.Order) *domain.Version { return &o.Version }),
		orderLines: newMemTable(domain.EntityOrderLine,
			func(l *domain.OrderLine) *domain.OrderLine { c := *l; return &c },
			func(l *domain.OrderLine) *domain.Version { return &l.Version }),
	}
}

var _ port.Store = (*MemoryStore)(nil)

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx := &memoryTx{
		store:      s,
		products:   newTxTable(s.products),
		clocks:     newTxTable(s.clocks),
		orders:     newTxTable(s.orders),
		orderLines: newTxTable(s.orderLines),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &domain.StorageUnavailableError{Op: "commit", Err: err}
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := tx.products.validate(); err != nil {
		return err
	}
	if err := tx.clocks.validate(); err != nil {
		return err
	}
	if err := tx.orders.validate(); err != nil {
		return err
	}
	if err := tx.orderLines.validate(); err != nil {
		return err
	}
	for id, w := range tx.orders.writes {
		if w.base != 0 || w.deleted {
			continue
		}
		for _, o := range s.orders.rows {
			if o.BuyerID == w.value.BuyerID && o.AuctionClockID == w.value.AuctionClockID {
				return &domain.ConcurrencyConflictError{Entity: domain.EntityOrder, ID: id}
			}
		}
	}

	tx.products.apply()
	tx.clocks.apply()
	tx.orders.apply()
	tx.orderLines.apply()
	return nil
}

type memTable[T any] struct {
	entity  string
	rows    map[string]T
	clone   func(T) T
	version func(T) *domain.Version

	seq      uint64            // bumped once per commit that writes the table
	modified map[string]uint64 // seq of the last commit that wrote each row
}

func newMemTable[T any](entity string, clone func(T) T, version func(T) *domain.Version) *memTable[T] {
	return &memTable[T]{
		entity:   entity,
		rows:     make(map[string]T),
		clone:    clone,
		version:  version,
		modified: make(map[string]uint64),
	}
}

type pendingWrite[T any] struct {
	value   T
	base    domain.Version // committed version the write is based on, 0 for inserts
	deleted bool
}

type scanRecord[T any] struct {
	match func(T) bool
	seq   uint64
}

type txTable[T any] struct {
	table  *memTable[T]
	writes map[string]*pendingWrite[T]
	reads  map[string]domain.Version
	scans  []scanRecord[T]
}

func newTxTable[T any](t *memTable[T]) *txTable[T] {
	return &txTable[T]{
		table:  t,
		writes: make(map[string]*pendingWrite[T]),
		reads:  make(map[string]domain.Version),
	}
}

// get must be called with the store read lock held.
func (t *txTable[T]) get(id string) (T, bool) {
	var zero T
	if w, ok := t.writes[id]; ok {
		if w.deleted {
			return zero, false
		}
		return t.table.clone(w.value), true
	}
	if v, ok := t.table.rows[id]; ok {
		return t.table.clone(v), true
	}
	return zero, false
}

// getShared is get plus a commit-time check that the committed row still
// has the version that was read.
func (t *txTable[T]) getShared(id string) (T, bool) {
	v, ok := t.get(id)
	if !ok {
		return v, false
	}
	if _, staged := t.writes[id]; !staged {
		if _, seen := t.reads[id]; !seen {
			t.reads[id] = *t.table.version(t.table.rows[id])
		}
	}
	return v, true
}

// scan is list plus a commit-time check that no matching row was written
// by a transaction committed after the scan.
func (t *txTable[T]) scan(match func(T) bool) []T {
	t.scans = append(t.scans, scanRecord[T]{match: match, seq: t.table.seq})
	return t.list(match)
}

func (t *txTable[T]) list(match func(T) bool) []T {
	var res []T
	for id, v := range t.table.rows {
		if _, staged := t.writes[id]; staged {
			continue
		}
		if match(v) {
			res = append(res, t.table.clone(v))
		}
	}
	for _, w := range t.writes {
		if !w.deleted && match(w.value) {
			res = append(res, t.table.clone(w.value))
		}
	}
	return res
}

func (t *txTable[T]) insert(id string, v T) error {
	if _, exists := t.get(id); exists {
		return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id}
	}
	t.writes[id] = &pendingWrite[T]{value: t.table.clone(v)}
	return nil
}

func (t *txTable[T]) update(id string, v T, expected domain.Version, deleted bool) error {
	cur, ok := t.get(id)
	if !ok {
		return &domain.NotFoundError{Entity: t.table.entity, ID: id}
	}
	current := *t.table.version(cur)
	if current != expected {
		return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Expected: expected, Current: current}
	}

	base := current
	if w, staged := t.writes[id]; staged {
		base = w.base
	}
	next := expected.Next()
	if !deleted {
		*t.table.version(v) = next
		v = t.table.clone(v)
	}
	t.writes[id] = &pendingWrite[T]{value: v, base: base, deleted: deleted}
	return nil
}

// validate must be called with the store write lock held.
func (t *txTable[T]) validate() error {
	for id, w := range t.writes {
		committed, ok := t.table.rows[id]
		if w.base == 0 {
			if ok {
				return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Current: *t.table.version(committed)}
			}
			continue
		}
		if !ok {
			return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Expected: w.base}
		}
		if current := *t.table.version(committed); current != w.base {
			return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Expected: w.base, Current: current}
		}
	}
	for id, read := range t.reads {
		committed, ok := t.table.rows[id]
		if !ok {
			return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Expected: read}
		}
		if current := *t.table.version(committed); current != read {
			return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Expected: read, Current: current}
		}
	}
	for _, sc := range t.scans {
		for id, seq := range t.table.modified {
			if seq <= sc.seq {
				continue
			}
			if committed, ok := t.table.rows[id]; ok && sc.match(committed) {
				return &domain.ConcurrencyConflictError{Entity: t.table.entity, ID: id, Current: *t.table.version(committed)}
			}
		}
	}
	return nil
}

func (t *txTable[T]) apply() {
	if len(t.writes) == 0 {
		return
	}
	t.table.seq++
	for id, w := range t.writes {
		t.table.modified[id] = t.table.seq
		if w.deleted {
			delete(t.table.rows, id)
			continue
		}
		t.table.rows[id] = w.value
	}
}

type memoryTx struct {
	store      *MemoryStore
	products   *txTable[*domain.Product]
	clocks     *txTable[*domain.AuctionClock]
	orders     *txTable[*domain.Order]
	orderLines *txTable[*domain.OrderLine]
}

func (tx *memoryTx) rlock() func() {
	tx.store.mu.RLock()
	return tx.store.mu.RUnlock
}

func (tx *memoryTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	defer tx.rlock()()
	p, ok := tx.products.get(id)
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityProduct, ID: id}
	}
	return p, nil
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	defer tx.rlock()()
	return tx.products.insert(p.ID, p)
}

func (tx *memoryTx) UpdateProduct(ctx context.Context, p *domain.Product, expected domain.Version) error {
	defer tx.rlock()()
	return tx.products.update(p.ID, p, expected, false)
}

func (tx *memoryTx) ListProductsByClock(ctx context.Context, clockID string) ([]*domain.Product, error) {
	defer tx.rlock()()
	res := tx.products.list(func(p *domain.Product) bool { return p.AttachedTo(clockID) })
	sort.Slice(res, func(i, j int) bool {
		if res[i].Position != res[j].Position {
			return res[i].Position < res[j].Position
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (tx *memoryTx) GetClock(ctx context.Context, id string) (*domain.AuctionClock, error) {
	defer tx.rlock()()
	c, ok := tx.clocks.get(id)
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityClock, ID: id}
	}
	return c, nil
}

func (tx *memoryTx) GetClockShared(ctx context.Context, id string) (*domain.AuctionClock, error) {
	defer tx.rlock()()
	c, ok := tx.clocks.getShared(id)
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityClock, ID: id}
	}
	return c, nil
}

func (tx *memoryTx) InsertClock(ctx context.Context, c *domain.AuctionClock) error {
	defer tx.rlock()()
	return tx.clocks.insert(c.ID, c)
}

func (tx *memoryTx) UpdateClock(ctx context.Context, c *domain.AuctionClock, expected domain.Version) error {
	defer tx.rlock()()
	return tx.clocks.update(c.ID, c, expected, false)
}

func (tx *memoryTx) DeleteClock(ctx context.Context, id string, expected domain.Version) error {
	defer tx.rlock()()
	return tx.clocks.update(id, nil, expected, true)
}

func (tx *memoryTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	defer tx.rlock()()
	o, ok := tx.orders.get(id)
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrder, ID: id}
	}
	return o, nil
}

func (tx *memoryTx) FindOrder(ctx context.Context, buyerID, clockID string) (*domain.Order, error) {
	defer tx.rlock()()
	res := tx.orders.list(func(o *domain.Order) bool {
		return o.BuyerID == buyerID && o.AuctionClockID == clockID
	})
	if len(res) == 0 {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrder, ID: buyerID + "/" + clockID}
	}
	return res[0], nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	defer tx.rlock()()
	existing := tx.orders.list(func(e *domain.Order) bool {
		return e.BuyerID == o.BuyerID && e.AuctionClockID == o.AuctionClockID
	})
	if len(existing) > 0 {
		return &domain.ConcurrencyConflictError{Entity: domain.EntityOrder, ID: existing[0].ID, Current: existing[0].Version}
	}
	return tx.orders.insert(o.ID, o)
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, o *domain.Order, expected domain.Version) error {
	defer tx.rlock()()
	return tx.orders.update(o.ID, o, expected, false)
}

func (tx *memoryTx) ListOrdersByClock(ctx context.Context, clockID string) ([]*domain.Order, error) {
	defer tx.rlock()()
	res := tx.orders.scan(func(o *domain.Order) bool { return o.AuctionClockID == clockID })
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (tx *memoryTx) GetOrderLine(ctx context.Context, id string) (*domain.OrderLine, error) {
	defer tx.rlock()()
	l, ok := tx.orderLines.get(id)
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityOrderLine, ID: id}
	}
	return l, nil
}

func (tx *memoryTx) InsertOrderLine(ctx context.Context, l *domain.OrderLine) error {
	defer tx.rlock()()
	return tx.orderLines.insert(l.ID, l)
}

func (tx *memoryTx) UpdateOrderLine(ctx context.Context, l *domain.OrderLine, expected domain.Version) error {
	defer tx.rlock()()
	return tx.orderLines.update(l.ID, l, expected, false)
}

func (tx *memoryTx) ListOrderLines(ctx context.Context, orderID string) ([]*domain.OrderLine, error) {
	defer tx.rlock()()
	res := tx.orderLines.list(func(l *domain.OrderLine) bool { return l.OrderID == orderID })
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}
