package service_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/repository"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

// memStore is an in-memory stand-in for PostgreSQL. Transactions are
// serialized by a mutex and rolled back by restoring a snapshot.
type memStore struct {
	mu sync.Mutex

	products map[int64]model.Product
	borrows  map[int64]model.BorrowRecord
	returns  []model.ReturnRecord
	outbox   []repository.CreateOutboxMsgParams

	nextBorrowID int64
	txBegun      int
	txCommitted  int
	queries      int

	// failOn makes the named repository method fail with errInjected.
	failOn string
}

var errInjected = errors.New("injected store failure")

func newMemStore(products ...model.Product) *memStore {
	s := &memStore{
		products:     map[int64]model.Product{},
		borrows:      map[int64]model.BorrowRecord{},
		nextBorrowID: 1,
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

type memSnapshot struct {
	products     map[int64]model.Product
	borrows      map[int64]model.BorrowRecord
	returns      []model.ReturnRecord
	outbox       []repository.CreateOutboxMsgParams
	nextBorrowID int64
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		products:     maps.Clone(s.products),
		borrows:      maps.Clone(s.borrows),
		returns:      slices.Clone(s.returns),
		outbox:       slices.Clone(s.outbox),
		nextBorrowID: s.nextBorrowID,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.borrows = snap.borrows
	s.returns = snap.returns
	s.outbox = snap.outbox
	s.nextBorrowID = snap.nextBorrowID
}

func (s *memStore) fail(method string) error {
	s.queries++
	if s.failOn == method {
		return errInjected
	}
	return nil
}

func (s *memStore) product(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) borrow(id int64) model.BorrowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.borrows[id]
}

func (s *memStore) state() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// memDB implements db.DB over memStore. Only WithTx is meaningful.
type memDB struct {
	store *memStore
	inTx  bool
}

var _ db.DB = (*memDB)(nil)

func (d *memDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("memDB: Exec not supported")
}

func (d *memDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("memDB: Query not supported")
}

func (d *memDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("memDB: QueryRow not supported")
}

func (d *memDB) WithTx(ctx context.Context, txFunc func(db.DB) error) error {
	if d.inTx {
		return txFunc(d)
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	d.store.txBegun++
	snap := d.store.snapshot()
	if err := txFunc(&memDB{store: d.store, inTx: true}); err != nil {
		d.store.restore(snap)
		return err
	}
	d.store.txCommitted++
	return nil
}

type memProductRepo struct{ store *memStore }

func (r memProductRepo) WithDB(db.DB) repository.ProductRepository { return r }

func (r memProductRepo) ListAllProducts(context.Context) ([]model.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.fail("ListAllProducts"); err != nil {
		return nil, err
	}

	products := slices.Collect(maps.Values(r.store.products))
	slices.SortFunc(products, func(a, b model.Product) int { return strings.Compare(a.Name, b.Name) })
	return products, nil
}

func (r memProductRepo) GetProductForUpdate(_ context.Context, productID int64) (model.Product, error) {
	if err := r.store.fail("GetProductForUpdate"); err != nil {
		return model.Product{}, err
	}
	p, ok := r.store.products[productID]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (r memProductRepo) AdjustStock(_ context.Context, productID int64, delta int64) (int64, error) {
	if err := r.store.fail("AdjustStock"); err != nil {
		return 0, err
	}
	p, ok := r.store.products[productID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	p.CurrentStock += delta
	if p.CurrentStock < 0 {
		return 0, errors.New("check constraint violated: current_stock >= 0")
	}
	r.store.products[productID] = p
	return p.CurrentStock, nil
}

type memBorrowRecordRepo struct{ store *memStore }

func (r memBorrowRecordRepo) WithDB(db.DB) repository.BorrowRecordRepository { return r }

func (r memBorrowRecordRepo) CreateBorrowRecord(_ context.Context, params repository.CreateBorrowRecordParams) (model.BorrowRecord, error) {
	if err := r.store.fail("CreateBorrowRecord"); err != nil {
		return model.BorrowRecord{}, err
	}
	rec := model.BorrowRecord{
		ID:               r.store.nextBorrowID,
		ProductID:        params.ProductID,
		UserID:           params.UserID,
		QuantityBorrowed: params.Quantity,
		Status:           model.BorrowStatusOpen,
		BorrowedAt:       time.Now(),
	}
	r.store.nextBorrowID++
	r.store.borrows[rec.ID] = rec
	return rec, nil
}

func (r memBorrowRecordRepo) GetBorrowRecordForUpdate(_ context.Context, borrowID int64) (model.BorrowRecord, error) {
	if err := r.store.fail("GetBorrowRecordForUpdate"); err != nil {
		return model.BorrowRecord{}, err
	}
	rec, ok := r.store.borrows[borrowID]
	if !ok {
		return model.BorrowRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (r memBorrowRecordRepo) MarkReturned(_ context.Context, borrowID int64) error {
	if err := r.store.fail("MarkReturned"); err != nil {
		return err
	}
	rec, ok := r.store.borrows[borrowID]
	if !ok || rec.Status != model.BorrowStatusOpen {
		return repository.ErrNotFound
	}
	rec.Status = model.BorrowStatusReturned
	r.store.borrows[borrowID] = rec
	return nil
}

type memReturnRecordRepo struct{ store *memStore }

func (r memReturnRecordRepo) WithDB(db.DB) repository.ReturnRecordRepository { return r }

func (r memReturnRecordRepo) CreateReturnRecord(_ context.Context, params repository.CreateReturnRecordParams) (model.ReturnRecord, error) {
	if err := r.store.fail("CreateReturnRecord"); err != nil {
		return model.ReturnRecord{}, err
	}
	rec := model.ReturnRecord{
		ID:               int64(len(r.store.returns) + 1),
		BorrowID:         params.BorrowID,
		QuantityReturned: params.QuantityReturned,
		ReturnedByUserID: params.ReturnedByUserID,
		ReturnedAt:       time.Now(),
	}
	r.store.returns = append(r.store.returns, rec)
	return rec, nil
}

func (r memReturnRecordRepo) ListReturnRecords(_ context.Context, borrowID int64) ([]model.ReturnRecord, error) {
	var out []model.ReturnRecord
	for _, rec := range r.store.returns {
		if rec.BorrowID == borrowID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memOutboxMsgRepo struct{ store *memStore }

func (r memOutboxMsgRepo) WithDB(db.DB) repository.OutboxMsgRepository { return r }

func (r memOutboxMsgRepo) CreateOutboxMsg(_ context.Context, params repository.CreateOutboxMsgParams) error {
	if err := r.store.fail("CreateOutboxMsg"); err != nil {
		return err
	}
	r.store.outbox = append(r.store.outbox, params)
	return nil
}

func (r memOutboxMsgRepo) ListUnprocessedOutboxMsgs(context.Context, repository.ListUnprocessedOutboxMsgsParams) ([]repository.ListUnprocessedOutboxMsgsResult, error) {
	return nil, nil
}

func (r memOutboxMsgRepo) BulkUpdateOutboxMsgs(context.Context, repository.BulkUpdateOutboxMsgsParams) error {
	return nil
}
