package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/OproPay/internal/pkg/errtrack"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeLMS struct {
	mu    sync.Mutex
	calls []lmsPush
	err   error
}

func (f *fakeLMS) Enroll(ctx context.Context, courseRef, username, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, lmsPush{CourseRef: courseRef, Username: username, Mode: mode})
	return f.err
}

func (f *fakeLMS) Calls() []lmsPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lmsPush(nil), f.calls...)
}

type fakePromoSource struct {
	files map[string][]string
	err   error
}

func (f *fakePromoSource) ReadLine(ctx context.Context, file string, line int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	lines := f.files[file]
	if line < 0 || line >= len(lines) {
		return "", fmt.Errorf("%s has no line %d", file, line)
	}
	return lines[line], nil
}

type fakeNotifier struct {
	name  string
	err   error
	panic bool
	mu    sync.Mutex
	got   []*Confirmation
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(ctx context.Context, c *Confirmation) error {
	if f.panic {
		panic("notifier exploded")
	}
	f.mu.Lock()
	f.got = append(f.got, c)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) Received() []*Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Confirmation(nil), f.got...)
}

type fakeDirectory struct {
	identity *Identity
	err      error
}

func (f *fakeDirectory) CreateOrFetchUser(ctx context.Context, firstName, email string) (*Identity, error) {
	return f.identity, f.err
}

type harness struct {
	t          *testing.T
	db         *gorm.DB
	repos      *repository.Repositories
	store      Store
	builder    *Builder
	checkout   *Checkout
	reconciler *Reconciler
	lms        *fakeLMS
	promos     *fakePromoSource
	reporter   *errtrack.Recorder
	notifier   *fakeNotifier
	directory  *fakeDirectory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	store := NewStore(db)
	builder := NewBuilder(store)
	e := &harness{
		t:         t,
		db:        db,
		repos:     repos,
		store:     store,
		builder:   builder,
		lms:       &fakeLMS{},
		promos:    &fakePromoSource{files: map[string][]string{}},
		reporter:  &errtrack.Recorder{},
		notifier:  &fakeNotifier{name: "test"},
		directory: &fakeDirectory{},
	}
	e.checkout = NewCheckout(repos, promocode.NewEngine(repos.PromoCode, repos.Catalog), builder, store, e.directory, nil)
	e.reconciler = NewReconciler(ReconcilerDeps{
		Store:     store,
		Repos:     repos,
		LMS:       e.lms,
		Promos:    e.promos,
		Reporter:  e.reporter,
		Notifiers: []Notifier{e.notifier},
	})
	return e
}

// place quotes and persists an order, then marks it paid.
func (e *harness) placePaid(in PlaceInput) *models.Payment {
	e.t.Helper()
	in.Create = true
	order, _, err := e.checkout.Place(context.Background(), in)
	require.NoError(e.t, err)
	return e.pay(order.Payment.OrderNumber)
}

func (e *harness) pay(orderNumber string) *models.Payment {
	e.t.Helper()
	p, err := e.store.GetPayment(orderNumber)
	require.NoError(e.t, err)
	require.NoError(e.t, e.store.MarkPaid(p.ID, nil, p.CreatedAt))
	p, err = e.store.GetPayment(orderNumber)
	require.NoError(e.t, err)
	return p
}

func (e *harness) count(model interface{}, query string, args ...interface{}) int64 {
	e.t.Helper()
	return dbtest.Count(e.t, e.db, model, query, args...)
}

var errBoom = errors.New("boom")
