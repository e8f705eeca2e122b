package simulation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-cargo/meridian-cargo/internal/ledger"
	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
)

type memoryStore struct {
	sims   map[int64]Simulation
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sims: map[int64]Simulation{}}
}

func (s *memoryStore) Save(ctx context.Context, name string, input SimulationInput, result CostResult) (Simulation, error) {
	s.nextID++
	sim := Simulation{ID: s.nextID, Name: name, Input: input, Result: result, CreatedAt: time.Now()}
	s.sims[sim.ID] = sim
	return sim, nil
}

func (s *memoryStore) Get(ctx context.Context, id int64) (Simulation, error) {
	sim, ok := s.sims[id]
	if !ok {
		return Simulation{}, ErrSimulationNotFound
	}
	return sim, nil
}

func (s *memoryStore) List(ctx context.Context, limit, offset int) ([]Simulation, error) {
	out := make([]Simulation, 0, len(s.sims))
	for _, sim := range s.sims {
		out = append(out, sim)
	}
	return out, nil
}

type stubRateTable struct {
	rates   map[string]rates.TaxRates
	lookups int
}

func (t *stubRateTable) Lookup(ctx context.Context, ncm string) (rates.TaxRates, error) {
	t.lookups++
	tr, ok := t.rates[ncm]
	if !ok {
		return rates.TaxRates{}, rates.ErrNCMNotFound
	}
	return tr, nil
}

type stubDirectory map[string]partners.Partner

func (d stubDirectory) FindByName(ctx context.Context, name string) (partners.Partner, error) {
	p, ok := d[strings.ToLower(name)]
	if !ok {
		return partners.Partner{}, partners.ErrPartnerNotFound
	}
	return p, nil
}

// memoryEntryRepo is the minimal ledger repository the conversion tests
// need: entries only, transactions applied directly.
type memoryEntryRepo struct {
	entries map[uuid.UUID]ledger.Entry
}

func (r *memoryEntryRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryEntryRepo) GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryEntryRepo) ListEntries(ctx context.Context, req ledger.ListEntriesRequest) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryEntryRepo) GetAccount(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return ledger.BankAccount{}, ledger.ErrAccountNotFound
}

func (r *memoryEntryRepo) ListAccounts(ctx context.Context) ([]ledger.BankAccount, error) {
	return nil, nil
}

func (r *memoryEntryRepo) CreateAccount(ctx context.Context, input ledger.CreateAccountInput) (ledger.BankAccount, error) {
	return ledger.BankAccount{}, nil
}

func (r *memoryEntryRepo) InsertEntry(ctx context.Context, e ledger.Entry) error {
	r.entries[e.ID] = e
	return nil
}

func (r *memoryEntryRepo) InsertPayment(ctx context.Context, p ledger.Payment) error { return nil }

func (r *memoryEntryRepo) BumpVersion(ctx context.Context, id uuid.UUID, expected int64) error {
	return nil
}

func (r *memoryEntryRepo) SetOverride(ctx context.Context, id uuid.UUID, override ledger.Status, note string) error {
	return nil
}

func (r *memoryEntryRepo) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	return nil
}

type stubFX struct{}

func (stubFX) Rate(ctx context.Context, currency money.Currency) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func newTestService(t *testing.T) (*Service, *memoryStore, *stubRateTable) {
	t.Helper()
	store := newMemoryStore()
	table := &stubRateTable{rates: map[string]rates.TaxRates{
		"12345678": {NCM: "12345678", II: dec("10"), IPI: dec("5"), PIS: dec("2"), COFINS: dec("9")},
	}}
	directory := stubDirectory{
		"importadora sul": {Name: "Importadora Sul", ExchangeRateAgio: dec("1.5"), PaymentTermDays: 28},
	}
	ledgerSvc := ledger.NewService(&memoryEntryRepo{entries: map[uuid.UUID]ledger.Entry{}}, directory, stubFX{})
	svc := NewService(store, table, directory, ledgerSvc)
	svc.nowFn = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return svc, store, table
}

func bareInput() SimulationInput {
	in := workedExample()
	for i := range in.Items {
		in.Items[i].TaxRates = nil
	}
	return in
}

func TestPreviewResolvesRatesFromTable(t *testing.T) {
	svc, _, table := newTestService(t)

	in := bareInput()
	// Two items sharing one NCM resolve with a single lookup.
	second := in.Items[0]
	in.Items = append(in.Items, second)

	result, err := svc.Preview(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.CustomsValueBRL.Equal(dec("15500")), "CV %s", result.CustomsValueBRL)
	require.Equal(t, 1, table.lookups)
}

func TestPreviewUnknownNCM(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := bareInput()
	in.Items[0].NCM = "99999999"
	_, err := svc.Preview(context.Background(), in)
	require.ErrorIs(t, err, rates.ErrNCMNotFound)
}

func TestSaveRequiresName(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Save(context.Background(), "  ", bareInput())
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestSaveAndGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sim, err := svc.Save(ctx, "DI 2026/0147", bareInput())
	require.NoError(t, err)
	require.NotZero(t, sim.ID)
	require.True(t, sim.Result.TotalCostBRL.Equal(dec("16339.02")))

	stored, err := svc.Get(ctx, sim.ID)
	require.NoError(t, err)
	require.Equal(t, "DI 2026/0147", stored.Name)

	_, err = svc.Get(ctx, 404)
	require.ErrorIs(t, err, ErrSimulationNotFound)
}

func TestConvertToEntries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := bareInput()
	in.Modal = ModalMaritime
	sim, err := svc.Save(ctx, "DI maritima", in)
	require.NoError(t, err)

	entries, err := svc.ConvertToEntries(ctx, sim.ID, ConvertInput{Partner: "Importadora Sul", ProcessID: "PRC-881"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	taxed, expenses := entries[0], entries[1]
	require.Equal(t, ledger.TypeCredit, taxed.Type)
	require.Equal(t, "Importadora Sul", taxed.Partner)
	require.Equal(t, "PRC-881", taxed.ProcessID)
	require.Equal(t, money.BRL, taxed.Currency)
	require.True(t, strings.HasPrefix(taxed.InvoiceID, "DI-"))
	require.True(t, strings.HasSuffix(expenses.InvoiceID, "-DESP"))
	// The 28-day payment term sets the due date.
	require.Equal(t, time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC), taxed.DueDate)

	total := taxed.Amount.Add(expenses.Amount)
	require.True(t, total.Equal(sim.Result.TotalCostBRL), "entries %s vs result %s", total, sim.Result.TotalCostBRL)
	require.True(t, expenses.Amount.Equal(sim.Result.TotalExpensesBRL))

	_, err = svc.ConvertToEntries(ctx, sim.ID, ConvertInput{Partner: "Ghost Corp"})
	require.ErrorIs(t, err, partners.ErrPartnerNotFound)
}
