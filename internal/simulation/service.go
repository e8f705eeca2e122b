package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-cargo/meridian-cargo/internal/ledger"
	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
)

var (
	// ErrSimulationNotFound indicates the saved simulation does not exist.
	ErrSimulationNotFound = errors.New("simulation: not found")
	// ErrNameRequired indicates a save attempt without a name.
	ErrNameRequired = errors.New("simulation: name is required")
)

// Store persists saved simulations.
type Store interface {
	Save(ctx context.Context, name string, input SimulationInput, result CostResult) (Simulation, error)
	Get(ctx context.Context, id int64) (Simulation, error)
	List(ctx context.Context, limit, offset int) ([]Simulation, error)
}

// Service resolves tax rates, runs the allocator and persists results. The
// allocator itself stays pure; everything context-bound lives here.
type Service struct {
	store    Store
	rates    rates.RateTable
	partners partners.Directory
	ledger   *ledger.Service
	nowFn    func() time.Time
}

// NewService constructs the simulation service.
func NewService(store Store, table rates.RateTable, directory partners.Directory, ledgerSvc *ledger.Service) *Service {
	return &Service{store: store, rates: table, partners: directory, ledger: ledgerSvc, nowFn: time.Now}
}

// resolveRates fills missing tax rates from the rate table, one lookup per
// distinct NCM.
func (s *Service) resolveRates(ctx context.Context, input *SimulationInput) error {
	byNCM := map[string]*rates.TaxRates{}
	for i := range input.Items {
		item := &input.Items[i]
		if item.TaxRates != nil {
			continue
		}
		if tr, ok := byNCM[item.NCM]; ok {
			item.TaxRates = tr
			continue
		}
		tr, err := s.rates.Lookup(ctx, item.NCM)
		if err != nil {
			return fmt.Errorf("resolve rates for item %d (ncm %s): %w", i+1, item.NCM, err)
		}
		byNCM[item.NCM] = &tr
		item.TaxRates = &tr
	}
	return nil
}

// Preview resolves rates and runs the allocator without persisting anything.
func (s *Service) Preview(ctx context.Context, raw SimulationInput) (CostResult, error) {
	if err := s.resolveRates(ctx, &raw); err != nil {
		return CostResult{}, err
	}
	input, err := NewSimulationInput(raw)
	if err != nil {
		return CostResult{}, err
	}
	return Allocate(input)
}

// Save runs the allocator and persists the named simulation.
func (s *Service) Save(ctx context.Context, name string, raw SimulationInput) (Simulation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Simulation{}, ErrNameRequired
	}
	if err := s.resolveRates(ctx, &raw); err != nil {
		return Simulation{}, err
	}
	input, err := NewSimulationInput(raw)
	if err != nil {
		return Simulation{}, err
	}
	result, err := Allocate(input)
	if err != nil {
		return Simulation{}, err
	}
	return s.store.Save(ctx, name, input, result)
}

// Get returns a saved simulation.
func (s *Service) Get(ctx context.Context, id int64) (Simulation, error) {
	return s.store.Get(ctx, id)
}

// List returns saved simulations, most recent first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Simulation, error) {
	return s.store.List(ctx, limit, offset)
}

// ConvertInput selects the partner billed when a simulation becomes ledger
// charges.
type ConvertInput struct {
	Partner   string
	ProcessID string
}

// ConvertToEntries turns a saved simulation into open receivables: one
// entry for the taxed customs cost and, when present, one for the local
// expenses. Due dates follow the partner's payment term.
func (s *Service) ConvertToEntries(ctx context.Context, simulationID int64, input ConvertInput) ([]ledger.Entry, error) {
	sim, err := s.store.Get(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	partner, err := s.partners.FindByName(ctx, input.Partner)
	if err != nil {
		return nil, fmt.Errorf("resolve partner %q: %w", input.Partner, err)
	}
	dueDate := partner.DueDateFrom(s.nowFn())

	taxedCost := sim.Result.TotalCostBRL.Sub(sim.Result.TotalExpensesBRL)
	out := make([]ledger.Entry, 0, 2)
	entry, err := s.ledger.CreateEntry(ctx, ledger.CreateEntryInput{
		Type:      ledger.TypeCredit,
		Partner:   partner.Name,
		InvoiceID: fmt.Sprintf("DI-%d", sim.ID),
		ProcessID: input.ProcessID,
		Amount:    taxedCost,
		Currency:  money.BRL,
		DueDate:   dueDate,
	})
	if err != nil {
		return nil, err
	}
	out = append(out, entry)

	if sim.Result.TotalExpensesBRL.IsPositive() {
		expenses, err := s.ledger.CreateEntry(ctx, ledger.CreateEntryInput{
			Type:      ledger.TypeCredit,
			Partner:   partner.Name,
			InvoiceID: fmt.Sprintf("DI-%d-DESP", sim.ID),
			ProcessID: input.ProcessID,
			Amount:    sim.Result.TotalExpensesBRL,
			Currency:  money.BRL,
			DueDate:   dueDate,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, expenses)
	}
	return out, nil
}
