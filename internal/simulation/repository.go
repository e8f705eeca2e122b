package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed simulation store. Input and
// result are stored as jsonb documents; simulations are immutable once
// saved so no update path exists.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Save(ctx context.Context, name string, input SimulationInput, result CostResult) (Simulation, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Simulation{}, fmt.Errorf("encode input: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return Simulation{}, fmt.Errorf("encode result: %w", err)
	}
	sim := Simulation{Name: name, Input: input, Result: result}
	err = s.pool.QueryRow(ctx, `INSERT INTO simulations (name, input, result, created_at)
VALUES ($1, $2, $3, now()) RETURNING id, created_at`, name, inputJSON, resultJSON).
		Scan(&sim.ID, &sim.CreatedAt)
	if err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

func (s *pgStore) Get(ctx context.Context, id int64) (Simulation, error) {
	var sim Simulation
	var inputJSON, resultJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT id, name, input, result, created_at FROM simulations WHERE id = $1`, id).
		Scan(&sim.ID, &sim.Name, &inputJSON, &resultJSON, &sim.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Simulation{}, ErrSimulationNotFound
	}
	if err != nil {
		return Simulation{}, err
	}
	if err := json.Unmarshal(inputJSON, &sim.Input); err != nil {
		return Simulation{}, fmt.Errorf("decode input: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &sim.Result); err != nil {
		return Simulation{}, fmt.Errorf("decode result: %w", err)
	}
	return sim, nil
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Simulation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, input, result, created_at FROM simulations
ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Simulation
	for rows.Next() {
		var sim Simulation
		var inputJSON, resultJSON []byte
		if err := rows.Scan(&sim.ID, &sim.Name, &inputJSON, &resultJSON, &sim.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(inputJSON, &sim.Input); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &sim.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}
