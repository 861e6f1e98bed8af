package eventlog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPgStore creates a store, backed by a PostgreSQL database.
// The schema can be selected via the runtime parameter "search_path" of the database URL.
func NewPgStore(databaseUrl string, customizers ...func(*Options)) (*PgStore, error) {
	if databaseUrl == "" {
		return nil, errors.New("database URL is empty")
	}

	options, err := newOptions(customizers)
	if err != nil {
		return nil, err
	}

	ids, err := newIdGenerator(options.NodeId)
	if err != nil {
		return nil, err
	}

	pgPoolConfig, err := pgxpool.ParseConfig(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	if _, ok := pgPoolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		pgPoolConfig.ConnConfig.RuntimeParams["application_name"] = options.ApplicationName
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	pgPool, err := pgxpool.NewWithConfig(ctx, pgPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %v", err)
	}

	ddl, err := resources.ReadFile("ddl/pg.sql")
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to read resource ddl/pg.sql: %v", err)
	}

	if _, err := pgPool.Exec(ctx, string(ddl)); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &PgStore{pgPool: pgPool, ids: ids, logger: options.Logger}, nil
}

type PgStore struct {
	pgPool *pgxpool.Pool
	ids    *snowflake.Node
	logger hclog.Logger
}

func (s *PgStore) Append(ctx context.Context, events ...Event) ([]Event, error) {
	prepared, err := prepare(events)
	if err != nil || len(prepared) == 0 {
		return nil, err
	}

	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := s.append(ctx, tx, prepared); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return prepared, nil
}

func (s *PgStore) append(ctx context.Context, tx pgx.Tx, events []Event) error {
	var instanceIds []string
	for _, e := range events {
		if !slices.Contains(instanceIds, e.ProcessInstanceId) {
			instanceIds = append(instanceIds, e.ProcessInstanceId)
		}
	}

	// serialize appends per process instance, locking in a stable order
	slices.Sort(instanceIds)
	for _, instanceId := range instanceIds {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", instanceId); err != nil {
			return fmt.Errorf("failed to lock process instance %s: %v", instanceId, err)
		}
	}

	sequences := make(map[Key]int64)
	for i, e := range events {
		key := e.Key()

		sequence, ok := sequences[key]
		if !ok {
			row := tx.QueryRow(ctx, `
SELECT COALESCE(MAX(sequence), 0) FROM event WHERE process_instance_id = $1 AND element_id = $2 AND thread_id = $3
`, key.ProcessInstanceId, key.ElementId, key.ThreadId)
			if err := row.Scan(&sequence); err != nil {
				return fmt.Errorf("failed to select sequence of %s: %v", key, err)
			}
		}

		nextId(s.ids, &e)
		e.Sequence = sequence + 1
		sequences[key] = e.Sequence

		_, err := tx.Exec(ctx, `
INSERT INTO event (id, process_instance_id, element_id, thread_id, sequence, kind, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
			e.Id,
			e.ProcessInstanceId,
			e.ElementId,
			e.ThreadId,
			e.Sequence,
			e.Kind.String(),
			e.Payload,
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %v", e, err)
		}

		events[i] = e
	}

	return nil
}

func (s *PgStore) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}

	where, args := criteriaSql(criteria, func(n int) string { return fmt.Sprintf("$%d", n) })

	rows, err := s.pgPool.Query(ctx, `
SELECT id, process_instance_id, element_id, thread_id, sequence, kind, payload, created_at FROM event
WHERE `+where+`
ORDER BY id
`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %v", err)
	}

	defer rows.Close()

	results := make([]Event, 0)
	for rows.Next() {
		var (
			e    Event
			kind string
		)

		if err := rows.Scan(
			&e.Id,
			&e.ProcessInstanceId,
			&e.ElementId,
			&e.ThreadId,
			&e.Sequence,
			&kind,
			&e.Payload,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %v", err)
		}

		e.Kind = MapEventKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()

		results = append(results, e)
	}

	return results, rows.Err()
}

func (s *PgStore) Clear(ctx context.Context, scope Scope) error {
	if err := validateScope(scope); err != nil {
		return err
	}

	where, args := criteriaSql(Criteria{
		ProcessInstanceId: scope.ProcessInstanceId,
		ElementId:         scope.ElementId,
	}, func(n int) string { return fmt.Sprintf("$%d", n) })

	if _, err := s.pgPool.Exec(ctx, "DELETE FROM event WHERE "+where, args...); err != nil {
		return fmt.Errorf("failed to delete events: %v", err)
	}

	s.logger.Debug("cleared event log", "processInstanceId", scope.ProcessInstanceId, "elementId", scope.ElementId)
	return nil
}

func (s *PgStore) Close() error {
	s.pgPool.Close()
	return nil
}
