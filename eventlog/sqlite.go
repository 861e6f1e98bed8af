package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite"
)

//go:embed ddl
var resources embed.FS

// NewSQLiteStore creates a store, backed by a SQLite database - e.g. "file:events.db" or ":memory:".
func NewSQLiteStore(dataSourceName string, customizers ...func(*Options)) (*SQLiteStore, error) {
	options, err := newOptions(customizers)
	if err != nil {
		return nil, err
	}

	ids, err := newIdGenerator(options.NodeId)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// SQLite allows a single writer, an in-memory database only exists per connection
	db.SetMaxOpenConns(1)

	ddl, err := resources.ReadFile("ddl/sqlite.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read resource ddl/sqlite.sql: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteStore{db: db, ids: ids, logger: options.Logger}, nil
}

type SQLiteStore struct {
	db     *sql.DB
	ids    *snowflake.Node
	logger hclog.Logger
}

func (s *SQLiteStore) Append(ctx context.Context, events ...Event) ([]Event, error) {
	prepared, err := prepare(events)
	if err != nil || len(prepared) == 0 {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}

	sequences := make(map[Key]int64)
	for i, e := range prepared {
		key := e.Key()

		sequence, ok := sequences[key]
		if !ok {
			row := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(sequence), 0) FROM event WHERE process_instance_id = ? AND element_id = ? AND thread_id = ?
`, key.ProcessInstanceId, key.ElementId, key.ThreadId)
			if err := row.Scan(&sequence); err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("failed to select sequence of %s: %v", key, err)
			}
		}

		nextId(s.ids, &e)
		e.Sequence = sequence + 1
		sequences[key] = e.Sequence

		payload, err := json.Marshal(e.Payload)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to marshal payload: %v", err)
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO event (id, process_instance_id, element_id, thread_id, sequence, kind, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
			e.Id,
			e.ProcessInstanceId,
			e.ElementId,
			e.ThreadId,
			e.Sequence,
			e.Kind.String(),
			string(payload),
			e.CreatedAt.UnixMilli(),
		)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert event %s: %v", e, err)
		}

		prepared[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return prepared, nil
}

func (s *SQLiteStore) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}

	where, args := criteriaSql(criteria, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, `
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
			e         Event
			kind      string
			payload   string
			createdAt int64
		)

		if err := rows.Scan(
			&e.Id,
			&e.ProcessInstanceId,
			&e.ElementId,
			&e.ThreadId,
			&e.Sequence,
			&kind,
			&payload,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %v", err)
		}

		e.Kind = MapEventKind(kind)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of event %d: %v", e.Id, err)
		}

		results = append(results, e)
	}

	return results, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, scope Scope) error {
	if err := validateScope(scope); err != nil {
		return err
	}

	where, args := criteriaSql(Criteria{
		ProcessInstanceId: scope.ProcessInstanceId,
		ElementId:         scope.ElementId,
	}, func(int) string { return "?" })

	if _, err := s.db.ExecContext(ctx, "DELETE FROM event WHERE "+where, args...); err != nil {
		return fmt.Errorf("failed to delete events: %v", err)
	}

	s.logger.Debug("cleared event log", "processInstanceId", scope.ProcessInstanceId, "elementId", scope.ElementId)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// criteriaSql builds a WHERE clause. placeholder returns the bind parameter of the n-th argument, starting at 1.
func criteriaSql(criteria Criteria, placeholder func(int) string) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, placeholder(len(args))))
	}

	add("process_instance_id", criteria.ProcessInstanceId)
	if criteria.ElementId != "" {
		add("element_id", criteria.ElementId)
	}
	if criteria.ThreadId != "" {
		add("thread_id", criteria.ThreadId)
	}
	if criteria.Kind != 0 {
		add("kind", criteria.Kind.String())
	}

	return strings.Join(conditions, " AND "), args
}
