package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const eventColumns = "id, session_id, source, key, cmd, cell, speed, event, hand, priority, ts"

// PostgresSink stores event history in one table. Inserts are idempotent on
// the record id, so journal replays never duplicate rows.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{db: db, tableName: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the history table when it does not exist yet.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+p.tableName+` (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	source TEXT NOT NULL,
	key TEXT NOT NULL,
	cmd TEXT NOT NULL,
	cell SMALLINT NOT NULL,
	speed SMALLINT NOT NULL,
	event TEXT,
	hand TEXT,
	priority SMALLINT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.tableName, err)
	}
	return nil
}

func (p *PostgresSink) WriteBatch(records []*domain.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 11
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (" + eventColumns + ") VALUES ")

	args := make([]any, 0, len(records)*cols)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c)
		}
		b.WriteString(")")

		args = append(args,
			r.ID.String(),
			r.Session.String(),
			r.Source,
			r.Key,
			r.Command,
			r.Cell,
			r.Speed,
			r.Event,
			r.Hand,
			r.Priority,
			r.At,
		)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := p.db.Exec(b.String(), args...); err != nil {
		return fmt.Errorf("insert %d records: %w", len(records), err)
	}
	return nil
}

var _ ports.Sink = (*PostgresSink)(nil)
