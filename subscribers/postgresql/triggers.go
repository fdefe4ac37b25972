package postgresql

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	SchemaName                  = "el_amqp"
	NotifyTriggerFunctionPrefix = "el_amqp_notify"
	// Postgres functions accept at most 100 arguments.
	jsonBuildChunkSize = 50
	// pg_notify rejects payloads of 8000 bytes or more.
	maxNotifyPayload = 7999
)

// Table declares a table whose row changes are emitted as notifications.
// An empty Fields selects the whole row.
type Table struct {
	Table     string            `json:"table"`
	Reference string            `json:"reference"`
	Index     string            `json:"index"`
	Type      string            `json:"type"`
	Fields    map[string]string `json:"fields"`
}

func (t Table) reference() string {
	if t.Reference == "" {
		return "id"
	}
	return t.Reference
}

func (t Table) functionName() string {
	return NotifyTriggerFunctionPrefix + "_" + t.Table
}

func (t Table) triggerName() string {
	return NotifyTriggerFunctionPrefix + "_" + t.Table + "_trigger"
}

// documentExpression renders the JSON document built from row. Fields maps
// document keys to column names.
func (t Table) documentExpression(row string) string {
	if len(t.Fields) == 0 {
		return "row_to_json(" + row + ")"
	}

	aliases := make([]string, 0, len(t.Fields))
	for alias := range t.Fields {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	rawFields := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		rawFields = append(rawFields, fmt.Sprintf("'%s',%s.%s", strings.ReplaceAll(alias, "'", "''"), row, pgx.Identifier{t.Fields[alias]}.Sanitize()))
	}
	if len(rawFields) <= jsonBuildChunkSize {
		return "json_build_object(" + strings.Join(rawFields, ",") + ")"
	}

	var chunks []string
	for i := 0; i < len(rawFields); i += jsonBuildChunkSize {
		end := min(i+jsonBuildChunkSize, len(rawFields))
		chunks = append(chunks, "jsonb_build_object("+strings.Join(rawFields[i:end], ",")+")")
	}
	return "(" + strings.Join(chunks, " || ") + ")"
}

// functionQuery renders the notify function. Rows too large for a notify
// payload are announced without their document, which the listener then
// reads back with selectQuery.
func (t Table) functionQuery(channel string) string {
	reference := pgx.Identifier{t.reference()}.Sanitize()
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %[1]s() RETURNS trigger AS $trigger$
DECLARE
  payload TEXT;
BEGIN
  IF TG_OP <> 'UPDATE' OR NEW IS DISTINCT FROM OLD THEN
    payload := json_build_object(
        'action', LOWER(TG_OP),
        'index', %[3]s,
        'type', %[4]s,
        'id', COALESCE(NEW.%[5]s, OLD.%[5]s)::TEXT,
        'document', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE %[6]s END
    )::TEXT;
    IF octet_length(payload) > %[7]d THEN
      payload := json_build_object(
          'action', LOWER(TG_OP),
          'table', %[8]s,
          'index', %[3]s,
          'type', %[4]s,
          'id', COALESCE(NEW.%[5]s, OLD.%[5]s)::TEXT
      )::TEXT;
    END IF;
    PERFORM pg_notify(%[2]s, payload);
  END IF;
  RETURN COALESCE(NEW, OLD);
END;
$trigger$ LANGUAGE plpgsql VOLATILE;
`,
		pgx.Identifier{SchemaName, t.functionName()}.Sanitize(),
		quoteLiteral(channel),
		quoteLiteral(t.Index),
		quoteLiteral(t.Type),
		reference,
		t.documentExpression("NEW"),
		maxNotifyPayload,
		quoteLiteral(t.Table),
	)
}

// selectQuery reads back the document of one row by its reference.
func (t Table) selectQuery() string {
	return fmt.Sprintf(
		`SELECT (%s)::TEXT FROM %s AS r WHERE r.%s::TEXT = $1`,
		t.documentExpression("r"),
		pgx.Identifier(strings.Split(t.Table, ".")).Sanitize(),
		pgx.Identifier{t.reference()}.Sanitize(),
	)
}

func (t Table) triggerQuery() string {
	return fmt.Sprintf(
		`CREATE OR REPLACE TRIGGER %s AFTER DELETE OR UPDATE OR INSERT ON %s FOR EACH ROW EXECUTE PROCEDURE %s();`,
		pgx.Identifier{t.triggerName()}.Sanitize(),
		pgx.Identifier(strings.Split(t.Table, ".")).Sanitize(),
		pgx.Identifier{SchemaName, t.functionName()}.Sanitize(),
	)
}

// installTriggers (re)creates the notify function and trigger of every table.
func (pg *Subscriber) installTriggers(ctx context.Context, tables []Table) error {
	if len(tables) == 0 {
		return nil
	}
	schema := pgx.Identifier{SchemaName}.Sanitize()
	if _, err := pg.conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("cannot create schema %s: %w", SchemaName, err)
	}
	for _, table := range tables {
		if table.Table == "" {
			return fmt.Errorf("trigger table name is required")
		}
		if _, err := pg.conn.Exec(ctx, table.functionQuery(pg.channel)); err != nil {
			return fmt.Errorf("error create trigger function for %s: %w", table.Table, err)
		}
		if _, err := pg.conn.Exec(ctx, table.triggerQuery()); err != nil {
			return fmt.Errorf("error create trigger for %s: %w", table.Table, err)
		}
		pg.Logger.Debug().Str("table", table.Table).Msg("Notify trigger installed")
	}
	return nil
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
