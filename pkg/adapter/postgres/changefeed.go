package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NOTIFY payloads are capped at 8000 bytes; the trigger drops the row from
// oversized payloads and the adapter re-reads it by id.
const notifyFunctionSQL = `
CREATE OR REPLACE FUNCTION liveview_notify() RETURNS trigger AS $$
DECLARE
    rec record;
    payload text;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
    ELSE
        rec := NEW;
    END IF;

    payload := json_build_object(
        'op', lower(TG_OP),
        'id', rec.id,
        'row', row_to_json(rec)
    )::text;

    IF octet_length(payload) > 7900 THEN
        payload := json_build_object('op', lower(TG_OP), 'id', rec.id)::text;
    END IF;

    PERFORM pg_notify('liveview_' || TG_TABLE_NAME, payload);
    RETURN rec;
END;
$$ LANGUAGE plpgsql;
`

// EnsureChangefeed installs the notification trigger function and one
// row-level trigger per watched table. It is idempotent and safe to run on
// every startup.
func (a *Adapter) EnsureChangefeed(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, notifyFunctionSQL); err != nil {
		return fmt.Errorf("failed to install notify function: %w", err)
	}

	for _, table := range a.tables {
		ident := pgx.Identifier{table}.Sanitize()
		drop := fmt.Sprintf("DROP TRIGGER IF EXISTS liveview_changefeed ON %s", ident)
		create := fmt.Sprintf(
			"CREATE TRIGGER liveview_changefeed AFTER INSERT OR UPDATE OR DELETE ON %s "+
				"FOR EACH ROW EXECUTE FUNCTION liveview_notify()", ident)

		if _, err := a.pool.Exec(ctx, drop); err != nil {
			return fmt.Errorf("failed to reset changefeed trigger on %q: %w", table, err)
		}
		if _, err := a.pool.Exec(ctx, create); err != nil {
			return fmt.Errorf("failed to install changefeed trigger on %q: %w", table, err)
		}
	}

	a.log.V(1).Info("changefeed triggers installed", "tables", len(a.tables))

	return nil
}
