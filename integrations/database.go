package integrations

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/executors"
)

// SQLDatabase adapts a database/sql connection to the database
// collaborator contract used by database nodes. Rows come back as
// generic maps so node output stays serializable.
type SQLDatabase struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ executors.Database = (*SQLDatabase)(nil)

// NewSQLDatabase wraps an open connection. The caller owns the
// connection's lifecycle.
func NewSQLDatabase(db *sql.DB, logger *zap.Logger) *SQLDatabase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDatabase{
		db:     db,
		logger: logger.With(zap.String("component", "sql_database")),
	}
}

// Query runs a parameterized query and scans every row into a map
// keyed by column name.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	values := make([]any, len(cols))
	scan := make([]any, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// Drivers hand text columns back as []byte.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.logger.Debug("query finished",
		zap.Int("rows", len(out)),
		zap.Int("columns", len(cols)),
	)
	return out, nil
}

// Exec runs a parameterized statement and returns the affected row
// count.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}
