package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Querier is the subset of pgxpool.Pool used for introspection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLoader builds the catalog by introspecting the live database.
type PostgresLoader struct {
	db      Querier
	schemas []string
	exclude map[string]struct{}
	logger  *zap.Logger
}

// NewPostgresLoader creates a loader for the given schemas. exclude lists
// tables, bare for public or schema-qualified, that are never exposed.
// If logger is nil, a no-op logger is used.
func NewPostgresLoader(db Querier, schemas, exclude []string, logger *zap.Logger) *PostgresLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(schemas) == 0 {
		schemas = []string{defaultSchema}
	}
	ex := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		schema, table := splitQualified(name)
		ex[key(schema, table)] = struct{}{}
	}
	return &PostgresLoader{
		db:      db,
		schemas: schemas,
		exclude: ex,
		logger:  logger.Named("catalog-loader"),
	}
}

func splitQualified(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

const tablesQuery = `
	SELECT n.nspname, c.relname, COALESCE(obj_description(c.oid, 'pg_class'), '')
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = ANY($1)
	  AND c.relkind IN ('r', 'p', 'v', 'm', 'f')
	ORDER BY n.nspname, c.relname
`

const columnsQuery = `
	SELECT n.nspname, c.relname, a.attname,
	       format_type(a.atttypid, a.atttypmod),
	       NOT a.attnotnull,
	       COALESCE(col_description(c.oid, a.attnum), '')
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = ANY($1)
	  AND c.relkind IN ('r', 'p', 'v', 'm', 'f')
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY n.nspname, c.relname, a.attnum
`

const foreignKeysQuery = `
	SELECT con.conname, n.nspname, c.relname, a.attname,
	       fn.nspname, fc.relname, fa.attname
	FROM pg_constraint con
	JOIN pg_class c ON c.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_class fc ON fc.oid = con.confrelid
	JOIN pg_namespace fn ON fn.oid = fc.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
	JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
	JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
	WHERE con.contype = 'f'
	  AND n.nspname = ANY($1)
	ORDER BY n.nspname, c.relname, con.conname, k.ord
`

const routinesQuery = `
	SELECT DISTINCT p.proname
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
	  AND n.nspname NOT LIKE 'pg\_toast%'
	  AND n.nspname NOT LIKE 'pg\_temp%'
	ORDER BY p.proname
`

// Load runs the introspection queries and assembles a catalog.
func (l *PostgresLoader) Load(ctx context.Context) (*Catalog, error) {
	specs, order, err := l.loadTables(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.loadColumns(ctx, specs); err != nil {
		return nil, err
	}
	if err := l.loadForeignKeys(ctx, specs); err != nil {
		return nil, err
	}
	routines, err := l.loadRoutines(ctx)
	if err != nil {
		return nil, err
	}

	feed := Feed{Routines: routines}
	for _, k := range order {
		feed.Tables = append(feed.Tables, *specs[k])
	}

	c, err := New(feed)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Loaded schema catalog from database",
		zap.Strings("schemas", l.schemas),
		zap.Int("tables", c.Len()),
		zap.Int("routines", len(routines)))
	return c, nil
}

func (l *PostgresLoader) excluded(schema, name string) bool {
	_, ok := l.exclude[key(schema, name)]
	return ok
}

func (l *PostgresLoader) loadTables(ctx context.Context) (map[string]*TableSpec, []string, error) {
	rows, err := l.db.Query(ctx, tablesQuery, l.schemas)
	if err != nil {
		return nil, nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	specs := make(map[string]*TableSpec)
	var order []string
	for rows.Next() {
		var t TableSpec
		if err := rows.Scan(&t.Schema, &t.Name, &t.Comment); err != nil {
			return nil, nil, fmt.Errorf("scan table: %w", err)
		}
		if l.excluded(t.Schema, t.Name) {
			l.logger.Debug("Excluding table from catalog", zap.String("table", key(t.Schema, t.Name)))
			continue
		}
		k := t.Schema + "\x00" + t.Name
		specs[k] = &t
		order = append(order, k)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tables: %w", err)
	}
	return specs, order, nil
}

func (l *PostgresLoader) loadColumns(ctx context.Context, specs map[string]*TableSpec) error {
	rows, err := l.db.Query(ctx, columnsQuery, l.schemas)
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table string
		var col ColumnDescriptor
		if err := rows.Scan(&schema, &table, &col.Name, &col.Type, &col.Nullable, &col.Comment); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		if t, ok := specs[schema+"\x00"+table]; ok {
			t.Columns = append(t.Columns, col)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns: %w", err)
	}
	return nil
}

func (l *PostgresLoader) loadForeignKeys(ctx context.Context, specs map[string]*TableSpec) error {
	rows, err := l.db.Query(ctx, foreignKeysQuery, l.schemas)
	if err != nil {
		return fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	// Rows arrive grouped by constraint, one row per column pair.
	var current *ForeignKey
	var currentName, currentTable string
	for rows.Next() {
		var name, schema, table, column, targetSchema, targetTable, targetColumn string
		if err := rows.Scan(&name, &schema, &table, &column, &targetSchema, &targetTable, &targetColumn); err != nil {
			return fmt.Errorf("scan foreign key: %w", err)
		}
		t, ok := specs[schema+"\x00"+table]
		if !ok {
			continue
		}
		tk := schema + "\x00" + table
		if current == nil || name != currentName || tk != currentTable {
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{TargetSchema: targetSchema, TargetTable: targetTable})
			current = &t.ForeignKeys[len(t.ForeignKeys)-1]
			currentName, currentTable = name, tk
		}
		current.Columns = append(current.Columns, column)
		current.TargetColumns = append(current.TargetColumns, targetColumn)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate foreign keys: %w", err)
	}
	return nil
}

func (l *PostgresLoader) loadRoutines(ctx context.Context) ([]string, error) {
	rows, err := l.db.Query(ctx, routinesQuery)
	if err != nil {
		return nil, fmt.Errorf("query routines: %w", err)
	}
	defer rows.Close()

	var routines []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routines: %w", err)
	}
	return routines, nil
}
