// Package duckdb serves a parquet lake from an object store through an
// in-process DuckDB database. Keys follow <dataset>/<table>/.../<file>.parquet
// and every table is exposed as the view "<dataset>"."<table>".
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/warehouse-mcp/internal/storage"
	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

type Gateway struct {
	Store     storage.ObjectStore
	CatalogID string
}

func New(store storage.ObjectStore, catalogID string) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(catalogID) == "" {
		return nil, fmt.Errorf("catalog id is required")
	}
	return &Gateway{Store: store, CatalogID: catalogID}, nil
}

type lakeTable struct {
	datasetID string
	tableName string
	files     []storage.ObjectInfo
}

func (g *Gateway) ListObjects(ctx context.Context) ([]warehouse.Object, error) {
	tables, err := g.scanLake(ctx)
	if err != nil {
		return nil, err
	}
	objects := make([]warehouse.Object, 0, len(tables))
	for _, table := range tables {
		objects = append(objects, warehouse.Object{
			Ref:  warehouse.ObjectRef{CatalogID: g.CatalogID, DatasetID: table.datasetID, ObjectID: table.tableName},
			Kind: warehouse.KindTable,
		})
	}
	return objects, nil
}

// GetObjectSchema reads the footer of the table's first data file and
// describes its top-level columns.
func (g *Gateway) GetObjectSchema(ctx context.Context, ref warehouse.ObjectRef) ([]warehouse.Field, error) {
	if ref.CatalogID != g.CatalogID {
		return nil, fmt.Errorf("%w: catalog %q", warehouse.ErrObjectNotFound, ref.CatalogID)
	}
	prefix, err := storage.TablePrefix(ref.DatasetID, ref.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", warehouse.ErrObjectNotFound, err)
	}
	objects, err := g.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list table files: %w", err)
	}
	files := parquetFiles(objects)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", warehouse.ErrObjectNotFound, ref)
	}

	workDir, err := os.MkdirTemp("", "warehouse-mcp-schema-")
	if err != nil {
		return nil, fmt.Errorf("create schema temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "schema.parquet")
	if err := g.download(ctx, files[0].Key, localPath); err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open local parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat local parquet file: %w", err)
	}
	parquetFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read parquet footer of %q: %w", files[0].Key, err)
	}
	return describeFields(parquetFile.Schema().Fields()), nil
}

// RunQuery stages the data files of every table named in the query text and
// runs it. Staged bytes count against MaxBytesBilled.
func (g *Gateway) RunQuery(ctx context.Context, request warehouse.QueryRequest) ([]warehouse.Row, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}

	tables, err := g.scanLake(ctx)
	if err != nil {
		return nil, err
	}
	tables = referencedTables(tables, sqlText)

	var stagedBytes int64
	for _, table := range tables {
		for _, file := range table.files {
			stagedBytes += file.Size
		}
	}
	if request.MaxBytesBilled > 0 && stagedBytes > request.MaxBytesBilled {
		return nil, fmt.Errorf("query would scan %d bytes, exceeding the maximum bytes billed of %d", stagedBytes, request.MaxBytesBilled)
	}

	workDir, err := os.MkdirTemp("", "warehouse-mcp-query-")
	if err != nil {
		return nil, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()
	// USE is scoped to a connection.
	db.SetMaxOpenConns(1)

	if err := g.attachCatalog(ctx, db); err != nil {
		return nil, err
	}

	for _, table := range tables {
		localPaths := make([]string, 0, len(table.files))
		for index, file := range table.files {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%s_%d.parquet", sanitizeFileComponent(table.datasetID), sanitizeFileComponent(table.tableName), index))
			if err := g.download(ctx, file.Key, localPath); err != nil {
				return nil, err
			}
			localPaths = append(localPaths, localPath)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(table.datasetID))); err != nil {
			return nil, fmt.Errorf("create schema for dataset %q: %w", table.datasetID, err)
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table.datasetID), quoteIdent(table.tableName), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return nil, fmt.Errorf("create view for table %q: %w", table.datasetID+"."+table.tableName, err)
		}
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	result := make([]warehouse.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(warehouse.Row, len(columns))
		for i, value := range normalizeValues(values) {
			row[columns[i]] = value
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (g *Gateway) Close() error {
	return nil
}

// attachCatalog makes three-part names such as proj.dataset.table resolve.
func (g *Gateway) attachCatalog(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`ATTACH ':memory:' AS %s`, quoteIdent(g.CatalogID))); err != nil {
		return fmt.Errorf("attach catalog %q: %w", g.CatalogID, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`USE %s`, quoteIdent(g.CatalogID))); err != nil {
		return fmt.Errorf("use catalog %q: %w", g.CatalogID, err)
	}
	return nil
}

func (g *Gateway) scanLake(ctx context.Context) ([]lakeTable, error) {
	objects, err := g.Store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list lake objects: %w", err)
	}
	byName := map[string]*lakeTable{}
	for _, obj := range objects {
		datasetID, tableName, ok := storage.ParseTableFileKey(obj.Key)
		if !ok {
			continue
		}
		name := datasetID + "/" + tableName
		table, exists := byName[name]
		if !exists {
			table = &lakeTable{datasetID: datasetID, tableName: tableName}
			byName[name] = table
		}
		table.files = append(table.files, obj)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	tables := make([]lakeTable, 0, len(names))
	for _, name := range names {
		table := byName[name]
		sort.Slice(table.files, func(i, j int) bool { return table.files[i].Key < table.files[j].Key })
		tables = append(tables, *table)
	}
	return tables, nil
}

func (g *Gateway) download(ctx context.Context, key, localPath string) error {
	reader, err := g.Store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local parquet file %q: %w", localPath, err)
	}
	return nil
}

func referencedTables(tables []lakeTable, sqlText string) []lakeTable {
	referenced := make([]lakeTable, 0, len(tables))
	for _, table := range tables {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(table.tableName) + `\b`)
		if pattern.MatchString(sqlText) {
			referenced = append(referenced, table)
		}
	}
	return referenced
}

func parquetFiles(objects []storage.ObjectInfo) []storage.ObjectInfo {
	files := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if _, _, ok := storage.ParseTableFileKey(obj.Key); ok {
			files = append(files, obj)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files
}

func describeFields(fields []parquet.Field) []warehouse.Field {
	described := make([]warehouse.Field, 0, len(fields))
	for _, field := range fields {
		entry := warehouse.Field{
			"name": field.Name(),
			"mode": fieldMode(field),
		}
		if field.Leaf() {
			entry["type"] = field.Type().String()
		} else {
			entry["type"] = "RECORD"
			entry["fields"] = describeFields(field.Fields())
		}
		described = append(described, entry)
	}
	return described
}

func fieldMode(field parquet.Field) string {
	switch {
	case field.Repeated():
		return "REPEATED"
	case field.Optional():
		return "NULLABLE"
	default:
		return "REQUIRED"
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
