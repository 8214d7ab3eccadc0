// Package bigquery is the production warehouse backend.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

type Config struct {
	ProjectID       string
	Location        string
	CredentialsFile string
}

type Gateway struct {
	client    *bigquery.Client
	projectID string
	location  string
}

func New(ctx context.Context, cfg Config) (*Gateway, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("bigquery project id is required")
	}
	opts := make([]option.ClientOption, 0, 1)
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	client.Location = strings.TrimSpace(cfg.Location)
	return &Gateway{client: client, projectID: projectID, location: client.Location}, nil
}

// ListObjects walks datasets, then tables, fetching metadata per table to
// tell views from tables.
func (g *Gateway) ListObjects(ctx context.Context) ([]warehouse.Object, error) {
	objects := make([]warehouse.Object, 0)
	datasets := g.client.Datasets(ctx)
	for {
		dataset, err := datasets.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}

		tables := dataset.Tables(ctx)
		for {
			table, err := tables.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("list tables in %q: %w", dataset.DatasetID, err)
			}
			metadata, err := table.Metadata(ctx)
			if err != nil {
				return nil, fmt.Errorf("table metadata %s.%s: %w", dataset.DatasetID, table.TableID, mapError(err))
			}
			objects = append(objects, warehouse.Object{
				Ref:  warehouse.ObjectRef{CatalogID: g.projectID, DatasetID: dataset.DatasetID, ObjectID: table.TableID},
				Kind: objectKind(metadata.Type),
			})
		}
	}
	return objects, nil
}

func (g *Gateway) GetObjectSchema(ctx context.Context, ref warehouse.ObjectRef) ([]warehouse.Field, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	metadata, err := g.client.DatasetInProject(ref.CatalogID, ref.DatasetID).Table(ref.ObjectID).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("table metadata %s: %w", ref, mapError(err))
	}
	return describeSchema(metadata.Schema), nil
}

func (g *Gateway) RunQuery(ctx context.Context, request warehouse.QueryRequest) ([]warehouse.Row, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	q := g.client.Query(request.SQL)
	q.Location = g.location
	if request.Location != "" {
		q.Location = request.Location
	}
	q.MaxBytesBilled = request.MaxBytesBilled

	it, err := q.Read(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	rows := make([]warehouse.Row, 0)
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		rows = append(rows, toRow(values))
	}
	return rows, nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

func objectKind(tableType bigquery.TableType) warehouse.ObjectKind {
	if tableType == bigquery.ViewTable || tableType == bigquery.MaterializedView {
		return warehouse.KindView
	}
	return warehouse.KindTable
}

func describeSchema(schema bigquery.Schema) []warehouse.Field {
	fields := make([]warehouse.Field, 0, len(schema))
	for _, field := range schema {
		entry := warehouse.Field{
			"name": field.Name,
			"type": string(field.Type),
			"mode": fieldMode(field),
		}
		if field.Description != "" {
			entry["description"] = field.Description
		}
		if len(field.Schema) > 0 {
			entry["fields"] = describeSchema(field.Schema)
		}
		fields = append(fields, entry)
	}
	return fields
}

func fieldMode(field *bigquery.FieldSchema) string {
	switch {
	case field.Repeated:
		return "REPEATED"
	case field.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}

func toRow(values map[string]bigquery.Value) warehouse.Row {
	row := make(warehouse.Row, len(values))
	for name, value := range values {
		row[name] = normalizeValue(value)
	}
	return row
}

func normalizeValue(value bigquery.Value) any {
	switch typed := value.(type) {
	case *big.Rat:
		if typed == nil {
			return nil
		}
		return bigquery.NumericString(typed)
	case []bigquery.Value:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]bigquery.Value:
		return map[string]any(toRow(typed))
	default:
		return typed
	}
}

// mapError turns a 404 from the API into warehouse.ErrObjectNotFound and
// leaves everything else, including the API message, intact.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", warehouse.ErrObjectNotFound, apiErr.Message)
	}
	return err
}
