package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

func TestNewRequiresProject(t *testing.T) {
	if _, err := New(context.Background(), Config{Location: "us-central1"}); err == nil {
		t.Fatal("expected project id error")
	}
}

func TestDescribeSchema(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true, Description: "free-form labels"},
		{Name: "address", Type: bigquery.RecordFieldType, Schema: bigquery.Schema{
			{Name: "city", Type: bigquery.StringFieldType},
		}},
	}

	fields := describeSchema(schema)
	if len(fields) != 3 {
		t.Fatalf("fields = %d", len(fields))
	}
	if fields[0]["name"] != "id" || fields[0]["type"] != "INTEGER" || fields[0]["mode"] != "REQUIRED" {
		t.Fatalf("id field = %+v", fields[0])
	}
	if fields[1]["mode"] != "REPEATED" || fields[1]["description"] != "free-form labels" {
		t.Fatalf("tags field = %+v", fields[1])
	}
	nested, ok := fields[2]["fields"].([]warehouse.Field)
	if !ok || len(nested) != 1 || nested[0]["mode"] != "NULLABLE" {
		t.Fatalf("address field = %+v", fields[2])
	}
}

func TestObjectKind(t *testing.T) {
	if objectKind(bigquery.ViewTable) != warehouse.KindView {
		t.Fatal("view table should map to KindView")
	}
	if objectKind(bigquery.RegularTable) != warehouse.KindTable {
		t.Fatal("regular table should map to KindTable")
	}
}

func TestToRowNormalizesValues(t *testing.T) {
	row := toRow(map[string]bigquery.Value{
		"amount": big.NewRat(5, 2),
		"name":   "a",
		"nested": map[string]bigquery.Value{"n": big.NewRat(1, 1)},
		"list":   []bigquery.Value{int64(1), int64(2)},
	})
	if row["amount"] != "2.500000000" {
		t.Fatalf("amount = %#v", row["amount"])
	}
	if row["name"] != "a" {
		t.Fatalf("name = %#v", row["name"])
	}
	nested := row["nested"].(map[string]any)
	if nested["n"] != "1.000000000" {
		t.Fatalf("nested = %#v", nested)
	}
	if list := row["list"].([]any); len(list) != 2 || list[1] != int64(2) {
		t.Fatalf("list = %#v", row["list"])
	}
}

func TestMapErrorNotFound(t *testing.T) {
	err := mapError(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 404, Message: "Not found: Table proj:ds.t"}))
	if !errors.Is(err, warehouse.ErrObjectNotFound) {
		t.Fatalf("mapError() = %v, want ErrObjectNotFound", err)
	}

	other := &googleapi.Error{Code: 400, Message: "Syntax error"}
	if got := mapError(other); got != other {
		t.Fatalf("mapError() = %v, want passthrough", got)
	}
}
