// Package warehouse defines the boundary between the request router and the
// analytical warehouse it fronts.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrObjectNotFound = errors.New("warehouse object not found")

// ObjectRef addresses one table or view. CatalogID is the configured
// project and never comes from a client.
type ObjectRef struct {
	CatalogID string
	DatasetID string
	ObjectID  string
}

func (r ObjectRef) Validate() error {
	switch {
	case strings.TrimSpace(r.CatalogID) == "":
		return fmt.Errorf("catalog id is required")
	case strings.TrimSpace(r.DatasetID) == "":
		return fmt.Errorf("dataset id is required")
	case strings.TrimSpace(r.ObjectID) == "":
		return fmt.Errorf("object id is required")
	}
	return nil
}

func (r ObjectRef) String() string {
	return r.CatalogID + "." + r.DatasetID + "." + r.ObjectID
}

type ObjectKind string

const (
	KindTable ObjectKind = "table"
	KindView  ObjectKind = "view"
)

type Object struct {
	Ref  ObjectRef
	Kind ObjectKind
}

// Field is one column description as the backend reports it.
type Field = map[string]any

// Row is one result row keyed by column name.
type Row = map[string]any

type QueryRequest struct {
	SQL            string
	Location       string
	MaxBytesBilled int64
}

type Gateway interface {
	ListObjects(ctx context.Context) ([]Object, error)
	GetObjectSchema(ctx context.Context, ref ObjectRef) ([]Field, error)
	RunQuery(ctx context.Context, request QueryRequest) ([]Row, error)
	Close() error
}
