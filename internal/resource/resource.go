// Package resource maps warehouse objects to MCP resource URIs of the form
// bigquery://{catalog}/{dataset}/{object}/schema and back.
package resource

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

const (
	Scheme        = "bigquery"
	SchemaSegment = "schema"
	MIMEType      = "application/json"
)

var ErrInvalidResource = errors.New("invalid resource URI")

type Descriptor struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

func Encode(ref warehouse.ObjectRef) string {
	return Scheme + "://" + url.PathEscape(ref.CatalogID) + "/" + url.PathEscape(ref.DatasetID) + "/" + url.PathEscape(ref.ObjectID) + "/" + SchemaSegment
}

// Decode reads path segments from the end, so extra leading segments are
// ignored. Query strings and fragments are dropped.
func Decode(uri string) (warehouse.ObjectRef, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), Scheme+"://")
	if !ok {
		return warehouse.ObjectRef{}, fmt.Errorf("%w: %q: scheme must be %s", ErrInvalidResource, uri, Scheme)
	}
	if cut := strings.IndexAny(rest, "?#"); cut >= 0 {
		rest = rest[:cut]
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 4 {
		return warehouse.ObjectRef{}, fmt.Errorf("%w: %q: expected {catalog}/{dataset}/{object}/%s", ErrInvalidResource, uri, SchemaSegment)
	}
	segments := make([]string, len(parts))
	for i, part := range parts {
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return warehouse.ObjectRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidResource, uri, err)
		}
		segments[i] = decoded
	}

	n := len(segments)
	if segments[n-1] != SchemaSegment {
		return warehouse.ObjectRef{}, fmt.Errorf("%w: %q: last path segment must be %q", ErrInvalidResource, uri, SchemaSegment)
	}
	ref := warehouse.ObjectRef{
		CatalogID: segments[0],
		DatasetID: segments[n-3],
		ObjectID:  segments[n-2],
	}
	if err := ref.Validate(); err != nil {
		return warehouse.ObjectRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidResource, uri, err)
	}
	return ref, nil
}

func Describe(ref warehouse.ObjectRef, kind warehouse.ObjectKind) Descriptor {
	return Descriptor{
		URI:      Encode(ref),
		Name:     fmt.Sprintf("%q %s schema", ref.DatasetID+"."+ref.ObjectID, kind),
		MIMEType: MIMEType,
	}
}
