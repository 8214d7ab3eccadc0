package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/duckmesh/warehouse-mcp/internal/resource"
	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

// handleResourcesList answers with a fixed acknowledgement unless
// enumeration is enabled. Listing every table in a large project on each
// call is expensive, so it is opt-in.
func (r *Router) handleResourcesList(ctx context.Context, _ json.RawMessage) Result {
	if !r.enumerateResources {
		return success(map[string]any{"success": true})
	}

	objects, err := r.gateway.ListObjects(ctx)
	if err != nil {
		r.logger.Error("list warehouse objects failed", "error", err)
		return failure(protocolErrorf(KindInternal, "failed to list resources: %v", err))
	}
	descriptors := make([]resource.Descriptor, 0, len(objects))
	for _, object := range objects {
		descriptors = append(descriptors, resource.Describe(object.Ref, object.Kind))
	}
	return success(resourcesListResult{Resources: descriptors})
}

func (r *Router) handleResourcesRead(ctx context.Context, params json.RawMessage) Result {
	var request resourcesReadParams
	if perr := decodeParams(params, &request); perr != nil {
		return failure(perr)
	}
	if request.URI == "" {
		return failure(protocolErrorf(KindInvalidParams, "uri is required"))
	}

	ref, err := resource.Decode(request.URI)
	if err != nil {
		return failure(protocolErrorf(KindInvalidResource, "%v", err))
	}
	if ref.CatalogID != r.catalogID {
		return failure(protocolErrorf(KindInvalidResource, "resource %q is outside project %q", request.URI, r.catalogID))
	}

	fields, err := r.gateway.GetObjectSchema(ctx, ref)
	if err != nil {
		if errors.Is(err, warehouse.ErrObjectNotFound) {
			return failure(protocolErrorf(KindInvalidResource, "resource not found: %s", request.URI))
		}
		r.logger.Error("read object schema failed", "object", ref.String(), "error", err)
		return failure(protocolErrorf(KindInternal, "failed to read resource %s: %v", request.URI, err))
	}
	if fields == nil {
		fields = []warehouse.Field{}
	}
	text, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return failure(protocolErrorf(KindInternal, "encode schema: %v", err))
	}
	return success(resourcesReadResult{Contents: []resourceContent{{
		URI:      request.URI,
		MIMEType: resource.MIMEType,
		Text:     string(text),
	}}})
}
