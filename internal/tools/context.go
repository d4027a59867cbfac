package tools

import "context"

// Metadata identifies the run and persona on whose behalf a tool executes.
// It travels on the context so handlers can validate arguments against the
// run without every tool taking extra parameters.
type Metadata struct {
	RunID   string
	Symbol  string
	Persona string
}

type metadataKey struct{}

// NewContext attaches run metadata to a context.
func NewContext(ctx context.Context, meta Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, meta)
}

// MetadataFromContext extracts run metadata if present.
func MetadataFromContext(ctx context.Context) (Metadata, bool) {
	meta, ok := ctx.Value(metadataKey{}).(Metadata)
	return meta, ok
}
