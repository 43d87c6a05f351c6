// Package store persists the dolphin progression record.
//
// Three backends implement dolphin.Persistence:
//   - FileStore: a checksummed binary record, written atomically
//   - SQLiteStore: a single-row table in a migrated SQLite database
//   - MemoryStore: an in-process copy, for tests and dry runs
package store

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dolphind/internal/dolphin"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var tracer = otel.Tracer("dolphind/internal/store")

// Store is a dolphin.Persistence that owns resources.
type Store interface {
	dolphin.Persistence
	// Ping verifies the backend can be reached.
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the backend named by kind rooted at path.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(kind) {
	case BackendFile, "":
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", kind)
	}
}

// startSpan opens a span for a persistence operation.
func startSpan(ctx context.Context, op, backend string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.backend", backend),
	))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
