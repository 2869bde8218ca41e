// Package logging provides the small structured-logging seam used across
// the ordered-list CRDT core: a narrow interface plus a slog-backed
// default, so the core depends on an interface rather than a concrete
// logging library (grounded in shape on the teacher's utils.Logger,
// _examples/drpcorg-chotki/utils/logger.go). Unlike that text-prefixed
// logger, this one carries its component tag as a structured slog
// attribute and threads per-call context as a single nested group rather
// than a flat, ever-growing args slice, and exposes typed attribute
// constructors for this package's own identity types (id.PeerID,
// id.ItemID) instead of asking every call site to hand-format them.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/drpcorg/ordercrdt/id"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

// PeerAttr renders p as a structured attribute under key, using its
// hashed Tag() rather than its full 64-character hex form, so log lines
// stay scannable without losing the collision-resistance a plain
// prefix-truncation would give up (id.PeerID.Tag() is grounded on
// cespare/xxhash, see package id).
func PeerAttr(key string, p id.PeerID) slog.Attr {
	return slog.String(key, p.Tag())
}

// ItemAttr renders it as a structured attribute under key.
func ItemAttr(key string, it id.ItemID) slog.Attr {
	return slog.String(key, it.String())
}

// DefaultLogger wraps a standard library *slog.Logger, tagging every
// record with a "component" attribute instead of text-prefixing the
// message, so the tag survives structured (JSON) handlers and log
// aggregation filters rather than only ever appearing in a text stream.
type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &DefaultLogger{logger: slog.New(handler).With("component", "ordercrdt")}
}

func (d *DefaultLogger) Debug(msg string, args ...any) { d.logger.Debug(msg, args...) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.logger.Info(msg, args...) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.logger.Warn(msg, args...) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.logger.Error(msg, args...) }

type ctxAttrsKey struct{}

// attrsFromCtx returns the slog.Attr group accumulated on ctx by
// WithDefaultArgs, or nil if none has been attached yet.
func attrsFromCtx(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// toAttrs normalizes a *Ctx call's variadic args into slog.Attr values:
// an arg that is already an slog.Attr passes through, otherwise it is
// treated as the start of a string-keyed key/value pair (slog's own
// convention), converted via slog.Any.
func toAttrs(args []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(args))
	for i := 0; i < len(args); i++ {
		if a, ok := args[i].(slog.Attr); ok {
			out = append(out, a)
			continue
		}
		key, _ := args[i].(string)
		if i+1 < len(args) {
			out = append(out, slog.Any(key, args[i+1]))
			i++
		} else {
			out = append(out, slog.Any(key, nil))
		}
	}
	return out
}

// WithDefaultArgs attaches attrs that will be nested under a single "ctx"
// group on every *Ctx log call made with the returned context, e.g. the
// origin peer and message count for the lifetime of one ProcessMessage
// call. Accepts slog.Attr values (PeerAttr, ItemAttr, slog.Int, ...) or
// plain key/value pairs.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	combined := append(append([]slog.Attr{}, attrsFromCtx(ctx)...), toAttrs(args)...)
	return context.WithValue(ctx, ctxAttrsKey{}, combined)
}

// withCtxGroup appends the context's accumulated attrs to args as a
// single nested "ctx" group, so a log line carries its call-scoped fields
// as one structured value rather than a flat, ever-growing key/value run.
func withCtxGroup(ctx context.Context, args []any) []any {
	attrs := attrsFromCtx(ctx)
	if len(attrs) == 0 {
		return args
	}
	return append(args, slog.Any("ctx", slog.GroupValue(attrs...)))
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Debug(msg, withCtxGroup(ctx, args)...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Info(msg, withCtxGroup(ctx, args)...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Warn(msg, withCtxGroup(ctx, args)...)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.logger.Error(msg, withCtxGroup(ctx, args)...)
}

// noop discards every log call; it is the Logger used when a caller does
// not supply one.
type noop struct{}

func (noop) Debug(string, ...any)                     {}
func (noop) Info(string, ...any)                      {}
func (noop) Warn(string, ...any)                      {}
func (noop) Error(string, ...any)                     {}
func (noop) DebugCtx(context.Context, string, ...any) {}
func (noop) InfoCtx(context.Context, string, ...any)  {}
func (noop) WarnCtx(context.Context, string, ...any)  {}
func (noop) ErrorCtx(context.Context, string, ...any) {}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noop{} }
