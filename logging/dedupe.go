package logging

import (
	"context"
	"log/slog"
	"slices"
)

var _ slog.Handler = (*DedupeHandler)(nil)

// DedupeHandler keeps a single value per attribute key, the most recently added one wins.
// Channels add a "channel" attribute to the logger they're given, so this keeps a logger that was already scoped to a channel from repeating the key.
type DedupeHandler struct {
	group string
	keys  map[string]int
	attrs []slog.Attr
	impl  slog.Handler
}

// NewDedupeHandler wraps impl in a [DedupeHandler].
// Passing a nil handler will panic.
func NewDedupeHandler(impl slog.Handler) *DedupeHandler {
	if impl == nil {
		panic("nil implementing handler")
	}
	return &DedupeHandler{
		keys: map[string]int{},
		impl: impl,
	}
}

func (h *DedupeHandler) prefix() string {
	if len(h.group) == 0 {
		return ""
	}
	return h.group + "."
}

func (h *DedupeHandler) clone() *DedupeHandler {
	keys := make(map[string]int, len(h.keys))
	for k, i := range h.keys {
		keys[k] = i
	}
	return &DedupeHandler{
		group: h.group,
		keys:  keys,
		attrs: slices.Clone(h.attrs),
		impl:  h.impl,
	}
}

func (h *DedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.impl.Enabled(ctx, level)
}

func (h *DedupeHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.NumAttrs() > 0 {
		attrs := make([]slog.Attr, 0, record.NumAttrs())
		record.Attrs(func(attr slog.Attr) bool {
			attrs = append(attrs, attr)
			return true
		})
		record = slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
		h = h.withAttrs(attrs)
	}
	record.AddAttrs(h.attrs...)
	return h.impl.Handle(ctx, record)
}

func (h *DedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.withAttrs(attrs)
}

func (h *DedupeHandler) withAttrs(attrs []slog.Attr) *DedupeHandler {
	cp := h.clone()
	prefix := cp.prefix()
	for _, attr := range attrs {
		attr.Key = prefix + attr.Key
		if i, ok := cp.keys[attr.Key]; ok {
			cp.attrs[i] = attr
			continue
		}
		cp.keys[attr.Key] = len(cp.attrs)
		cp.attrs = append(cp.attrs, attr)
	}
	return cp
}

// WithGroup prefixes the keys of attributes added afterward with the group name.
func (h *DedupeHandler) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return h
	}
	cp := h.clone()
	cp.group = cp.prefix() + name
	return cp
}
