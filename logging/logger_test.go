package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/ordercrdt/id"
)

func peerID(b byte) id.PeerID {
	var p id.PeerID
	p[31] = b
	return p
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	l := Noop()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
		l.DebugCtx(context.Background(), "x")
		l.InfoCtx(context.Background(), "x")
		l.WarnCtx(context.Background(), "x")
		l.ErrorCtx(context.Background(), "x")
	})
}

func TestDefaultLoggerDoesNotPanic(t *testing.T) {
	l := NewDefaultLogger(slog.LevelDebug)
	assert.NotPanics(t, func() {
		l.Info("hello", "k", "v")
		ctx := WithDefaultArgs(context.Background(), "peer", "abc123")
		l.InfoCtx(ctx, "hello ctx")
		l.InfoCtx(ctx, "hello ctx", slog.Int("attempt", 2))
	})
}

func TestDefaultLoggerAcceptsTypedAttrs(t *testing.T) {
	l := NewDefaultLogger(slog.LevelDebug)
	ctx := WithDefaultArgs(context.Background(), PeerAttr("origin", peerID(7)))
	ctx = WithDefaultArgs(ctx, ItemAttr("item", id.ItemID{Logical: 3, Peer: peerID(7)}))
	assert.NotPanics(t, func() {
		l.DebugCtx(ctx, "applied op")
	})
}

func TestPeerAttrUsesShortTag(t *testing.T) {
	a := PeerAttr("origin", peerID(7))
	assert.Equal(t, "origin", a.Key)
	assert.Equal(t, peerID(7).Tag(), a.Value.String())
	assert.Len(t, a.Value.String(), 8)
}

func TestWithDefaultArgsAccumulatesAcrossCalls(t *testing.T) {
	ctx := WithDefaultArgs(context.Background(), "a", 1)
	ctx = WithDefaultArgs(ctx, "b", 2)
	attrs := attrsFromCtx(ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "b", attrs[1].Key)
}

func TestWithCtxGroupNestsAttrsUnderSingleKey(t *testing.T) {
	ctx := WithDefaultArgs(context.Background(), "a", 1, "b", 2)
	args := withCtxGroup(ctx, []any{"msg_field", "x"})
	require.Len(t, args, 3)
	grouped, ok := args[2].(slog.Attr)
	require.True(t, ok)
	assert.Equal(t, "ctx", grouped.Key)
	assert.Equal(t, slog.KindGroup, grouped.Value.Kind())
	assert.Len(t, grouped.Value.Group(), 2)
}

func TestWithCtxGroupNoopWhenNoAttrs(t *testing.T) {
	args := withCtxGroup(context.Background(), []any{"k", "v"})
	assert.Equal(t, []any{"k", "v"}, args)
}
