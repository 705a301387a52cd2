package log_test

import (
	"context"
	"testing"

	"github.com/jrife/skv/utils/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFields(t *testing.T) {
	ctx := log.WithFields(context.Background(), zap.String("txn", "abc"))
	ctx = log.WithFields(ctx, zap.Int("attempt", 2))

	if len(log.Fields(ctx)) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(log.Fields(ctx)))
	}

	if len(log.Fields(context.Background())) != 0 {
		t.Fatalf("expected no fields on an empty context")
	}
}

func TestFieldsSiblings(t *testing.T) {
	parent := log.WithFields(context.Background(), zap.String("txn", "abc"), zap.Int("attempt", 1))
	a := log.WithFields(parent, zap.String("child", "a"))
	b := log.WithFields(parent, zap.String("child", "b"))

	if len(log.Fields(parent)) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(log.Fields(parent)))
	}

	if got := log.Fields(a)[2].String; got != "a" {
		t.Fatalf("expected child a, got %s", got)
	}

	if got := log.Fields(b)[2].String; got != "b" {
		t.Fatalf("expected child b, got %s", got)
	}
}

func TestOperation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	log.Operation(log.WithFields(context.Background(), zap.String("txn", "abc")), logger, "Read").Debug("start")

	entries := logs.All()

	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()

	if fields["operation"] != "Read" || fields["txn"] != "abc" {
		t.Fatalf("unexpected fields %#v", fields)
	}
}
