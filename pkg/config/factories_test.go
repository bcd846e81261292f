package config

import (
	"context"
	"strings"
	"testing"
)

func TestCreatePool_FS(t *testing.T) {
	cfg := &PoolConfig{
		Type: "fs",
		FS:   map[string]any{"root": t.TempDir()},
	}

	p, err := CreatePool(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create fs pool: %v", err)
	}
	defer p.Close()

	res, err := p.AddFromBytes(context.Background(), []byte("factory smoke test"))
	if err != nil {
		t.Fatalf("Pool from factory is not usable: %v", err)
	}
	if res.Size != 18 {
		t.Errorf("Expected size 18, got %d", res.Size)
	}
}

func TestCreatePool_FSMissingRoot(t *testing.T) {
	cfg := &PoolConfig{Type: "fs", FS: map[string]any{}}

	if _, err := CreatePool(context.Background(), cfg); err == nil {
		t.Error("Expected error for missing fs root, got nil")
	}
}

func TestCreatePool_Memory(t *testing.T) {
	cfg := &PoolConfig{Type: "memory"}

	p, err := CreatePool(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory pool: %v", err)
	}
	defer p.Close()
}

func TestCreatePool_UnknownType(t *testing.T) {
	cfg := &PoolConfig{Type: "floppy"}

	_, err := CreatePool(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unknown pool type, got nil")
	}
	if !strings.Contains(err.Error(), "floppy") {
		t.Errorf("Error should name the unknown type: %v", err)
	}
}

func TestCreateIndex_Memory(t *testing.T) {
	cfg := &IndexConfig{Type: "memory"}

	idx, err := CreateIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory index: %v", err)
	}
	defer idx.Close()
}

func TestCreateIndex_Badger(t *testing.T) {
	cfg := &IndexConfig{
		Type:   "badger",
		Badger: map[string]any{"path": t.TempDir()},
	}

	idx, err := CreateIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger index: %v", err)
	}
	defer idx.Close()
}

func TestCreateIndex_BadgerMissingPath(t *testing.T) {
	cfg := &IndexConfig{Type: "badger", Badger: map[string]any{}}

	if _, err := CreateIndex(context.Background(), cfg); err == nil {
		t.Error("Expected error for missing badger path, got nil")
	}
}

func TestCreateIndex_UnknownType(t *testing.T) {
	cfg := &IndexConfig{Type: "rolodex"}

	if _, err := CreateIndex(context.Background(), cfg); err == nil {
		t.Error("Expected error for unknown index type, got nil")
	}
}
