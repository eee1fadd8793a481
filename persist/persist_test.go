// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/session"
)

func testSnapshot() *Snapshot {
	// Repetitive engine state so zstd and lz4 both get traction.
	state := bytes.Repeat([]byte(`{"pos_x":5,"pos_y":5,"angle":90}`), 32)
	return &Snapshot{
		Owner:      ref.MustParseUserID("@alice:example.org"),
		Slot:       "default",
		SavedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		GridWidth:  60,
		GridHeight: 24,
		Engine:     state,
	}
}

func TestBlobRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			original := testSnapshot()
			blob, err := EncodeSnapshot(original, compression)
			if err != nil {
				t.Fatalf("EncodeSnapshot: %v", err)
			}
			decoded, err := DecodeSnapshot(blob)
			if err != nil {
				t.Fatalf("DecodeSnapshot: %v", err)
			}
			if decoded.Owner != original.Owner || decoded.Slot != original.Slot {
				t.Fatalf("identity mangled: %+v", decoded)
			}
			if decoded.GridWidth != 60 || decoded.GridHeight != 24 {
				t.Fatalf("dimensions mangled: %dx%d", decoded.GridWidth, decoded.GridHeight)
			}
			if !bytes.Equal(decoded.Engine, original.Engine) {
				t.Fatal("engine state mangled")
			}
		})
	}
}

func TestBlobIncompressibleFallsBack(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Engine = []byte{0x01} // too small to compress
	blob, err := EncodeSnapshot(snapshot, CompressionZstd)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	if Compression(blob[4]) != CompressionNone {
		t.Fatalf("tag = %s, want fallback to none", Compression(blob[4]))
	}
	if _, err := DecodeSnapshot(blob); err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
}

func TestBlobCorruptionDetected(t *testing.T) {
	blob, err := EncodeSnapshot(testSnapshot(), CompressionZstd)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{name: "truncated", mangle: func(b []byte) []byte { return b[:10] }},
		{name: "bad magic", mangle: func(b []byte) []byte {
			out := bytes.Clone(b)
			out[0] = 'X'
			return out
		}},
		{name: "flipped payload bit", mangle: func(b []byte) []byte {
			out := bytes.Clone(b)
			out[len(out)-1] ^= 0x40
			return out
		}},
		{name: "flipped checksum bit", mangle: func(b []byte) []byte {
			out := bytes.Clone(b)
			out[20] ^= 0x01
			return out
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSnapshot(tt.mangle(blob)); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("got %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestBlobRejectsUnusableDimensions(t *testing.T) {
	// A structurally valid blob with non-positive dimensions would make
	// the restored session unrunnable, so decode refuses it outright.
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{name: "zero width", width: 0, height: 24},
		{name: "zero height", width: 60, height: 0},
		{name: "negative width", width: -1, height: 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := testSnapshot()
			snapshot.GridWidth = tt.width
			snapshot.GridHeight = tt.height
			blob, err := EncodeSnapshot(snapshot, CompressionNone)
			if err != nil {
				t.Fatalf("EncodeSnapshot: %v", err)
			}
			if _, err := DecodeSnapshot(blob); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("got %v, want ErrCorrupt", err)
			}
		})
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(StoreConfig{
		Path:        filepath.Join(t.TempDir(), "saves.db"),
		Compression: CompressionZstd,
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestStoreSlotLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := ref.MustParseUserID("@alice:example.org")

	if _, err := store.Get(ctx, owner, "default"); !errors.Is(err, ErrNoSave) {
		t.Fatalf("Get on empty slot: got %v, want ErrNoSave", err)
	}

	first := testSnapshot()
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Overwrite the same slot, add a second one.
	second := testSnapshot()
	second.SavedAt = first.SavedAt + 60_000
	second.Engine = bytes.Repeat([]byte("overwritten"), 16)
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	third := testSnapshot()
	third.Slot = "boss-fight"
	third.SavedAt = first.SavedAt + 120_000
	if err := store.Put(ctx, third); err != nil {
		t.Fatalf("Put second slot: %v", err)
	}

	got, err := store.Get(ctx, owner, "default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Engine, second.Engine) {
		t.Fatal("overwrite did not replace slot contents")
	}

	slots, err := store.List(ctx, owner)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(slots) != 2 || slots[0].Slot != "boss-fight" || slots[1].Slot != "default" {
		t.Fatalf("List = %+v, want boss-fight then default", slots)
	}

	// Slots are scoped per owner.
	other, err := store.List(ctx, ref.MustParseUserID("@bob:example.org"))
	if err != nil {
		t.Fatalf("List other owner: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("other owner sees %d slots", len(other))
	}

	if err := store.Delete(ctx, owner, "default"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, owner, "default"); err != nil {
		t.Fatalf("Delete empty slot: %v", err)
	}
	if _, err := store.Get(ctx, owner, "default"); !errors.Is(err, ErrNoSave) {
		t.Fatalf("Get after delete: got %v, want ErrNoSave", err)
	}
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Put(ctx context.Context, snapshot *Snapshot) error {
	return errors.New("disk full")
}

func (failingStore) Get(ctx context.Context, owner ref.UserID, slot string) (*Snapshot, error) {
	return nil, ErrNoSave
}

func (failingStore) Delete(ctx context.Context, owner ref.UserID, slot string) error {
	return errors.New("disk full")
}

func (failingStore) List(ctx context.Context, owner ref.UserID) ([]SlotInfo, error) {
	return nil, errors.New("disk full")
}

func newGameSession(t *testing.T, fake *clock.FakeClock) (*session.Registry, *session.Session) {
	t.Helper()
	registry := session.NewRegistry(session.RegistryConfig{Clock: fake})
	s, err := registry.Create(
		ref.MustParseUserID("@alice:example.org"),
		engine.NewDemo(64, 40),
		session.Config{
			GridWidth:       60,
			GridHeight:      24,
			NoiseThreshold:  4,
			QueueCapacity:   8,
			Overflow:        session.DropOldest,
			CommandsPerTick: 4,
		},
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetSink(ref.MustParseEventID("$sink:example.org")); err != nil {
		t.Fatalf("SetSink: %v", err)
	}
	return registry, s
}

func TestGatewaySaveLoadRoundTrip(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := openTestStore(t)
	gateway := NewGateway(store, fake, nil)
	ctx := context.Background()

	registry, s := newGameSession(t, fake)

	// Play a little so the saved state is not the initial pose.
	for _, c := range []engine.Command{engine.TurnRight, engine.Forward, engine.Forward} {
		if err := s.Enqueue(c); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := s.Step(ctx, time.Second); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := gateway.Save(ctx, s, "default"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s.State() != session.Running {
		t.Fatalf("state after save = %s, want running", s.State())
	}

	snapshot, err := gateway.Load(ctx, s.Owner(), "default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Rebuild a paused session from the snapshot; its next frame
	// must match the original's.
	restored, err := registry.Create(
		ref.MustParseUserID("@bob:example.org"),
		engine.NewDemo(64, 40),
		session.Config{
			GridWidth:       snapshot.GridWidth,
			GridHeight:      snapshot.GridHeight,
			NoiseThreshold:  4,
			QueueCapacity:   8,
			Overflow:        session.DropOldest,
			CommandsPerTick: 4,
			StartPaused:     true,
		},
	)
	if err != nil {
		t.Fatalf("Create restored: %v", err)
	}
	if restored.State() != session.Paused {
		t.Fatalf("restored state = %s, want paused", restored.State())
	}
	if err := restored.RestoreFrom(ctx, snapshot.Engine); err != nil {
		t.Fatalf("RestoreFrom: %v", err)
	}
	if err := restored.SetSink(ref.MustParseEventID("$sink2:example.org")); err != nil {
		t.Fatalf("SetSink: %v", err)
	}
	if err := restored.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if err := s.Step(ctx, time.Second); err != nil {
		t.Fatalf("Step original: %v", err)
	}
	if err := restored.Step(ctx, time.Second); err != nil {
		t.Fatalf("Step restored: %v", err)
	}
	if s.Payload() != restored.Payload() {
		t.Fatal("restored session renders a different frame")
	}
}

func TestGatewaySaveFailureLeavesSessionIntact(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gateway := NewGateway(failingStore{}, fake, nil)
	ctx := context.Background()

	_, s := newGameSession(t, fake)

	if err := gateway.Save(ctx, s, "default"); err == nil {
		t.Fatal("Save against a failing store succeeded")
	}
	if s.State() != session.Running {
		t.Fatalf("state after failed save = %s, want running", s.State())
	}
	// The session still plays.
	if err := s.Enqueue(engine.Forward); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Step(ctx, time.Second); err != nil {
		t.Fatalf("Step: %v", err)
	}
}
