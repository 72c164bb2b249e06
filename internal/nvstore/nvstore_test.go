package nvstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/knxip-device/internal/infrastructure/config"
	"github.com/nerrad567/knxip-device/internal/knxip"
)

const testSize = 64

// openers returns a function per backend that opens the same region again.
func openers(t *testing.T) map[string]func(t *testing.T) Region {
	t.Helper()
	dir := t.TempDir()
	open := func(cfg config.StorageConfig) func(t *testing.T) Region {
		return func(t *testing.T) Region {
			t.Helper()
			r, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Open(%s) error = %v", cfg.Backend, err)
			}
			t.Cleanup(func() { r.Close() }) //nolint:errcheck // Test cleanup
			return r
		}
	}
	return map[string]func(t *testing.T) Region{
		BackendFile:   open(config.StorageConfig{Backend: BackendFile, Path: filepath.Join(dir, "nv.bin"), Size: testSize}),
		BackendSQLite: open(config.StorageConfig{Backend: BackendSQLite, Path: filepath.Join(dir, "nv.db"), Size: testSize, BusyTimeout: 5}),
	}
}

func TestFreshRegionIsErased(t *testing.T) {
	mem, err := NewMemory(testSize)
	if err != nil {
		t.Fatal(err)
	}
	regions := map[string]Region{BackendMemory: mem}
	for name, open := range openers(t) {
		regions[name] = open(t)
	}

	for name, r := range regions {
		t.Run(name, func(t *testing.T) {
			if r.Size() != testSize {
				t.Errorf("Size() = %d, want %d", r.Size(), testSize)
			}
			buf := make([]byte, testSize)
			if _, err := r.ReadAt(buf, 0); err != nil {
				t.Fatalf("ReadAt() error = %v", err)
			}
			if !bytes.Equal(buf, bytes.Repeat([]byte{0xFF}, testSize)) {
				t.Errorf("fresh region = %X, want all FF", buf)
			}
		})
	}
}

func TestCommitSurvivesReopen(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			if _, err := r.WriteAt([]byte{1, 2, 3}, 10); err != nil {
				t.Fatalf("WriteAt() error = %v", err)
			}
			if err := r.Commit(); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			// An uncommitted write is lost on reopen.
			if _, err := r.WriteAt([]byte{9}, 0); err != nil {
				t.Fatal(err)
			}

			again := open(t)
			got := make([]byte, 14)
			if _, err := again.ReadAt(got, 0); err != nil {
				t.Fatal(err)
			}
			want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3, 0xFF}
			if !bytes.Equal(got, want) {
				t.Errorf("reopened region = %X, want %X", got, want)
			}

			if err := again.Erase(); err != nil {
				t.Fatalf("Erase() error = %v", err)
			}
			erased := make([]byte, testSize)
			if _, err := open(t).ReadAt(erased, 0); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(erased, bytes.Repeat([]byte{0xFF}, testSize)) {
				t.Error("region not erased after Erase()")
			}
		})
	}
}

func TestBounds(t *testing.T) {
	r, _ := NewMemory(8)

	if _, err := r.WriteAt([]byte{1, 2}, 7); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("WriteAt() past end error = %v, want ErrOutOfRange", err)
	}
	if _, err := r.WriteAt([]byte{1}, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("WriteAt(-1) error = %v, want ErrOutOfRange", err)
	}

	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 6)
	if n != 2 || err != io.EOF {
		t.Errorf("ReadAt() across end = %d, %v; want 2, io.EOF", n, err)
	}
	if _, err := r.ReadAt(buf, 9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadAt() beyond end error = %v, want ErrOutOfRange", err)
	}

	if _, err := NewMemory(0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("NewMemory(0) error = %v, want ErrInvalidSize", err)
	}
}

func TestFileSizeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nv.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3, 4, 5, 6}, 0600); err != nil {
		t.Fatal(err)
	}

	small, err := OpenFile(path, 4)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	_, _ = small.ReadAt(got, 0)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("truncated region = %X", got)
	}

	large, err := OpenFile(path, 8)
	if err != nil {
		t.Fatal(err)
	}
	got = make([]byte, 8)
	_, _ = large.ReadAt(got, 0)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 0xFF, 0xFF}) {
		t.Errorf("extended region = %X", got)
	}
}

func TestClosedRegionRejectsCommit(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "nv.bin"), 8)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := f.Commit(); !errors.Is(err, ErrClosed) {
		t.Errorf("Commit() after Close error = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.StorageConfig{Backend: "eeprom", Size: 8}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(eeprom) error = %v, want ErrUnknownBackend", err)
	}
}

// TestDeviceSaveLoad runs the device persistence cycle on every durable
// backend.
func TestDeviceSaveLoad(t *testing.T) {
	newDevice := func(t *testing.T, r Region) (*knxip.Device, knxip.ConfigID) {
		t.Helper()
		dev, err := knxip.New(knxip.Options{
			PhysicalAddress: knxip.PhysicalAddress(1, 1, 1),
			Capacities:      knxip.Capacities{Callbacks: 2, Assignments: 4, Configs: 2, ConfigSpace: 16, Feedbacks: 1},
			Store:           r,
		})
		if err != nil {
			t.Fatal(err)
		}
		_, _ = dev.RegisterCallback("switch", knxip.HandlerFunc(func(knxip.Message, any) {}), nil, nil)
		id, _ := dev.RegisterConfigString("room", 8, "hall", nil)
		return dev, id
	}

	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			dev, room := newDevice(t, open(t))
			dev.SetPhysicalAddress(knxip.PhysicalAddress(1, 3, 7))
			_, _ = dev.AssignCallback(0, knxip.GroupAddress(0, 0, 5))
			_ = dev.SetConfigString(room, "kitchen")
			if err := dev.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			restoredDev, room := newDevice(t, open(t))
			restored, err := restoredDev.Load()
			if err != nil || !restored {
				t.Fatalf("Load() = %v, %v", restored, err)
			}
			if got := restoredDev.PhysicalAddress(); got != knxip.PhysicalAddress(1, 3, 7) {
				t.Errorf("PhysicalAddress() = %s", got.PhysicalString())
			}
			if v, _ := restoredDev.ConfigString(room); v != "kitchen" {
				t.Errorf("room = %q, want kitchen", v)
			}
			if a := restoredDev.Assignments(); len(a) != 1 || a[0].Address != knxip.GroupAddress(0, 0, 5) {
				t.Errorf("Assignments() = %+v", a)
			}
		})
	}
}

func TestSQLiteHealthCheck(t *testing.T) {
	r, err := Open(context.Background(), config.StorageConfig{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "nv.db"), Size: testSize})
	if err != nil {
		t.Fatal(err)
	}
	s := r.(*SQLite)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	_ = s.Close()
	if err := s.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrClosed", err)
	}
}
