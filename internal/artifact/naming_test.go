package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"PCI_BALLOON", "pci-balloon"},
		{"  STEMI  ", "stemi"},
		{"../../etc/passwd", "etc-passwd"},
		{"", "artifact"},
		{"***", "artifact"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := Slug(tc.in); got != tc.expected {
				t.Fatalf("expected %s got %s", tc.expected, got)
			}
		})
	}
}

func TestNameUniqueUnderConcurrency(t *testing.T) {
	const writers = 64
	const perWriter = 50

	var mu sync.Mutex
	seen := make(map[string]struct{}, writers*perWriter)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			local := make([]string, 0, perWriter)
			for j := 0; j < perWriter; j++ {
				local = append(local, Name("CPR", "mp4"))
			}
			mu.Lock()
			defer mu.Unlock()
			for _, name := range local {
				if _, dup := seen[name]; dup {
					t.Errorf("duplicate name %s", name)
				}
				seen[name] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(seen) != writers*perWriter {
		t.Fatalf("expected %d names got %d", writers*perWriter, len(seen))
	}
	for name := range seen {
		if !strings.HasPrefix(name, "cpr-") || !strings.HasSuffix(name, ".mp4") {
			t.Fatalf("unexpected name shape %s", name)
		}
		break
	}
}

func TestLocalPutConcurrentWritersDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/files")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := store.Put(ctx, "STEMI", ".mp4", "video/mp4", strings.NewReader("frame-data"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 files got %d", len(entries))
	}
}

func TestLocalPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/files")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	location, err := store.Put(context.Background(), "cpr", "mp4", "video/mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(location, "/files/cpr-") {
		t.Fatalf("unexpected location %s", location)
	}
	if _, err := store.Path(filepath.Base(location)); err != nil {
		t.Fatalf("expected stored file to resolve: %v", err)
	}
	for _, bad := range []string{"../secret", ".env", "", "a/b"} {
		if _, err := store.Path(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
