package runguard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// FileGuard uses advisory lock files under Dir, one per name.
type FileGuard struct {
	Dir string
}

func NewFileGuard(dir string) (*FileGuard, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileGuard{Dir: dir}, nil
}

func (g *FileGuard) TryAcquire(_ context.Context, name string) (func(), bool, error) {
	lock := flock.New(g.lockPath(name))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = lock.Unlock() })
	}, true, nil
}

func (g *FileGuard) lockPath(name string) string {
	safe := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(name)
	return filepath.Join(g.Dir, safe+".lock")
}
