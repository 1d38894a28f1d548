package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/fsnotify/fsnotify"
)

// ReloadableAuthorizer delegates to the most recently loaded policy module.
// A module that fails to load leaves the previous one in place.
type ReloadableAuthorizer struct {
	current atomic.Pointer[policyAuthorizer]
}

func NewReloadableAuthorizer(ctx context.Context, policies io.Reader) (*ReloadableAuthorizer, error) {
	a := &ReloadableAuthorizer{}
	if err := a.Reload(ctx, policies); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ReloadableAuthorizer) Authorize(ctx context.Context, r *http.Request, slices []string) error {
	return a.current.Load().Authorize(ctx, r, slices)
}

func (a *ReloadableAuthorizer) Reload(ctx context.Context, policies io.Reader) error {
	loaded, err := NewAuthorizer(ctx, policies)
	if err != nil {
		return err
	}

	a.current.Store(loaded.(*policyAuthorizer))
	return nil
}

const reloadDelay time.Duration = 250 * time.Millisecond

// Watch reloads the policy module whenever the file at path is written or
// replaced, until ctx is done. The parent directory is watched since config
// mounts tend to swap files rather than write to them.
func (a *ReloadableAuthorizer) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	if err = watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	go func() {
		defer watcher.Close()

		logger := logging.GetFromContext(ctx).With("path", path)
		var pending *time.Timer

		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Base(event.Name) != filepath.Base(path) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				if pending != nil {
					pending.Stop()
				}

				pending = time.AfterFunc(reloadDelay, func() {
					if err := a.reloadFile(ctx, path); err != nil {
						logger.Error("failed to reload policies, keeping the previous ones", "err", err.Error())
						return
					}
					logger.Info("policies reloaded")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("policy watcher error", "err", err.Error())
			}
		}
	}()

	return nil
}

func (a *ReloadableAuthorizer) reloadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return a.Reload(ctx, f)
}
