// Package watch polls assembled files and archives the ones that changed
package watch

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/archive"
	"github.com/turbokube/assemble/pkg/assembly"
	"github.com/turbokube/assemble/pkg/schema"
	"go.uber.org/zap"
)

const DefaultInterval = time.Second

// Change is one batch of modified sources, archived for extraction at /
type Change struct {
	Image string
	// Layers holds the changed entries per layer id
	Layers  map[string][]assembly.FileEntry
	Entries []assembly.FileEntry
	Archive archive.Result
}

// Watcher owns Files; it must not be used concurrently with other readers of the same Files
type Watcher struct {
	Fs       afero.Fs
	Manager  assembly.Manager
	Image    string
	Dirs     assembly.BuildDirs
	Files    *assembly.Files
	Interval time.Duration
	// OnChange is called for each non empty batch, an error stops Run
	OnChange func(ctx context.Context, c Change) error
}

func (w *Watcher) fs() afero.Fs {
	if w.Fs == nil {
		return schema.Fs
	}
	return w.Fs
}

// Poll records changed sources and archives them, returning nil without changes
func (w *Watcher) Poll(ctx context.Context) (*Change, error) {
	changed, err := w.Files.RecordAndGetChanged(w.fs())
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}
	m := w.Manager
	if m.Fs == nil {
		m.Fs = w.fs()
	}
	result, err := m.ChangedFilesArchive(ctx, w.Image, w.Dirs, changed)
	if err != nil {
		return nil, err
	}
	zap.L().Info("changed files archived",
		zap.String("image", w.Image),
		zap.Int("files", len(changed)),
		zap.String("archive", result.Path),
	)
	return &Change{
		Image:   w.Image,
		Layers:  assembly.UpdatedEntries(changed),
		Entries: changed,
		Archive: result,
	}, nil
}

// Run polls at Interval until ctx is done, which is not an error
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("watching", zap.String("image", w.Image), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			zap.L().Debug("watch stopped", zap.String("image", w.Image))
			return nil
		case <-ticker.C:
			c, err := w.Poll(ctx)
			if err != nil {
				return err
			}
			if c == nil || w.OnChange == nil {
				continue
			}
			if err := w.OnChange(ctx, *c); err != nil {
				return err
			}
		}
	}
}
