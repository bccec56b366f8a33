// Package tasks schedules the data-store binary's periodic housekeeping:
// pruning old durable error rows, and optionally shipping cold level files
// off to internal/archive.
package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sensormesh/fabric/internal/archive"
	"github.com/sensormesh/fabric/internal/logstore"
	"github.com/sensormesh/fabric/pkg/log"
)

// Manager owns the gocron scheduler and every registered job.
type Manager struct {
	sched gocron.Scheduler
}

// Start creates and immediately runs a scheduler. Call Shutdown to stop it.
func Start() (*Manager, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	m := &Manager{sched: sched}
	sched.Start()
	return m, nil
}

// Shutdown stops the scheduler, letting any in-flight job run finish.
func (m *Manager) Shutdown() error {
	return m.sched.Shutdown()
}

// RegisterErrorRetention prunes reading_error rows older than maxAge, once a
// day at 03:00.
func (m *Manager) RegisterErrorRetention(store *logstore.Store, maxAge time.Duration) error {
	_, err := m.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-maxAge)
			n, err := store.DeleteErrorsBefore(cutoff)
			if err != nil {
				log.Errorf("tasks: error retention: %v", err)
				return
			}
			if n > 0 {
				log.Infof("tasks: error retention: pruned %d rows older than %s", n, cutoff)
			}
		}),
	)
	return err
}

// RegisterHistogramPersist snapshots every tracked reading-kind histogram
// to the SQL log store every interval, so inter-arrival history survives a
// restart.
func (m *Manager) RegisterHistogramPersist(hists *logstore.HistogramStore, interval time.Duration) error {
	_, err := m.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := hists.PersistAll(); err != nil {
				log.Errorf("tasks: histogram persist: %v", err)
			}
		}),
	)
	return err
}

// RegisterSeriesArchive walks seriesDir every interval looking for level
// files untouched for longer than staleAfter, uploads each to S3 via
// uploader, and removes the local copy once the upload succeeds. A nil
// uploader makes this a no-op registration so callers can always register
// it regardless of whether S3 archiving is configured.
func (m *Manager) RegisterSeriesArchive(seriesDir string, staleAfter time.Duration, interval time.Duration, uploader *archive.Uploader) error {
	if uploader == nil {
		return nil
	}

	_, err := m.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := sweepSeriesDir(context.Background(), seriesDir, staleAfter, uploader); err != nil {
				log.Errorf("tasks: series archive sweep: %v", err)
			}
		}),
	)
	return err
}

func sweepSeriesDir(ctx context.Context, root string, staleAfter time.Duration, uploader *archive.Uploader) error {
	cutoff := time.Now().Add(-staleAfter)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".dat") {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if _, err := uploader.UploadFile(ctx, path, rel); err != nil {
			log.Warnf("tasks: upload %s failed, leaving file in place: %v", path, err)
			return nil
		}
		if err := archive.RemoveAfterUpload(path); err != nil {
			log.Warnf("tasks: %v", err)
		}
		return nil
	})
}
