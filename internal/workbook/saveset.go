package workbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

type pending struct {
	path string
	tabs []Tab
}

// SaveSet is a group of workbooks written together or not at all.
type SaveSet struct {
	writer  *Writer
	entries []pending
}

// NewSaveSet starts an empty save set
func (w *Writer) NewSaveSet() *SaveSet {
	return &SaveSet{writer: w}
}

// Add queues a workbook. Adding the same path again replaces its tabs.
func (s *SaveSet) Add(path string, tabs ...Tab) {
	for i, e := range s.entries {
		if e.path == path {
			s.entries[i].tabs = tabs
			return
		}
	}
	s.entries = append(s.entries, pending{path: path, tabs: tabs})
}

// Paths returns the queued targets in order
func (s *SaveSet) Paths() []string {
	paths := make([]string, len(s.entries))
	for i, e := range s.entries {
		paths[i] = e.path
	}
	return paths
}

// Save probes every target for a lock, renders all workbooks to temporary
// files and then moves them into place. A lock or a render failure leaves
// every target untouched.
func (s *SaveSet) Save() error {
	log := s.writer.logger
	if len(s.entries) == 0 {
		return nil
	}

	if err := CheckUnlocked(s.Paths()...); err != nil {
		log.WithError(err).Error("Save aborted, a target is open in another program")
		return err
	}

	temps := make([]string, 0, len(s.entries))
	cleanup := func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}

	for _, e := range s.entries {
		if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
			cleanup()
			return errors.FileError(errors.CodeDirectoryError, filepath.Dir(e.path), err)
		}
		tmp := tempPath(e.path)
		f, err := s.writer.render(e.tabs)
		if err != nil {
			cleanup()
			return errors.InternalError(errors.CodeProcessingError, "rendering "+filepath.Base(e.path), err)
		}
		err = f.SaveAs(tmp)
		f.Close()
		if err != nil {
			cleanup()
			return errors.FileError(errors.CodeFilePermission, e.path, err)
		}
		temps = append(temps, tmp)
	}

	for i, e := range s.entries {
		if err := os.Rename(temps[i], e.path); err != nil {
			cleanup()
			return errors.FileError(errors.CodeFilePermission, e.path, err).
				WithContext("written", s.Paths()[:i])
		}
		log.WithFields(logger.Fields{
			"file_path": e.path,
			"tabs":      len(e.tabs),
		}).Info("Workbook saved")
	}
	return nil
}

// tempPath keeps the .xlsx extension, which the writer requires.
func tempPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%d.tmp.xlsx", stem, os.Getpid()))
}

// Backup copies path to its dated backup name and returns the backup path.
// A missing source is not an error and yields an empty path.
func Backup(path string, day time.Time) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer src.Close()

	target := BackupPath(path, day)
	dst, err := os.Create(target)
	if err != nil {
		return "", errors.FileError(errors.CodeFilePermission, target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", errors.FileError(errors.CodeFilePermission, target, err)
	}
	if err := dst.Close(); err != nil {
		return "", errors.FileError(errors.CodeFilePermission, target, err)
	}

	logger.GetGlobalLogger().WithComponent("workbook").WithFields(logger.Fields{
		"file_path": path,
		"backup":    target,
	}).Info("Backup written")
	return target, nil
}
