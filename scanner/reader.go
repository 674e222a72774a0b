package scanner

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (s *Scanner) runReader(shutdownCtx context.Context, jobCh chan<- *ScanJob) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "runReader",
	})
	llog.Debug("start")
	defer llog.Debug("exit")

	files, err := s.listFiles()
	if err != nil {
		return errors.Wrap(err, "unable to list source files")
	}

	resume := !s.cfg.TOML.Config.DisableCheckpointing && !s.cfg.CLI.Scan.DisableResume

	var numSent int

MAIN:
	for _, f := range files {
		s.stats.matched.Add(1)

		if resume && s.cp.Done(f) {
			llog.Debugf("skipping '%s', already in checkpoint", f)
			s.stats.skipped.Add(1)
			continue
		}

		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case jobCh <- &ScanJob{Path: f}:
			numSent += 1
		}
	}

	llog.Debugf("sent '%d' jobs", numSent)

	return nil
}

// listFiles expands [source] patterns into a sorted, de-duplicated list of
// regular files that match no exclude pattern.
func (s *Scanner) listFiles() ([]string, error) {
	src := s.cfg.TOML.Source
	seen := make(map[string]struct{})

	var files []string

	for _, pattern := range src.Files {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "unable to expand pattern '%s'", pattern)
		}

		for _, m := range matches {
			m = filepath.Clean(m)

			if _, ok := seen[m]; ok {
				continue
			}

			excluded, err := isExcluded(src.Exclude, m)
			if err != nil {
				return nil, err
			}

			if excluded {
				continue
			}

			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)

	return files, nil
}

func isExcluded(patterns []string, path string) (bool, error) {
	for _, p := range patterns {
		ok, err := doublestar.PathMatch(p, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid exclude pattern '%s'", p)
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}
