package scanner

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
)

// runCheckpointer records entries into the checkpoint and persists it at
// most once per checkpoint_interval, plus once after cpCh is closed.
//
// NOTE: cpCh is only closed by the writer, so every written entry ends up
// in the checkpoint even during shutdown.
func (s *Scanner) runCheckpointer(cpCh <-chan *types.Entry) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "runCheckpointer",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	for e := range cpCh {
		s.cp.Record(e)

		llog.Debugf("received checkpoint for '%s'", e.Path)

		if err := s.saveCheckpoint(false); err != nil {
			llog.Errorf("error saving checkpoint after '%s': %v", e.Path, err)
		}
	}

	if err := s.saveCheckpoint(true); err != nil {
		return errors.Wrap(err, "unable to save final checkpoint")
	}

	return nil
}

func (s *Scanner) saveCheckpoint(force bool) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "saveCheckpoint",
	})

	if s.cfg.TOML.Config.DisableCheckpointing {
		return nil
	}

	// Skip unless forced, never saved, or CheckpointInterval has passed
	interval := s.cfg.TOML.Config.CheckpointInterval.Duration()
	if !force && !s.last.IsZero() && s.last.Add(interval).After(time.Now()) {
		llog.Debugf("skipping checkpoint save, last save was %v ago", time.Since(s.last))
		return nil
	}

	llog.Debug("saving checkpoint")

	if err := s.store.Save(s.cp); err != nil {
		return errors.Wrap(err, "unable to save checkpoint")
	}

	// Note that a checkpoint save has occurred
	s.last = time.Now()

	return nil
}

// complete marks the checkpoint as finished and persists it
func (s *Scanner) complete() error {
	s.cp.Complete()

	return s.saveCheckpoint(true)
}
