package scanner

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
)

// runWriter hands every entry to the sink and forwards it to the
// checkpointer. It drains entryCh until the workers close it, so writes
// are not cut short by a shutdown signal.
func (s *Scanner) runWriter(ctx context.Context, entryCh <-chan *types.Entry, cpCh chan<- *types.Entry) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "runWriter",
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	writeCtx := context.WithoutCancel(ctx)

	var numWritten int

	for e := range entryCh {
		if err := s.sink.Write(writeCtx, e); err != nil {
			llog.Errorf("error writing entry for '%s': %v", e.Path, err)
			return errors.Wrap(err, "error writing entry")
		}

		s.stats.record(e)

		cpCh <- e

		numWritten += 1
	}

	llog.Debugf("handled '%d' entries", numWritten)

	return nil
}
