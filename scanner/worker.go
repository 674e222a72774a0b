package scanner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/inflate"
)

const (
	KindDuplicate = "duplicate"
	kindCanceled  = "canceled"
)

func (s *Scanner) runWorker(
	shutdownCtx context.Context,
	id int,
	jobCh <-chan *ScanJob,
	entryCh chan<- *types.Entry,
) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "runWorker",
		"id":     id,
	})

	llog.Debug("start")
	defer llog.Debug("exit")

	var numProcessed int

MAIN:
	for {
		select {
		case <-shutdownCtx.Done():
			llog.Debug("received shutdown signal")
			break MAIN
		case job, open := <-jobCh:
			if !open {
				llog.Debug("job channel closed - exiting worker")
				break MAIN
			}

			e := s.scanFile(shutdownCtx, job.Path)
			if e.Kind == kindCanceled {
				// interrupted mid-file; leave it for the next run
				break MAIN
			}

			select {
			case <-shutdownCtx.Done():
				break MAIN
			case entryCh <- e:
			}

			numProcessed += 1
		}
	}

	llog.Debugf("handled '%d' jobs", numProcessed)

	return nil
}

// scanFile decodes the zlib header at the start of path. Failures of any
// kind are reported in the returned entry.
func (s *Scanner) scanFile(ctx context.Context, path string) *types.Entry {
	llog := s.log.WithFields(logrus.Fields{
		"method": "scanFile",
		"path":   path,
	})

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "scan_file")
	defer span.Finish()

	span.SetTag("path", path)

	e, err := s.decodeFile(ctx, llog, path)
	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("event", "error", "message", err.Error())
	}

	span.SetTag("kind", e.Kind)
	span.SetTag("size", e.Size)

	llog.WithField("kind", e.Kind).Debug("scanned")

	return e
}

func (s *Scanner) decodeFile(ctx context.Context, llog *logrus.Entry, path string) (*types.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		err = errors.Wrap(err, "unable to open source file")
		return types.NewEntry(path, 0, inflate.Header{}, err), err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		err = errors.Wrap(err, "unable to stat source file")
		return types.NewEntry(path, 0, inflate.Header{}, err), err
	}

	var hash string

	if !s.cfg.TOML.Config.DisableDupecheck {
		sum, err := hashFile(f)
		if err != nil {
			return types.NewEntry(path, info.Size(), inflate.Header{}, err), err
		}

		hash = fmt.Sprintf("%016x", sum)

		if first, dup := s.checkDuplicate(sum, path); dup {
			llog.Debugf("content identical to '%s'", first)

			return &types.Entry{
				Path:      path,
				Size:      info.Size(),
				Hash:      hash,
				Kind:      KindDuplicate,
				Duplicate: first,
				ScannedAt: nowUTC(),
			}, nil
		}
	}

	hdr, err := inflate.Decode(ctx, f,
		inflate.WithChunkSize(s.cfg.TOML.Config.ChunkSize),
		inflate.WithObserver(func(ev inflate.Event) {
			llog.WithFields(logrus.Fields{
				"state": ev.State,
				"value": fmt.Sprintf("%b", ev.Value),
			}).Debug("field")
		}),
	)

	e := types.NewEntry(path, info.Size(), hdr, err)
	e.Hash = hash

	return e, err
}

// hashFile hashes the whole file and rewinds it
func hashFile(f *os.File) (uint64, error) {
	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, errors.Wrap(err, "unable to hash source file")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "unable to rewind source file")
	}

	return d.Sum64(), nil
}

// checkDuplicate records sum for path and reports the first path seen with
// the same content, if any.
func (s *Scanner) checkDuplicate(sum uint64, path string) (string, bool) {
	s.hashesMu.Lock()
	defer s.hashesMu.Unlock()

	if first, ok := s.hashes[sum]; ok && first != path {
		return first, true
	}

	s.hashes[sum] = path

	return "", false
}
