package scanner

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dselans/zpeek/checkpoint"
	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/config"
	"github.com/dselans/zpeek/sink"
)

const (
	CheckpointBufferSize = 1000
)

// ScanJob is a single file handed from the reader to a worker
type ScanJob struct {
	Path string
}

type Scanner struct {
	cfg    *config.Config
	log    *logrus.Entry
	store  checkpoint.Store
	sink   sink.Sink
	tracer opentracing.Tracer

	cp    *types.Checkpoint
	stats *stats
	last  time.Time

	hashes   map[uint64]string
	hashesMu *sync.Mutex
}

func New(cfg *config.Config, store checkpoint.Store, s sink.Sink) (*Scanner, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	if store == nil {
		return nil, errors.New("checkpoint store cannot be nil")
	}

	if s == nil {
		return nil, errors.New("sink cannot be nil")
	}

	cp := types.New()

	if !cfg.TOML.Config.DisableCheckpointing && !cfg.CLI.Scan.DisableResume {
		loaded, err := store.Load()
		if err != nil {
			return nil, errors.Wrap(err, "unable to load checkpoint")
		}

		cp = loaded
	}

	return &Scanner{
		cfg:      cfg,
		log:      logrus.WithField("pkg", "scanner"),
		store:    store,
		sink:     s,
		tracer:   opentracing.GlobalTracer(),
		cp:       cp,
		stats:    newStats(),
		hashes:   seedHashes(cp),
		hashesMu: &sync.Mutex{},
	}, nil
}

// seedHashes lets the duplicate check see files scanned in earlier runs
func seedHashes(cp *types.Checkpoint) map[uint64]string {
	hashes := make(map[uint64]string)

	cp.Lock()
	defer cp.Unlock()

	for path, e := range cp.SourceFiles {
		if e.Hash == "" || e.Kind == KindDuplicate {
			continue
		}

		sum, err := strconv.ParseUint(e.Hash, 16, 64)
		if err != nil {
			continue
		}

		if first, ok := hashes[sum]; !ok || path < first {
			hashes[sum] = path
		}
	}

	return hashes
}

// WithTracer replaces the global tracer used for per-file spans
func (s *Scanner) WithTracer(t opentracing.Tracer) *Scanner {
	s.tracer = t
	return s
}

// Checkpoint returns the checkpoint the scanner records into
func (s *Scanner) Checkpoint() *types.Checkpoint {
	return s.cp
}

// Run scans every matched source file. Decode failures are recorded as
// results; Run only fails on pipeline errors (sink, checkpoint, globbing).
func (s *Scanner) Run(shutdownCtx context.Context) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "Run",
	})

	if s.cfg.CLI.Scan.DryRun {
		return s.dryRun()
	}

	numWorkers := s.cfg.TOML.Config.NumWorkers

	jobCh := make(chan *ScanJob, numWorkers)
	entryCh := make(chan *types.Entry, numWorkers)
	cpCh := make(chan *types.Entry, CheckpointBufferSize)

	g, ctx := errgroup.WithContext(shutdownCtx)

	// Launch reader
	g.Go(func() error {
		llog.Debug("reader start")
		defer llog.Debug("reader exit")
		defer close(jobCh)

		if err := s.runReader(ctx, jobCh); err != nil {
			return errors.Wrap(err, "error in reader")
		}

		return nil
	})

	// Launch workers
	workersWg := &sync.WaitGroup{}

	for i := 0; i < numWorkers; i++ {
		i := i
		workersWg.Add(1)

		g.Go(func() error {
			llog.Debugf("worker %d start", i)
			defer llog.Debugf("worker %d exit", i)
			defer workersWg.Done()

			if err := s.runWorker(ctx, i, jobCh, entryCh); err != nil {
				return errors.Wrapf(err, "error in worker %d", i)
			}

			return nil
		})
	}

	g.Go(func() error {
		workersWg.Wait()
		close(entryCh)
		return nil
	})

	// Launch writer
	g.Go(func() error {
		llog.Debug("writer start")
		defer llog.Debug("writer exit")
		defer close(cpCh)

		if err := s.runWriter(ctx, entryCh, cpCh); err != nil {
			return errors.Wrap(err, "error in writer")
		}

		return nil
	})

	// Launch checkpointer
	g.Go(func() error {
		llog.Debug("checkpointer start")
		defer llog.Debug("checkpointer exit")

		if err := s.runCheckpointer(cpCh); err != nil {
			return errors.Wrap(err, "error in checkpointer")
		}

		return nil
	})

	// Launch reporter; it outlives the pipeline only until reportCancel
	reportCtx, reportCancel := context.WithCancel(context.Background())
	reportDone := make(chan struct{})

	go func() {
		defer close(reportDone)
		s.runReporter(reportCtx, s.cfg.CLI.Scan.ReportInterval)
	}()

	err := g.Wait()

	reportCancel()
	<-reportDone

	if err != nil {
		return err
	}

	if shutdownCtx.Err() != nil {
		llog.Debug("received shutdown signal, checkpoint left incomplete")
		return nil
	}

	if err := s.complete(); err != nil {
		return errors.Wrap(err, "unable to complete checkpoint")
	}

	if err := s.writeReport(s.cfg.CLI.Scan.ReportOutput); err != nil {
		return errors.Wrap(err, "unable to write report")
	}

	llog.Debug("scan run completed")

	return nil
}

func (s *Scanner) dryRun() error {
	files, err := s.listFiles()
	if err != nil {
		return errors.Wrap(err, "unable to list source files")
	}

	for _, f := range files {
		s.log.WithField("path", f).Info("would scan")
	}

	s.log.Infof("dry run: %d file(s) matched", len(files))

	return nil
}
