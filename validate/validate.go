package validate

import (
	"github.com/pkg/errors"

	"github.com/dselans/zpeek/checkpoint/types"
)

func Checkpoint(cp *types.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}

	if cp.StartedAt.IsZero() {
		return errors.New("checkpoint started_at cannot be empty")
	}

	for path, e := range cp.SourceFiles {
		if err := Entry(e); err != nil {
			return errors.Wrapf(err, "invalid entry for '%s'", path)
		}

		if e.Path != path {
			return errors.Errorf("entry path '%s' does not match key '%s'", e.Path, path)
		}
	}

	return nil
}

func Entry(e *types.Entry) error {
	if e == nil {
		return errors.New("entry is nil")
	}

	if e.Path == "" {
		return errors.New("entry path cannot be empty")
	}

	if e.Kind == "" {
		return errors.New("entry kind cannot be empty")
	}

	if e.Kind == "ok" && e.Error != "" {
		return errors.New("entry has kind 'ok' but carries an error")
	}

	if e.Kind != "ok" && e.Kind != "duplicate" && e.Error == "" {
		return errors.Errorf("entry has kind '%s' but no error", e.Kind)
	}

	return nil
}
