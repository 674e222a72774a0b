package types

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dselans/zpeek/inflate"
)

// Checkpoint contains checkpoint info
type Checkpoint struct {
	SourceFiles map[string]*Entry `json:"source_files"`
	StartedAt   time.Time         `json:"started_at"`
	LastUpdated time.Time         `json:"last_updated"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	sync.Mutex `json:"-"`
}

// Entry is the scan result for a single source file
type Entry struct {
	Path      string    `json:"path" db:"path"`
	Size      int64     `json:"size" db:"size"`
	Hash      string    `json:"hash,omitempty" db:"hash"`
	Kind      string    `json:"kind" db:"kind"`
	Error     string    `json:"error,omitempty" db:"error"`
	Offset    int64     `json:"offset" db:"error_offset"`
	CMF       uint8     `json:"cmf" db:"cmf"`
	FLG       uint8     `json:"flg" db:"flg"`
	Level     string    `json:"level,omitempty" db:"level"`
	Final     bool      `json:"final" db:"final"`
	BlockType string    `json:"block_type,omitempty" db:"block_type"`
	Duplicate string    `json:"duplicate_of,omitempty" db:"duplicate_of"`
	ScannedAt time.Time `json:"scanned_at" db:"scanned_at"`
}

func New() *Checkpoint {
	now := time.Now()

	return &Checkpoint{
		SourceFiles: make(map[string]*Entry),
		StartedAt:   now,
		LastUpdated: now,
	}
}

// NewEntry builds an entry from the outcome of decoding path
func NewEntry(path string, size int64, hdr inflate.Header, err error) *Entry {
	e := &Entry{
		Path:      path,
		Size:      size,
		Kind:      inflate.Kind(err),
		ScannedAt: time.Now().UTC(),
	}

	if err != nil {
		e.Error = err.Error()

		var fe *inflate.FieldError
		if errors.As(err, &fe) {
			e.Offset = fe.Offset
		}

		return e
	}

	e.CMF = hdr.CMF
	e.FLG = hdr.FLG
	e.Level = hdr.Level.String()
	e.Final = hdr.Final
	e.BlockType = hdr.Type.String()

	return e
}

// Done reports whether path was already scanned
func (cp *Checkpoint) Done(path string) bool {
	cp.Lock()
	defer cp.Unlock()

	_, ok := cp.SourceFiles[path]

	return ok
}

// Record stores e and bumps LastUpdated
func (cp *Checkpoint) Record(e *Entry) {
	cp.Lock()
	defer cp.Unlock()

	if cp.SourceFiles == nil {
		cp.SourceFiles = make(map[string]*Entry)
	}

	cp.SourceFiles[e.Path] = e
	cp.LastUpdated = time.Now()
}

// Complete marks the checkpoint as finished
func (cp *Checkpoint) Complete() {
	cp.Lock()
	defer cp.Unlock()

	now := time.Now()
	cp.CompletedAt = &now
	cp.LastUpdated = now
}

// Marshal encodes the checkpoint under its lock
func (cp *Checkpoint) Marshal() ([]byte, error) {
	cp.Lock()
	defer cp.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal checkpoint")
	}

	return data, nil
}
