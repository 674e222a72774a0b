package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/config"
	"github.com/dselans/zpeek/validate"
)

const (
	RedisKeyPrefix = "zpeek:checkpoint:"
)

// Store persists checkpoints between runs
type Store interface {
	Load() (*types.Checkpoint, error)
	Save(cp *types.Checkpoint) error
	Close() error
}

// New returns the checkpoint store selected by cfg. Redis is used when
// config.checkpoint_redis is set, otherwise the checkpoint file.
func New(cfg *config.Config) (Store, error) {
	if cfg == nil || cfg.TOML == nil || cfg.TOML.Config == nil {
		return nil, errors.New("config cannot be nil")
	}

	c := cfg.TOML.Config

	if c.CheckpointRedis != "" {
		return NewRedisStore(c.CheckpointRedis, filepath.Base(c.CheckpointFile))
	}

	return NewFileStore(c.CheckpointFile), nil
}

// FileStore keeps the checkpoint as a JSON file
type FileStore struct {
	file string
}

func NewFileStore(file string) *FileStore {
	return &FileStore{file: file}
}

// Load reads the checkpoint file, or returns a fresh checkpoint if it does
// not exist yet.
func (f *FileStore) Load() (*types.Checkpoint, error) {
	startedAt := time.Now()
	logrus.Debugf("checkpoint loading started at '%s'", startedAt)

	defer func() {
		logrus.Debugf("checkpoint loading took '%s'", time.Since(startedAt))
	}()

	data, err := os.ReadFile(f.file)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Debugf("creating checkpoint '%s'", f.file)
			return types.New(), nil
		}

		return nil, errors.Wrap(err, "unable to read checkpoint file")
	}

	logrus.Debugf("loading checkpoint file '%s'", f.file)

	return unmarshal(data)
}

// Save writes the checkpoint to a temp file and renames it into place
func (f *FileStore) Save(cp *types.Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.file), filepath.Base(f.file)+".*")
	if err != nil {
		return errors.Wrap(err, "unable to create temp checkpoint file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write checkpoint file")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close checkpoint file")
	}

	if err := os.Rename(tmp.Name(), f.file); err != nil {
		return errors.Wrap(err, "unable to rename checkpoint file")
	}

	return nil
}

func (f *FileStore) Close() error {
	return nil
}

// RedisStore keeps the checkpoint as a JSON blob in redis
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr, name string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "unable to reach redis at '%s'", addr)
	}

	return &RedisStore{
		client: client,
		key:    RedisKey(name),
	}, nil
}

// RedisKey returns the key a checkpoint named name is stored under
func RedisKey(name string) string {
	return RedisKeyPrefix + name
}

func (r *RedisStore) Load() (*types.Checkpoint, error) {
	data, err := r.client.Get(r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			logrus.Debugf("creating checkpoint '%s'", r.key)
			return types.New(), nil
		}

		return nil, errors.Wrap(err, "unable to get checkpoint from redis")
	}

	return unmarshal(data)
}

func (r *RedisStore) Save(cp *types.Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	if err := r.client.Set(r.key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "unable to save checkpoint to redis")
	}

	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func unmarshal(data []byte) (*types.Checkpoint, error) {
	cp := types.New()
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal checkpoint")
	}

	if err := validate.Checkpoint(cp); err != nil {
		return nil, errors.Wrap(err, "invalid checkpoint")
	}

	return cp, nil
}
