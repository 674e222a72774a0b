package config

import (
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	EnvVarPrefix = "ZPEEK"

	CommandScan  = "scan"
	CommandServe = "serve"

	DefaultNumWorkers         = 2
	DefaultChunkSize          = 4096
	DefaultCheckpointInterval = duration(5 * time.Second)
	DefaultCheckpointFile     = "checkpoint.json"
	DefaultDestinationType    = "file"
	DefaultDestinationPath    = "-"
	DefaultDestinationTable   = "zlib_headers"
	DefaultListen             = ":8080"
	DefaultMaxBody            = 1 << 20

	MinNumWorkers         = 1
	MaxNumWorkers         = 100
	MinChunkSize          = 1
	MaxChunkSize          = 1 << 20
	MinCheckpointInterval = duration(1 * time.Millisecond)
	MaxCheckpointInterval = duration(1 * time.Hour)
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validDestinationTypes = map[string]struct{}{
		"file":     {},
		"postgres": {},
		"mysql":    {},
	}
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Config      *TOMLConfig      `toml:"config"`
	Source      *TOMLSource      `toml:"source"`
	Destination *TOMLDestination `toml:"destination"`
	Server      *TOMLServer      `toml:"server"`
}

type TOMLConfig struct {
	LogLevel             string   `toml:"log_level"`
	NumWorkers           int      `toml:"num_workers"`
	ChunkSize            int      `toml:"chunk_size"`
	CheckpointFile       string   `toml:"checkpoint_file"`
	CheckpointRedis      string   `toml:"checkpoint_redis"`
	CheckpointInterval   duration `toml:"checkpoint_interval"`
	DisableCheckpointing bool     `toml:"disable_checkpointing"`
	DisableDupecheck     bool     `toml:"disable_dupecheck"`
}

type TOMLSource struct {
	Files   []string `toml:"files"`
	Exclude []string `toml:"exclude"`
}

type TOMLDestination struct {
	Type  string `toml:"type"`
	Path  string `toml:"path"`
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`
}

type TOMLServer struct {
	Listen  string `toml:"listen"`
	MaxBody int64  `toml:"max_body"`
}

type CLI struct {
	ConfigFile   string           `kong:"help='Path to the TOML config file',type='path',default='config.toml',short='c'"`
	Debug        bool             `kong:"help='Enable debug output',short='d'"`
	Quiet        bool             `kong:"help='Disable showing pre/post output',short='q'"`
	DisableColor bool             `kong:"help='Disable color output',short='C'"`
	Version      kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Scan  ScanCmd  `kong:"cmd,default='1',help='Scan source files for zlib headers'"`
	Serve ServeCmd `kong:"cmd,help='Serve the inspect API over HTTP'"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

type ScanCmd struct {
	DryRun         bool          `kong:"help='List matched files without decoding them',short='n'"`
	DisableResume  bool          `kong:"help='Disable resuming from checkpoint',short='R'"`
	ReportOutput   string        `kong:"help='Output file for the final report',short='o'"`
	ReportInterval time.Duration `kong:"help='Interval to report progress',default='5s',short='r'"`
}

type ServeCmd struct {
	Listen string `kong:"help='Address to listen on (overrides server.listen)',short='l'"`
}

func NewConfig() (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile, cli.Command())
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if cli.Serve.Listen != "" {
		tomlConfig.Server.Listen = cli.Serve.Listen
	}

	return &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}, nil
}

// Command returns the selected sub-command; scan when none was parsed.
func (c *CLI) Command() string {
	if c == nil || c.Ctx == nil {
		return CommandScan
	}

	cmd := strings.Fields(c.Ctx.Command())
	if len(cmd) == 0 {
		return CommandScan
	}

	return cmd[0]
}

// LogLevel resolves the effective log level; --debug wins over the file.
func (c *Config) LogLevel() logrus.Level {
	if c.CLI != nil && c.CLI.Debug {
		return logrus.DebugLevel
	}

	if c.TOML != nil && c.TOML.Config != nil && c.TOML.Config.LogLevel != "" {
		if lvl, err := logrus.ParseLevel(c.TOML.Config.LogLevel); err == nil {
			return lvl
		}
	}

	return logrus.InfoLevel
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Config == nil {
		t.Config = &TOMLConfig{}
	}

	if t.Source == nil {
		t.Source = &TOMLSource{}
	}

	if t.Destination == nil {
		t.Destination = &TOMLDestination{}
	}

	if t.Server == nil {
		t.Server = &TOMLServer{}
	}

	// Set defaults for [config]
	if t.Config.NumWorkers == 0 {
		t.Config.NumWorkers = DefaultNumWorkers
	}

	if t.Config.ChunkSize == 0 {
		t.Config.ChunkSize = DefaultChunkSize
	}

	if t.Config.CheckpointInterval == 0 {
		t.Config.CheckpointInterval = DefaultCheckpointInterval
	}

	if t.Config.CheckpointFile == "" {
		t.Config.CheckpointFile = DefaultCheckpointFile
	}

	// Set defaults for [destination]
	if t.Destination.Type == "" {
		t.Destination.Type = DefaultDestinationType
	}

	if t.Destination.Type == "file" && t.Destination.Path == "" {
		t.Destination.Path = DefaultDestinationPath
	}

	if t.Destination.Table == "" {
		t.Destination.Table = DefaultDestinationTable
	}

	// Set defaults for [server]
	if t.Server.Listen == "" {
		t.Server.Listen = DefaultListen
	}

	if t.Server.MaxBody == 0 {
		t.Server.MaxBody = DefaultMaxBody
	}

	return nil
}

func Validate(c *Config) error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateCLIArgs(c.CLI); err != nil {
		return errors.Wrap(err, "error validating CLI args")
	}

	if err := validateTOML(c.TOML, c.CLI.Command()); err != nil {
		return errors.Wrap(err, "error validating toml config")
	}

	return nil
}

func validateTOML(t *TOML, command string) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [config]
	if err := validateTOMLConfig(t.Config); err != nil {
		return errors.Wrap(err, "config error(s)")
	}

	if command == CommandServe {
		if err := validateTOMLServer(t.Server); err != nil {
			return errors.Wrap(err, "server error(s)")
		}

		return nil
	}

	// Validate [source]
	if err := validateTOMLSource(t.Source); err != nil {
		return errors.Wrap(err, "error validating toml [source]")
	}

	// Validate [destination]
	if err := validateTOMLDestination(t.Destination); err != nil {
		return errors.Wrap(err, "destination error(s)")
	}

	return nil
}

func validateTOMLConfig(c *TOMLConfig) error {
	if c == nil {
		return errors.New("config cannot be empty")
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return errors.Errorf("config.log_level %s is invalid", c.LogLevel)
		}
	}

	if c.NumWorkers < MinNumWorkers || c.NumWorkers > MaxNumWorkers {
		return errors.Errorf("config.num_workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return errors.Errorf("config.chunk_size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}

	if c.CheckpointInterval < MinCheckpointInterval || c.CheckpointInterval > MaxCheckpointInterval {
		return errors.Errorf("config.checkpoint_interval must be between %s and %s", MinCheckpointInterval.Duration(), MaxCheckpointInterval.Duration())
	}

	if c.CheckpointFile == "" && c.CheckpointRedis == "" {
		return errors.New("config.checkpoint_file cannot be empty")
	}

	return nil
}

func validateTOMLSource(s *TOMLSource) error {
	if s == nil {
		return errors.New("source cannot be empty")
	}

	if len(s.Files) == 0 {
		return errors.New("source.files cannot be empty")
	}

	for _, p := range s.Files {
		if !doublestar.ValidatePattern(p) {
			return errors.Errorf("source.files pattern '%s' is invalid", p)
		}
	}

	for _, p := range s.Exclude {
		if !doublestar.ValidatePattern(p) {
			return errors.Errorf("source.exclude pattern '%s' is invalid", p)
		}
	}

	return nil
}

func validateTOMLDestination(d *TOMLDestination) error {
	if d == nil {
		return errors.New("destination cannot be empty")
	}

	if _, ok := validDestinationTypes[d.Type]; !ok {
		return errors.Errorf("destination.type %s is invalid", d.Type)
	}

	switch d.Type {
	case "file":
		if d.Path == "" {
			return errors.New("destination.path cannot be empty")
		}

		return nil
	case "postgres":
		if d.DSN == "" {
			return errors.New("destination.dsn cannot be empty")
		}

		if strings.HasPrefix(d.DSN, "postgres://") || strings.HasPrefix(d.DSN, "postgresql://") {
			if _, err := pq.ParseURL(d.DSN); err != nil {
				return errors.Wrap(err, "error validating destination.dsn")
			}
		}
	case "mysql":
		if d.DSN == "" {
			return errors.New("destination.dsn cannot be empty")
		}

		if _, err := mysql.ParseDSN(d.DSN); err != nil {
			return errors.Wrap(err, "error validating destination.dsn")
		}
	}

	if d.Table == "" {
		return errors.New("destination.table cannot be empty")
	}

	return nil
}

func validateTOMLServer(s *TOMLServer) error {
	if s == nil {
		return errors.New("server cannot be empty")
	}

	if s.Listen == "" {
		return errors.New("server.listen cannot be empty")
	}

	if s.MaxBody < 2 {
		return errors.New("server.max_body must be at least 2 bytes")
	}

	return nil
}

func readCLIArgs() (*CLI, error) {
	cli := &CLI{}
	cli.Ctx = kong.Parse(cli,
		kong.Name("zpeek"),
		kong.Description("Incremental zlib header inspector"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		})

	if err := validateCLIArgs(cli); err != nil {
		return nil, errors.Wrap(err, "error validating args")
	}

	return cli, nil
}

func readTOML(file, command string) (*TOML, error) {
	tomlConfig := &TOML{}

	// Attempt to load file; serve can run on defaults alone
	data, err := os.ReadFile(file)
	if err != nil && !(os.IsNotExist(err) && command == CommandServe) {
		return nil, errors.Wrap(err, "error reading file")
	}

	if err == nil {
		if err := toml.Unmarshal(data, tomlConfig); err != nil {
			return nil, errors.Wrap(err, "error parsing TOML config")
		}
	}

	// Set defaults
	if err := setTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	// Validate loaded config
	if err := validateTOML(tomlConfig, command); err != nil {
		return nil, errors.Wrap(err, "error validating TOML config")
	}

	return tomlConfig, nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if cli.Scan.ReportInterval < 0 {
		return errors.New("report interval cannot be negative")
	}

	return nil
}

// Copied from https://www.kelche.co/blog/go/toml/
type duration time.Duration

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// Duration converts a TOML duration to time.Duration
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}
