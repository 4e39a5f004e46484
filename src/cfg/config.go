package cfg

import (
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

const EnvPrefix = "MINIDB"

type Config struct {
	Environment Environment `default:"dev"`

	DataPath     string `required:"true" split_words:"true"`
	MemoryBudget int64  `default:"67108864" split_words:"true"`
	LogLevel     string `default:"info" split_words:"true"`

	BenchWorkers int `default:"8" split_words:"true"`
	BenchTxns    int `default:"1000" split_words:"true"`
}

// Load reads MINIDB_* variables, first loading the .env file at path if
// one is given. Without a path a .env in the working directory is used if
// present.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, errors.Wrapf(err, "load %s", path)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return errors.Wrap(err, "environment validation")
	}

	if c.MemoryBudget/page.Size < bufferpool.MinPages {
		return errors.Wrapf(
			bufferpool.ErrMemoryTooSmall,
			"MINIDB_MEMORY_BUDGET=%d, need at least %d",
			c.MemoryBudget,
			bufferpool.MinPages*page.Size,
		)
	}

	if c.BenchWorkers < 1 || c.BenchTxns < 1 {
		return errors.New("bench workers and transactions must be positive")
	}

	return nil
}

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}
