package fqh

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/fqh/basis"
	"github.com/fumin/fqh/interaction"
	"github.com/fumin/fqh/mat"
)

// ErrInvalidConfig is wrapped by every validation failure of a Config.
var ErrInvalidConfig = errors.New("fqh: invalid config")

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config describes a diagonalization run.
type Config struct {
	// Ns is the number of orbitals per layer, which equals the number of flux quanta.
	Ns int `yaml:"ns"`
	// N is the total number of electrons.
	N       int  `yaml:"n"`
	Bilayer bool `yaml:"bilayer"`
	// AspectRatio is the ratio of the two periods of the torus.
	AspectRatio float64 `yaml:"aspect_ratio"`
	// Tunneling is the interlayer tunneling amplitude of a bilayer.
	Tunneling float64 `yaml:"tunneling"`
	// NumE is the number of lowest eigenvalues per sector.
	NumE   int `yaml:"num_e"`
	Cutoff int `yaml:"cutoff"`

	MaxIterations int     `yaml:"max_iterations"`
	Tol           float64 `yaml:"tol"`
	// MaxBasis caps the eigensolver's search space, zero for a cap derived from NumE.
	MaxBasis       int    `yaml:"max_basis"`
	DenseThreshold int    `yaml:"dense_threshold"`
	Seed           uint64 `yaml:"seed"`
	Vectors        bool   `yaml:"vectors"`

	// Sectors lists the momentum sectors to diagonalize, all of them if empty.
	Sectors []int `yaml:"sectors"`
	Workers int   `yaml:"workers"`

	// Storage is where matrix elements are accumulated, StorageMemory or StorageSQLite.
	Storage string `yaml:"storage"`
	// StorageDir holds the SQLite files, a temporary directory if empty.
	StorageDir string `yaml:"storage_dir"`
}

// NewConfig returns a Config with every optional field set to its default.
func NewConfig() Config {
	return Config{
		AspectRatio:    1,
		NumE:           4,
		Cutoff:         interaction.DefaultCutoff,
		MaxIterations:  300,
		Tol:            1e-10,
		DenseThreshold: 64,
		Seed:           1,
		Workers:        runtime.GOMAXPROCS(0),
		Storage:        StorageMemory,
	}
}

// LoadConfig reads a yaml file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return cfg, nil
}

func (cfg Config) Geometry() basis.Geometry {
	if cfg.Bilayer {
		return basis.Bilayer
	}
	return basis.SingleLayer
}

// Validate checks that cfg describes a runnable system.
func (cfg Config) Validate() error {
	if cfg.Ns < 1 {
		return errors.Wrapf(ErrInvalidConfig, "ns %d", cfg.Ns)
	}
	if orbitals := cfg.Geometry().Orbitals(cfg.Ns); orbitals > basis.MaxOrbitals {
		return errors.Wrapf(ErrInvalidConfig, "%d orbitals exceed %d", orbitals, basis.MaxOrbitals)
	}
	if cfg.N < 0 {
		return errors.Wrapf(ErrInvalidConfig, "n %d", cfg.N)
	}
	if !(cfg.AspectRatio > 0) {
		return errors.Wrapf(ErrInvalidConfig, "aspect ratio %f", cfg.AspectRatio)
	}
	if cfg.NumE < 1 {
		return errors.Wrapf(ErrInvalidConfig, "num_e %d", cfg.NumE)
	}
	if cfg.Cutoff < 1 {
		return errors.Wrapf(ErrInvalidConfig, "cutoff %d", cfg.Cutoff)
	}
	if cfg.MaxIterations < 1 {
		return errors.Wrapf(ErrInvalidConfig, "max iterations %d", cfg.MaxIterations)
	}
	if !(cfg.Tol > 0) {
		return errors.Wrapf(ErrInvalidConfig, "tol %g", cfg.Tol)
	}
	if cfg.MaxBasis < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max basis %d", cfg.MaxBasis)
	}
	if cfg.Workers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "workers %d", cfg.Workers)
	}
	for _, k := range cfg.Sectors {
		if k < 0 || k >= cfg.Ns {
			return errors.Wrapf(ErrInvalidConfig, "sector %d of %d", k, cfg.Ns)
		}
	}
	switch cfg.Storage {
	case StorageMemory, StorageSQLite:
	default:
		return errors.Wrapf(ErrInvalidConfig, "storage %q", cfg.Storage)
	}
	return nil
}

func (cfg Config) eigshOptions() mat.EigshOptions {
	return mat.NewEigshOptions().
		MaxIterations(cfg.MaxIterations).
		Tol(cfg.Tol).
		MaxBasis(cfg.MaxBasis).
		DenseThreshold(cfg.DenseThreshold).
		Seed(cfg.Seed).
		Vectors(cfg.Vectors)
}

// sectors returns the requested sectors in ascending order without duplicates.
func (cfg Config) sectors() []int {
	if len(cfg.Sectors) == 0 {
		ks := make([]int, cfg.Ns)
		for k := range ks {
			ks[k] = k
		}
		return ks
	}
	seen := make([]bool, cfg.Ns)
	for _, k := range cfg.Sectors {
		seen[k] = true
	}
	ks := make([]int, 0, len(cfg.Sectors))
	for k, ok := range seen {
		if ok {
			ks = append(ks, k)
		}
	}
	return ks
}
