package main

import (
	"context"
	"encoding/csv"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fumin/fqh"
)

var (
	cfg        = fqh.NewConfig()
	configPath string
	verbose    bool
	timeout    time.Duration
)

// overrides copy a flag's value onto a config read from file.
var overrides = map[string]func(c *fqh.Config){
	"ns":              func(c *fqh.Config) { c.Ns = cfg.Ns },
	"n":               func(c *fqh.Config) { c.N = cfg.N },
	"bilayer":         func(c *fqh.Config) { c.Bilayer = cfg.Bilayer },
	"aspect-ratio":    func(c *fqh.Config) { c.AspectRatio = cfg.AspectRatio },
	"tunneling":       func(c *fqh.Config) { c.Tunneling = cfg.Tunneling },
	"num-e":           func(c *fqh.Config) { c.NumE = cfg.NumE },
	"cutoff":          func(c *fqh.Config) { c.Cutoff = cfg.Cutoff },
	"max-iterations":  func(c *fqh.Config) { c.MaxIterations = cfg.MaxIterations },
	"tol":             func(c *fqh.Config) { c.Tol = cfg.Tol },
	"max-basis":       func(c *fqh.Config) { c.MaxBasis = cfg.MaxBasis },
	"dense-threshold": func(c *fqh.Config) { c.DenseThreshold = cfg.DenseThreshold },
	"seed":            func(c *fqh.Config) { c.Seed = cfg.Seed },
	"sectors":         func(c *fqh.Config) { c.Sectors = cfg.Sectors },
	"workers":         func(c *fqh.Config) { c.Workers = cfg.Workers },
	"storage":         func(c *fqh.Config) { c.Storage = cfg.Storage },
	"storage-dir":     func(c *fqh.Config) { c.StorageDir = cfg.StorageDir },
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Exact diagonalization of fractional quantum Hall states on a torus",
		Long: `Diagonalizes the Coulomb Hamiltonian of electrons in the lowest Landau level
on a torus, one total momentum sector at a time, and prints the lowest
energies of each sector as CSV with columns k,dim,level,energy.

Example:
  run --ns 12 --n 4 --num-e 5
  run --ns 6 --n 4 --bilayer --tunneling 0.1 --sectors 0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mainWithErr(cmd, os.Stdout)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "yaml config file, overridden by flags")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.DurationVar(&timeout, "timeout", 0, "abort after this duration, 0 for no limit")
	f.IntVar(&cfg.Ns, "ns", cfg.Ns, "orbitals per layer")
	f.IntVar(&cfg.N, "n", cfg.N, "electrons")
	f.BoolVar(&cfg.Bilayer, "bilayer", cfg.Bilayer, "two layers")
	f.Float64Var(&cfg.AspectRatio, "aspect-ratio", cfg.AspectRatio, "aspect ratio of the torus")
	f.Float64Var(&cfg.Tunneling, "tunneling", cfg.Tunneling, "interlayer tunneling amplitude")
	f.IntVar(&cfg.NumE, "num-e", cfg.NumE, "eigenvalues per sector")
	f.IntVar(&cfg.Cutoff, "cutoff", cfg.Cutoff, "reciprocal lattice cutoff of the interaction")
	f.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "eigensolver iterations")
	f.Float64Var(&cfg.Tol, "tol", cfg.Tol, "eigensolver residual tolerance")
	f.IntVar(&cfg.MaxBasis, "max-basis", cfg.MaxBasis, "eigensolver search space cap, 0 for automatic")
	f.IntVar(&cfg.DenseThreshold, "dense-threshold", cfg.DenseThreshold, "largest dimension diagonalized densely")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "eigensolver seed")
	f.IntSliceVar(&cfg.Sectors, "sectors", cfg.Sectors, "momentum sectors, all if empty")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "sectors diagonalized concurrently")
	f.StringVar(&cfg.Storage, "storage", cfg.Storage, "matrix element storage, memory or sqlite")
	f.StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "directory of sqlite storage")
	return cmd
}

func newLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return logger.With(zap.String("run", uuid.NewString())), nil
}

func loadConfig(flags *pflag.FlagSet) (fqh.Config, error) {
	if configPath == "" {
		return cfg, nil
	}
	c, err := fqh.LoadConfig(configPath)
	if err != nil {
		return fqh.Config{}, errors.Wrap(err, "")
	}
	flags.Visit(func(f *pflag.Flag) {
		if o, ok := overrides[f.Name]; ok {
			o(&c)
		}
	})
	return c, nil
}

func writeSpectrum(w io.Writer, res fqh.Result) error {
	cw := csv.NewWriter(w)
	var err error
	if err1 := cw.Write([]string{"k", "dim", "level", "energy"}); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for _, sr := range res.Sectors {
		for i, e := range sr.Energies {
			row := []string{strconv.Itoa(sr.K), strconv.Itoa(sr.Dim), strconv.Itoa(i), strconv.FormatFloat(e, 'f', -1, 64)}
			if err1 := cw.Write(row); err1 != nil && err == nil {
				err = errors.Wrap(err1, "")
			}
		}
	}
	cw.Flush()
	if err1 := cw.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func mainWithErr(cmd *cobra.Command, w io.Writer) error {
	logger, err := newLogger()
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer logger.Sync()

	c, err := loadConfig(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Info("start", zap.Int("ns", c.Ns), zap.Int("n", c.N), zap.Bool("bilayer", c.Bilayer), zap.Int("num_e", c.NumE), zap.Ints("sectors", c.Sectors))
	start := time.Now()
	res, err := fqh.Run(ctx, c, logger)
	if err != nil {
		return errors.Wrap(err, "")
	}
	logger.Info("done", zap.Duration("elapsed", time.Since(start)))

	if err := writeSpectrum(w, res); err != nil {
		return errors.Wrap(err, "")
	}
	if err := res.Err(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%+v", err)
	}
}
