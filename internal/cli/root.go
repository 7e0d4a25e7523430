package cli

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/opd-ai/go-progpow"
	"github.com/opd-ai/go-progpow/internal"
)

const (
	appName    = "progpow-kernel"
	appVersion = "0.1.0"
)

// options collects the flags shared by every command.
type options struct {
	cfg       progpow.Config
	seed      uint64
	block     uint64
	useBlock  bool
	verbosity int
	color     bool
}

// resolveSeed returns the program seed, derived from --block when given.
func (o *options) resolveSeed() uint64 {
	if o.useBlock {
		return progpow.SeedForBlock(o.block, o.cfg.Period)
	}
	return o.seed
}

// verbosityLevel maps geth-style verbosity (0=silent .. 5=trace) to a level.
func verbosityLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return log.LevelCrit + 1
	case v == 1:
		return log.LevelError
	case v == 2:
		return log.LevelWarn
	case v == 3:
		return log.LevelInfo
	case v == 4:
		return log.LevelDebug
	default:
		return log.LevelTrace
	}
}

// NewRootCmd builds the progpow-kernel command tree: the root renders a
// kernel, and the trace and verify subcommands inspect the program.
func NewRootCmd() *cobra.Command {
	opts := &options{cfg: progpow.DefaultConfig()}
	dialectName := "cuda"
	outputPath := ""
	showVersion := false

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Render the ProgPoW inner loop for a program seed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			handler := log.NewTerminalHandlerWithLevel(cmd.ErrOrStderr(), verbosityLevel(opts.verbosity), opts.color)
			log.SetDefault(log.NewLogger(handler))

			opts.useBlock = cmd.Flags().Changed("block")
			if opts.useBlock && cmd.Flags().Changed("seed") {
				return fmt.Errorf("options conflict: cannot use --seed and --block together")
			}
			return opts.cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}

			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}

			dialect, err := progpow.ParseDialect(dialectName)
			if err != nil {
				return err
			}

			seed := opts.resolveSeed()
			kernel, err := progpow.Generate(seed, dialect, opts.cfg)
			if err != nil {
				return err
			}
			digest := internal.Blake2b256([]byte(kernel))
			log.Info("Rendered kernel", "seed", seed, "dialect", dialect, "bytes", len(kernel), "digest", hex.EncodeToString(digest[:8]))

			if outputPath == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), kernel)
				return err
			}
			return os.WriteFile(outputPath, []byte(kernel), 0o644)
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version")
	cmd.Flags().StringVarP(&dialectName, "dialect", "d", dialectName, "output dialect: cuda or opencl")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write generated kernel to file")

	pf := cmd.PersistentFlags()
	pf.Uint64VarP(&opts.seed, "seed", "s", 0, "program seed")
	pf.Uint64VarP(&opts.block, "block", "b", 0, "block number; the seed is block / period")
	pf.IntVar(&opts.verbosity, "verbosity", 3, "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	pf.BoolVar(&opts.color, "color", false, "colorize log output")

	pf.Uint64Var(&opts.cfg.Period, "period", opts.cfg.Period, "blocks per program seed")
	pf.IntVar(&opts.cfg.Lanes, "lanes", opts.cfg.Lanes, "lanes per hash (power of two)")
	pf.IntVar(&opts.cfg.Registers, "regs", opts.cfg.Registers, "mix registers per lane")
	pf.IntVar(&opts.cfg.DatasetLoads, "dag-loads", opts.cfg.DatasetLoads, "dataset words loaded per lane per loop")
	pf.IntVar(&opts.cfg.CacheWords, "cache-words", opts.cfg.CacheWords, "cache size in 32-bit words")
	pf.IntVar(&opts.cfg.DatasetAccesses, "cnt-dag", opts.cfg.DatasetAccesses, "loop iterations per hash")
	pf.IntVar(&opts.cfg.CacheAccesses, "cnt-cache", opts.cfg.CacheAccesses, "cache loads per loop")
	pf.IntVar(&opts.cfg.MathOps, "cnt-math", opts.cfg.MathOps, "math steps per loop")
	pf.Uint64Var(&opts.cfg.DatasetElements, "dag-elements", 0, "emit PROGPOW_DAG_ELEMENTS (0 leaves it to the host)")

	_ = cmd.MarkFlagFilename("output", "cu", "cl")

	cmd.AddCommand(newTraceCmd(opts), newVerifyCmd(opts))
	return cmd
}

func newTraceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "trace",
		Short: "Print the dialect-independent instruction trace and its fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := progpow.NewProgram(opts.resolveSeed(), opts.cfg)
			if err != nil {
				return err
			}
			fp := p.Fingerprint()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprint(out, p.String()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "fingerprint %s\n", hex.EncodeToString(fp[:]))
			return err
		},
	}
}

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Render every dialect and check they spell the same program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := opts.resolveSeed()
			p, err := progpow.NewProgram(seed, opts.cfg)
			if err != nil {
				return err
			}
			cuda, err := p.Render(progpow.CUDA)
			if err != nil {
				return err
			}
			opencl, err := p.Render(progpow.OpenCL)
			if err != nil {
				return err
			}
			if err := progpow.CompareKernels(cuda, opencl); err != nil {
				return err
			}
			trace, err := progpow.ParseKernel(cuda)
			if err != nil {
				return err
			}
			if err := checkTrace(trace, p); err != nil {
				return err
			}
			log.Debug("Kernels verified", "seed", seed, "instructions", p.Len())

			fp := p.Fingerprint()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok seed=%d instructions=%d fingerprint=%s\n", seed, p.Len(), hex.EncodeToString(fp[:]))
			return err
		},
	}
}

// checkTrace reports whether trace is exactly the program's instruction list.
func checkTrace(trace []progpow.Instruction, p *progpow.Program) error {
	if !slices.Equal(trace, p.Instructions()) {
		return fmt.Errorf("%w: rendered kernel does not spell the generated program", progpow.ErrTraceMismatch)
	}
	return nil
}
