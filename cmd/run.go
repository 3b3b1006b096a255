package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/hostbuf"
	"github.com/cwbudde/clsession/internal/kernelsrc"
	"github.com/cwbudde/clsession/internal/session"
	"github.com/cwbudde/clsession/internal/trace"
	"github.com/cwbudde/clsession/internal/tune"
)

var (
	sourcePath  string
	kernelName  string
	globalSize  int
	localSize   int
	inputValues string
	dtypeName   string
	scalarArgs  []string
	runRequire  []string
	traceDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a kernel and dispatch it once",
	Long: `Builds the kernel source, binds an input buffer filled with --input and an
output buffer of the same size, followed by any --scalar int32 arguments,
dispatches once and prints the output buffer.`,
	RunE: runKernel,
}

func init() {
	runCmd.Flags().StringVar(&sourcePath, "source", "", "Kernel source file (required)")
	runCmd.Flags().StringVar(&kernelName, "kernel", "", "Kernel entry point (required)")
	runCmd.Flags().IntVar(&globalSize, "global", 0, "Global work size (default: number of input values)")
	runCmd.Flags().IntVar(&localSize, "local", 0, "Local work size (default: largest valid divisor of --global)")
	runCmd.Flags().StringVar(&inputValues, "input", "", "Comma-separated input values")
	runCmd.Flags().StringVar(&dtypeName, "dtype", "int32", "Element type: int32, float32, half")
	runCmd.Flags().StringSliceVar(&scalarArgs, "scalar", nil, "int32 scalar arguments bound after the buffers")
	runCmd.Flags().StringSliceVar(&runRequire, "require", nil, "Extensions the device must support")
	runCmd.Flags().StringVar(&traceDir, "trace-dir", "", "Write a dispatch trace under this directory (overrides trace_dir)")

	runCmd.MarkFlagRequired("source")
	runCmd.MarkFlagRequired("kernel")
	rootCmd.AddCommand(runCmd)
}

func runKernel(cmd *cobra.Command, args []string) error {
	dt, err := lookupDtype(dtypeName)
	if err != nil {
		return err
	}
	values := splitValues(inputValues)
	if len(values) == 0 {
		return fmt.Errorf("--input must list at least one value")
	}
	data, err := dt.encode(values)
	if err != nil {
		return fmt.Errorf("invalid --input: %w", err)
	}
	global := globalSize
	if global == 0 {
		global = len(values)
	}
	// Each work item reads and writes one element of the input and output
	// buffers.
	if global > len(values) {
		return cl.Errorf(cl.KindUsage, "run", "%w: global size %d exceeds the %d input values",
			cl.ErrBufferOverflow, global, len(values))
	}

	opts := []session.Option{session.WithSourceReader(kernelsrc.Dir(filepath.Dir(sourcePath)))}
	dir := cfg.TraceDir
	if cmd.Flags().Changed("trace-dir") {
		dir = traceDir
	}
	if dir != "" {
		w, err := trace.NewWriter(dir, "", false)
		if err != nil {
			return err
		}
		defer w.Close()
		slog.Info("Tracing dispatches", "run_id", w.RunID(), "path", w.Path())
		opts = append(opts, session.WithTracer(w))
	}

	s, err := openSession(runRequire, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CreateProgramAndKernel(filepath.Base(sourcePath), kernelName); err != nil {
		return err
	}
	in, err := s.CreateAndWriteBuffer(len(data), data)
	if err != nil {
		return err
	}
	out, err := s.CreateOutputBuffer(len(data))
	if err != nil {
		return err
	}
	for _, buf := range []*session.Buffer{in, out} {
		if _, err := s.SetKernelArg(buf); err != nil {
			return err
		}
	}
	for _, v := range scalarArgs {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid --scalar %q: %w", v, err)
		}
		if _, err := s.SetKernelValue(hostbuf.Scalar(int32(n))); err != nil {
			return err
		}
	}

	local := localSize
	if local == 0 {
		local, err = largestLocal(s, global)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	if err := s.RunKernelWithSizes(global, local); err != nil {
		return err
	}
	if err := s.FinishQueue(); err != nil {
		return err
	}
	slog.Info("Kernel finished",
		"kernel", kernelName,
		"device", s.Device().Name(),
		"global", global,
		"local", local,
		"elapsed", time.Since(start))

	result := make([]byte, out.Size())
	if err := s.ReadFromBuffer(result, out); err != nil {
		return err
	}
	decoded, err := dt.decode(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(decoded, ","))
	return s.Close()
}

// largestLocal picks the biggest local size that divides global and fits the
// device work-group limit.
func largestLocal(s *session.Session, global int) (int, error) {
	candidates := tune.Candidates(global, int(s.Device().MaxWorkGroupSize()))
	if len(candidates) == 0 {
		return 0, fmt.Errorf("no local size divides global size %d", global)
	}
	return candidates[len(candidates)-1], nil
}
