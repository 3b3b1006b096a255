package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clsession/internal/kernelsrc"
	"github.com/cwbudde/clsession/internal/session"
	"github.com/cwbudde/clsession/internal/tune"
)

var (
	tuneSource  string
	tuneKernel  string
	tuneGlobal  int
	tuneDtype   string
	tuneIters   int
	tuneRepeats int
	tuneSeed    int64
	tuneRequire []string
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search for the fastest local work size",
	Long: `Builds the kernel, binds an input and an output buffer of --global elements
and uses mayfly optimization to find the local work size with the shortest
dispatch time. Only divisors of --global within the device's work-group
limit are tried.`,
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().StringVar(&tuneSource, "source", "", "Kernel source file (required)")
	tuneCmd.Flags().StringVar(&tuneKernel, "kernel", "", "Kernel entry point (required)")
	tuneCmd.Flags().IntVar(&tuneGlobal, "global", 1024, "Global work size")
	tuneCmd.Flags().StringVar(&tuneDtype, "dtype", "int32", "Element type: int32, float32, half")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 20, "Optimizer iterations")
	tuneCmd.Flags().IntVar(&tuneRepeats, "repeats", 3, "Dispatches per candidate; the fastest counts")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed")
	tuneCmd.Flags().StringSliceVar(&tuneRequire, "require", nil, "Extensions the device must support")

	tuneCmd.MarkFlagRequired("source")
	tuneCmd.MarkFlagRequired("kernel")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	dt, err := lookupDtype(tuneDtype)
	if err != nil {
		return err
	}
	if tuneGlobal <= 0 {
		return fmt.Errorf("--global must be positive, got %d", tuneGlobal)
	}

	s, err := openSession(tuneRequire, session.WithSourceReader(kernelsrc.Dir(filepath.Dir(tuneSource))))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CreateProgramAndKernel(filepath.Base(tuneSource), tuneKernel); err != nil {
		return err
	}
	size := tuneGlobal * dt.size
	in, err := s.CreateAndWriteBuffer(size, make([]byte, size))
	if err != nil {
		return err
	}
	dst, err := s.CreateOutputBuffer(size)
	if err != nil {
		return err
	}
	for _, buf := range []*session.Buffer{in, dst} {
		if _, err := s.SetKernelArg(buf); err != nil {
			return err
		}
	}

	tuner := &tune.Tuner{Optimizer: tune.NewMayfly(tuneIters, 20, tuneSeed), Repeats: tuneRepeats}
	res, err := tuner.Tune(tuneGlobal, int(s.Device().MaxWorkGroupSize()), tune.Dispatch(s, tuneGlobal))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCAL\tCOST")
	measured := make([]int, 0, len(res.Measured))
	for local := range res.Measured {
		measured = append(measured, local)
	}
	slices.Sort(measured)
	for _, local := range measured {
		mark := ""
		if local == res.Local {
			mark = "  <- best"
		}
		fmt.Fprintf(w, "%d\t%s%s\n", local, res.Measured[local], mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "best local size %d of %d candidates (%d measured)\n", res.Local, len(res.Candidates), len(res.Measured))
	return nil
}
