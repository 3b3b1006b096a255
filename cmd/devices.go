package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/clsession/internal/catalog"
)

var devicesRequire []string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List platforms and devices",
	Long: `Lists every platform and device reported by the runtime. With --require,
a final column shows whether each device supports all listed extensions.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringSliceVar(&devicesRequire, "require", nil, "Extensions to check for (repeatable)")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	platforms, err := catalog.Enumerate(rt)
	if err != nil {
		return err
	}
	return printDevices(cmd.OutOrStdout(), platforms, devicesRequire)
}

func printDevices(out io.Writer, platforms []*catalog.Platform, require []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "PLATFORM\tDEVICE\tTYPE\tUNITS\tCLOCK\tMAX WG\tGLOBAL MEM"
	if len(require) > 0 {
		header += "\tSUPPORTED"
	}
	fmt.Fprintln(w, header)

	for _, p := range platforms {
		if len(p.Devices) == 0 {
			fmt.Fprintf(w, "%s\t(no devices)\t\t\t\t\t\n", p.Name())
			continue
		}
		for _, d := range p.Devices {
			row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%d\t%s",
				p.Name(),
				d.Name(),
				d.Type(),
				attr(d, "compute_units"),
				attr(d, "max_clock_mhz")+" MHz",
				d.MaxWorkGroupSize(),
				humanize.IBytes(d.GlobalMemSize()))
			if len(require) > 0 {
				ok, err := supportsAll(p, d, require)
				if err != nil {
					return err
				}
				row += "\t" + yesNo(ok)
			}
			fmt.Fprintln(w, row)
		}
	}
	return w.Flush()
}

func attr(d *catalog.Device, name string) string {
	a, ok := d.Attribute(name)
	if !ok {
		return "-"
	}
	return a.String()
}

func supportsAll(p *catalog.Platform, d *catalog.Device, exts []string) (bool, error) {
	for _, ext := range exts {
		ok, err := catalog.Supports(p, d, ext)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// printDevice writes the full attribute list of one device.
func printDevice(out io.Writer, p *catalog.Platform, d *catalog.Device) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "platform\t%s\n", p.Name())
	for _, a := range p.Attributes {
		if a.Name == "name" {
			continue
		}
		fmt.Fprintf(w, "platform.%s\t%s\n", a.Name, a)
	}
	for _, a := range d.Attributes {
		switch a.Name {
		case "type":
			fmt.Fprintf(w, "%s\t%s (%s)\n", a.Name, d.Type(), a)
		case "global_mem_size", "max_constant_buffer_size":
			n, err := a.Uint()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", a.Name, humanize.IBytes(n))
		default:
			fmt.Fprintf(w, "%s\t%s\n", a.Name, a)
		}
	}
	exts, err := d.Extensions()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "extensions\t%s\n", strings.Join(exts, " "))
	return w.Flush()
}
