package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/clsession/internal/catalog"
)

var (
	selectRequire         []string
	selectPlatformRequire []string
	selectDeviceRequire   []string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Show the device a session would use",
	Long: `Runs device selection with the configured and given extension
requirements and prints the chosen device. The first device, in enumeration
order, that supports every required extension wins. --require accepts an
extension reported by the device or by its platform.`,
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().StringSliceVar(&selectRequire, "require", nil, "Extensions required of the device or its platform (repeatable)")
	selectCmd.Flags().StringSliceVar(&selectPlatformRequire, "platform-require", nil, "Extensions required of the platform only")
	selectCmd.Flags().StringSliceVar(&selectDeviceRequire, "device-require", nil, "Extensions required of the device only")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}

	req := cfg.Requirements()
	req.Any = append(req.Any, selectRequire...)
	req.Platform = append(req.Platform, selectPlatformRequire...)
	req.Device = append(req.Device, selectDeviceRequire...)

	cat, err := catalog.New(rt, req, logger)
	if err != nil {
		return err
	}
	return printDevice(cmd.OutOrStdout(), cat.Platform(), cat.Device())
}
