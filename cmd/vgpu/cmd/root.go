// Package cmd provides the command-line interface of vgpu.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vgpu",
	Short: "vgpu drives the virtio-gpu device model.",
	Long: `vgpu drives the virtio-gpu device model. It replays scripted ` +
		`command streams, lists the capsets a configuration advertises and ` +
		`summarizes the traces of earlier runs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
