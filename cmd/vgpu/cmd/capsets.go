package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vgpu/config"
	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/sim/timing"
)

var capsetsFlags struct {
	envFiles []string
	renderer rendererFlags
}

var capsetsCmd = &cobra.Command{
	Use:   "capsets",
	Short: "List the capability sets the device advertises.",
	Long: "Build the device from the configuration and ask it for its " +
		"capability sets the way a guest driver does at probe time.",
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFilesOrDefault(capsetsFlags.envFiles)...)
		if err != nil {
			return err
		}

		r := capsetsFlags.renderer.build(cfg)
		defer r.Close()

		fmt.Printf("Vulkan ICD: %s\n", setupICD(cfg))

		return listCapsets(cfg, r, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(capsetsCmd)

	capsetsCmd.Flags().StringSliceVar(&capsetsFlags.envFiles, "env-file", nil,
		"Read configuration from these files (default .env).")
	capsetsFlags.renderer.register(capsetsCmd)
}

var capsetNames = map[uint32]string{
	protocol.CapsetVirgl:     "VIRGL",
	protocol.CapsetVirgl2:    "VIRGL2",
	protocol.CapsetGfxstream: "GFXSTREAM",
	protocol.CapsetVenus:     "VENUS",
}

// lastResponse keeps the most recent response of the device.
type lastResponse struct {
	rsp *protocol.Response
}

func (l *lastResponse) Respond(_ *protocol.Command, rsp *protocol.Response) {
	l.rsp = rsp
}

// listCapsets asks for capset infos by index until the device refuses.
func listCapsets(cfg config.Config, r renderer.Renderer, out io.Writer) error {
	engine := timing.NewSerialEngine()
	sink := &lastResponse{}

	d := cfg.Apply(device.MakeBuilder()).
		WithEngine(engine).
		WithRenderer(r).
		WithGuestMemory(guestmem.NewStorage(1 << 12)).
		WithResponseSink(sink).
		Build()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tNAME\tMAX VERSION\tMAX SIZE")

	for i := uint32(0); ; i++ {
		err := d.Submit(protocol.EncodeCommand(protocol.CmdGetCapsetInfo,
			protocol.Header{}, protocol.GetCapsetInfo{CapsetIndex: i}))
		if err != nil {
			return err
		}

		if err := engine.RunUntil(engine.CurrentTime()); err != nil {
			return err
		}

		if sink.rsp == nil || sink.rsp.Type() != protocol.RespOKCapsetInfo {
			break
		}

		info := sink.rsp.Body.(protocol.RespCapsetInfo)

		name, ok := capsetNames[info.CapsetID]
		if !ok {
			name = "?"
		}

		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\n", i, info.CapsetID, name,
			info.CapsetMaxVersion, info.CapsetMaxSize)
	}

	return w.Flush()
}
