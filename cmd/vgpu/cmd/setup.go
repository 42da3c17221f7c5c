package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vgpu/config"
	"github.com/sarchlab/vgpu/gpu/renderer"
)

// rendererFlags select the optional features of the reference renderer.
type rendererFlags struct {
	hostPointers bool
	surfaces     bool
}

func (f *rendererFlags) register(c *cobra.Command) {
	c.Flags().BoolVar(&f.hostPointers, "host-pointers", false,
		"Let the renderer export host pointers for the hostptr tier.")
	c.Flags().BoolVar(&f.surfaces, "surfaces", false,
		"Let the renderer export platform surfaces for the zero-copy tier.")
}

func (f *rendererFlags) build(cfg config.Config) *renderer.Reference {
	b := renderer.MakeReferenceBuilder().WithVirgl2()

	if cfg.Venus {
		b = b.WithVenus()
	}

	if f.hostPointers {
		b = b.WithHostPointers()
	}

	if f.surfaces {
		b = b.WithSurfaces()
	}

	return b.Build()
}

// setupICD reports where the Vulkan driver comes from. A missing driver
// only matters to real Venus backends, so it is not fatal.
func setupICD(cfg config.Config) string {
	if !cfg.Venus {
		return "disabled"
	}

	icd, err := renderer.SetupICD()
	if err != nil {
		log.Printf("venus: %v", err)
		return "missing"
	}

	return icd.Path + " (" + icd.Source + ")"
}

func envFilesOrDefault(files []string) []string {
	if len(files) > 0 {
		return files
	}

	return []string{".env"}
}
