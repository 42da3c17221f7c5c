package renderer

import (
	"fmt"
	"os"
)

// MoltenVKManifests are the well-known install locations of the MoltenVK
// ICD manifest.
var MoltenVKManifests = []string{
	"/opt/homebrew/share/vulkan/icd.d/MoltenVK_icd.json",
	"/usr/local/share/vulkan/icd.d/MoltenVK_icd.json",
	"/opt/homebrew/opt/molten-vk/share/vulkan/icd.d/MoltenVK_icd.json",
	"/usr/local/opt/molten-vk/share/vulkan/icd.d/MoltenVK_icd.json",
}

// ICD tells where the Vulkan loader finds its driver manifest.
type ICD struct {
	// Path is the manifest, or the list of manifests from the environment.
	Path string

	// Source is the environment variable the path came from, or "search".
	Source string
}

// DiscoverICD finds the Vulkan driver manifest the Venus backend will load.
// An explicit VK_ICD_FILENAMES or VK_DRIVER_FILES wins; otherwise the
// well-known MoltenVK paths are searched.
func DiscoverICD(
	getenv func(string) string,
	exists func(string) bool,
) (ICD, error) {
	for _, key := range []string{"VK_ICD_FILENAMES", "VK_DRIVER_FILES"} {
		if v := getenv(key); v != "" {
			return ICD{Path: v, Source: key}, nil
		}
	}

	for _, p := range MoltenVKManifests {
		if exists(p) {
			return ICD{Path: p, Source: "search"}, nil
		}
	}

	return ICD{}, fmt.Errorf("MoltenVK ICD not found; install molten-vk " +
		"or set VK_ICD_FILENAMES")
}

// SetupICD discovers the manifest from the process environment and exports
// VK_ICD_FILENAMES when it was found by searching.
func SetupICD() (ICD, error) {
	icd, err := DiscoverICD(os.Getenv, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
	if err != nil {
		return icd, err
	}

	if icd.Source == "search" {
		err = os.Setenv("VK_ICD_FILENAMES", icd.Path)
	}

	return icd, err
}
