// Command vgpu replays guest command streams against the virtio-gpu device
// model and inspects what the runs recorded.
package main

import "github.com/sarchlab/vgpu/cmd/vgpu/cmd"

func main() {
	cmd.Execute()
}
