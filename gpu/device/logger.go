package device

import (
	"log"

	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/sim/hooking"
)

// CommandLogger prints the commands of a device and how they ended.
type CommandLogger struct {
	*log.Logger
}

// NewCommandLogger creates a CommandLogger that writes into logger.
func NewCommandLogger(logger *log.Logger) *CommandLogger {
	return &CommandLogger{Logger: logger}
}

// Func writes one line per started, suspended or finished command and per
// fence response.
func (l *CommandLogger) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosCommandStart:
		cmd := ctx.Item.(*protocol.Command)
		l.Printf("cmd %s ctx %d fence %d", cmd.Type(), cmd.Header.CtxID,
			cmd.Header.FenceID)
	case HookPosCommandSuspended:
		cmd := ctx.Item.(*protocol.Command)
		l.Printf("cmd %s suspended", cmd.Type())
	case HookPosCommandDone:
		cmd := ctx.Item.(*protocol.Command)
		l.Printf("cmd %s done: %v", cmd.Type(), ctx.Detail)
	case HookPosResponse:
		rsp := ctx.Item.(*protocol.Response)
		if rsp.Header.Fenced() {
			l.Printf("rsp %s fence %d", rsp.Type(), rsp.Header.FenceID)
		}
	}
}
