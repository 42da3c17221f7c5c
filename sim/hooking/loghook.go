package hooking

import (
	"fmt"
	"log"
)

// LogHook prints every hook invocation at the selected positions to a
// logger. An empty position list logs everything.
type LogHook struct {
	*log.Logger

	positions map[*HookPos]bool
}

// NewLogHook creates a LogHook that writes into logger.
func NewLogHook(logger *log.Logger, positions ...*HookPos) *LogHook {
	h := &LogHook{
		Logger:    logger,
		positions: make(map[*HookPos]bool),
	}

	for _, p := range positions {
		h.positions[p] = true
	}

	return h
}

// Func writes one line describing the hook site.
func (h *LogHook) Func(ctx HookCtx) {
	if len(h.positions) > 0 && !h.positions[ctx.Pos] {
		return
	}

	line := fmt.Sprintf("[%s] %v", ctx.Pos.Name, ctx.Item)
	if ctx.Detail != nil {
		line += fmt.Sprintf(" (%v)", ctx.Detail)
	}

	h.Print(line)
}
