// Package tracing turns the work of device components into tasks that
// tracers collect through hooks.
//
// A component reports a task with StartTask, marks its milestones with
// AddTaskStep and closes it with EndTask. Nothing is built when the
// component has no hooks, so untraced components pay only a length check.
package tracing

import (
	"fmt"

	"github.com/sarchlab/vgpu/sim/hooking"
)

// NamedHookable is a component that reports tasks. Its name becomes the
// Where of the tasks.
type NamedHookable interface {
	Name() string
	hooking.Hookable
}

// Hook positions of the task life cycle.
var (
	HookPosTaskStart = &hooking.HookPos{Name: "TaskStart"}
	HookPosTaskStep  = &hooking.HookPos{Name: "TaskStep"}
	HookPosTaskEnd   = &hooking.HookPos{Name: "TaskEnd"}
)

// StartTask opens a task on domain. The id, kind and what must not be empty,
// and the domain must be named.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail any,
) {
	if domain == nil {
		panic("tracing: nil domain")
	}

	if domain.NumHooks() == 0 {
		return
	}

	mustNotBeEmpty("id", id)
	mustNotBeEmpty("kind", kind)
	mustNotBeEmpty("what", what)
	mustNotBeEmpty("domain name", domain.Name())

	invoke(domain, HookPosTaskStart, Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Where:    domain.Name(),
		Detail:   detail,
	})
}

// AddTaskStep records that the task reached a milestone, such as
// "suspended" or "tier:raster:ok".
func AddTaskStep(id string, domain NamedHookable, what string) {
	if domain.NumHooks() == 0 {
		return
	}

	invoke(domain, HookPosTaskStep, Task{
		ID:    id,
		Steps: []TaskStep{{What: what}},
	})
}

// EndTask closes a task.
func EndTask(id string, domain NamedHookable) {
	if domain.NumHooks() == 0 {
		return
	}

	invoke(domain, HookPosTaskEnd, Task{ID: id})
}

func invoke(domain NamedHookable, pos *hooking.HookPos, task Task) {
	domain.InvokeHook(hooking.HookCtx{
		Domain: domain,
		Pos:    pos,
		Item:   task,
	})
}

func mustNotBeEmpty(field, value string) {
	if value == "" {
		panic(fmt.Sprintf("tracing: %s must not be empty", field))
	}
}
