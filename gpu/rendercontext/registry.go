// Package rendercontext keeps the render contexts the guest created and the
// resources attached to each of them.
package rendercontext

import (
	"log"
	"sort"

	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/gpu/renderer"
	"github.com/sarchlab/vgpu/gpu/resource"
)

// Outcome tells what creating a context did.
type Outcome int

// Outcomes of Create.
const (
	OutcomeCreated Outcome = iota

	// OutcomeNoop means the context was accepted but not created in the
	// backend, which cannot serve it.
	OutcomeNoop
)

// Context is a render context.
type Context struct {
	ID       uint32
	CapsetID uint32
	Name     string

	// Noop contexts exist only to keep guest probing working.
	Noop bool

	resources map[uint32]bool
}

// Resources returns the ids of the attached resources in order.
func (c *Context) Resources() []uint32 {
	ids := make([]uint32, 0, len(c.resources))
	for id := range c.resources {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// ResourceFinder looks up live resources.
type ResourceFinder interface {
	Find(id uint32) (*resource.Resource, bool)
}

// Registry is the set of live contexts.
type Registry struct {
	renderer    renderer.Renderer
	resources   ResourceFinder
	capsets     []renderer.CapsetInfo
	contextInit bool
	venusOnly   bool

	contexts  map[uint32]*Context
	lastVenus uint32
}

// Create creates a context with the given capset, 0 being the legacy
// default.
func (r *Registry) Create(id, capsetID uint32, name string) (Outcome, error) {
	const op = "create context"

	if capsetID != 0 && !r.contextInit {
		log.Printf("%s %d: context init disabled", op, id)
		return OutcomeCreated, gpuerr.New(gpuerr.FeatureDisabled, op, id)
	}

	if _, ok := r.contexts[id]; ok {
		return OutcomeCreated, gpuerr.New(gpuerr.DuplicateID, op, id)
	}

	if r.venusOnly && capsetID != protocol.CapsetVenus {
		r.contexts[id] = &Context{
			ID:        id,
			CapsetID:  capsetID,
			Name:      name,
			Noop:      true,
			resources: make(map[uint32]bool),
		}

		return OutcomeNoop, nil
	}

	if capsetID != 0 && !renderer.Advertises(r.capsets, capsetID) {
		return OutcomeCreated, gpuerr.Newf(gpuerr.UnsupportedCapability,
			op, id, "capset %d", capsetID)
	}

	err := r.renderer.CreateContext(id, capsetID, name)
	if err != nil {
		log.Printf("%s %d: %v", op, id, err)
		return OutcomeCreated, gpuerr.Wrap(gpuerr.RendererError, op, id, err)
	}

	r.contexts[id] = &Context{
		ID:        id,
		CapsetID:  capsetID,
		Name:      name,
		resources: make(map[uint32]bool),
	}

	if capsetID == protocol.CapsetVenus {
		r.lastVenus = id
	}

	return OutcomeCreated, nil
}

// Destroy destroys a context and forgets its resources.
func (r *Registry) Destroy(id uint32) error {
	ctx, ok := r.contexts[id]
	if !ok {
		return gpuerr.New(gpuerr.UnknownContext, "destroy context", id)
	}

	if !ctx.Noop {
		r.renderer.DestroyContext(id)
	}

	delete(r.contexts, id)

	if r.lastVenus == id {
		r.lastVenus = 0
	}

	return nil
}

func (r *Registry) lookup(op string, ctxID, resID uint32) (*Context, error) {
	ctx, ok := r.contexts[ctxID]
	if !ok {
		return nil, gpuerr.New(gpuerr.UnknownContext, op, ctxID)
	}

	if _, ok := r.resources.Find(resID); !ok {
		return nil, gpuerr.New(gpuerr.UnknownResource, op, resID)
	}

	return ctx, nil
}

// AttachResource lets a context use a resource.
func (r *Registry) AttachResource(ctxID, resID uint32) error {
	ctx, err := r.lookup("attach resource", ctxID, resID)
	if err != nil {
		return err
	}

	if !ctx.Noop {
		r.renderer.AttachResource(ctxID, resID)
	}

	ctx.resources[resID] = true

	return nil
}

// DetachResource removes a resource from a context.
func (r *Registry) DetachResource(ctxID, resID uint32) error {
	ctx, err := r.lookup("detach resource", ctxID, resID)
	if err != nil {
		return err
	}

	if !ctx.Noop {
		r.renderer.DetachResource(ctxID, resID)
	}

	delete(ctx.resources, resID)

	return nil
}

// DetachResourceEverywhere forgets a destroyed resource.
func (r *Registry) DetachResourceEverywhere(resID uint32) {
	for _, ctx := range r.contexts {
		delete(ctx.resources, resID)
	}
}

// Find looks up a context.
func (r *Registry) Find(id uint32) (*Context, bool) {
	ctx, ok := r.contexts[id]
	return ctx, ok
}

// All returns the live contexts ordered by id.
func (r *Registry) All() []*Context {
	list := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	return list
}

// LastVenus returns the most recently created Venus context, or 0.
func (r *Registry) LastVenus() uint32 {
	return r.lastVenus
}

// Capsets returns the capsets advertised to the guest.
func (r *Registry) Capsets() []renderer.CapsetInfo {
	return r.capsets
}

// Reset forgets every context.
func (r *Registry) Reset() {
	r.contexts = make(map[uint32]*Context)
	r.lastVenus = 0
}
