package session

import (
	"github.com/sarchlab/vgpu/datarecording"
	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/timing"
)

// Tables written for every registered device.
const (
	FrameTable    = "frames"
	ResponseTable = "responses"
)

// FrameEntry is a row of FrameTable.
type FrameEntry struct {
	Time     uint64
	Device   string
	Scanout  uint32
	Resource uint32
	Reason   string
	Status   string
	Tier     string
	Detail   string
	TaskID   string
}

// ResponseEntry is a row of ResponseTable.
type ResponseEntry struct {
	Time     uint64
	Device   string
	Command  string
	Response string
	CtxID    uint32
	FenceID  uint64
	Fenced   bool
	Ring     uint8
}

// eventRecorder writes frames and guest responses into the recorder.
type eventRecorder struct {
	device     string
	timeTeller timing.TimeTeller
	recorder   datarecording.DataRecorder
}

func createEventTables(recorder datarecording.DataRecorder) {
	recorder.CreateTable(FrameTable, FrameEntry{})
	recorder.CreateTable(ResponseTable, ResponseEntry{})
}

func newEventRecorder(
	deviceName string,
	timeTeller timing.TimeTeller,
	recorder datarecording.DataRecorder,
) *eventRecorder {
	return &eventRecorder{
		device:     deviceName,
		timeTeller: timeTeller,
		recorder:   recorder,
	}
}

func (h *eventRecorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case present.HookPosPresented:
		outcome := ctx.Detail.(present.Outcome)
		h.frame(ctx.Item.(present.Request), outcome.Status, outcome.Tier.String(), "")
	case present.HookPosDropped:
		reason, _ := ctx.Detail.(string)
		h.frame(ctx.Item.(present.Request), present.Dropped, "", reason)
	case device.HookPosResponse:
		h.response(ctx.Item.(*protocol.Response), ctx.Detail.(*protocol.Command))
	}
}

func (h *eventRecorder) frame(
	req present.Request,
	status present.Status,
	tier, detail string,
) {
	entry := FrameEntry{
		Time:    uint64(h.timeTeller.CurrentTime()),
		Device:  h.device,
		Scanout: req.ScanoutID,
		Reason:  req.Reason,
		Status:  status.String(),
		Tier:    tier,
		Detail:  detail,
		TaskID:  req.TaskID,
	}

	if req.Resource != nil {
		entry.Resource = req.Resource.ID
	}

	h.recorder.InsertData(FrameTable, entry)
}

func (h *eventRecorder) response(rsp *protocol.Response, cmd *protocol.Command) {
	h.recorder.InsertData(ResponseTable, ResponseEntry{
		Time:     uint64(h.timeTeller.CurrentTime()),
		Device:   h.device,
		Command:  cmd.Type().String(),
		Response: rsp.Type().String(),
		CtxID:    rsp.Header.CtxID,
		FenceID:  rsp.Header.FenceID,
		Fenced:   rsp.Header.Fenced(),
		Ring:     rsp.Header.RingIdx,
	})
}
