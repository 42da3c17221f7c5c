package scenario

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// payloads creates the payload each command carries.
var payloads = map[protocol.CmdType]func() any{
	protocol.CmdResourceCreate2D:      func() any { return &protocol.ResourceCreate2D{} },
	protocol.CmdResourceUnref:         func() any { return &protocol.ResourceID{} },
	protocol.CmdSetScanout:            func() any { return &protocol.SetScanout{} },
	protocol.CmdResourceFlush:         func() any { return &protocol.ResourceFlush{} },
	protocol.CmdTransferToHost2D:      func() any { return &protocol.TransferToHost2D{} },
	protocol.CmdResourceAttachBacking: func() any { return &protocol.AttachBacking{} },
	protocol.CmdResourceDetachBacking: func() any { return &protocol.ResourceID{} },
	protocol.CmdGetCapsetInfo:         func() any { return &protocol.GetCapsetInfo{} },
	protocol.CmdGetCapset:             func() any { return &protocol.GetCapset{} },
	protocol.CmdGetEDID:               func() any { return &protocol.GetEDID{} },
	protocol.CmdResourceAssignUUID:    func() any { return &protocol.ResourceID{} },
	protocol.CmdResourceCreateBlob:    func() any { return &protocol.ResourceCreateBlob{} },
	protocol.CmdSetScanoutBlob:        func() any { return &protocol.SetScanoutBlob{} },
	protocol.CmdCtxCreate:             func() any { return &protocol.CtxCreate{} },
	protocol.CmdCtxAttachResource:     func() any { return &protocol.ResourceID{} },
	protocol.CmdCtxDetachResource:     func() any { return &protocol.ResourceID{} },
	protocol.CmdResourceCreate3D:      func() any { return &protocol.ResourceCreate3D{} },
	protocol.CmdTransferToHost3D:      func() any { return &protocol.TransferHost3D{} },
	protocol.CmdTransferFromHost3D:    func() any { return &protocol.TransferHost3D{} },
	protocol.CmdSubmit3D:              func() any { return &protocol.Submit3D{} },
	protocol.CmdResourceMapBlob:       func() any { return &protocol.MapBlob{} },
	protocol.CmdResourceUnmapBlob:     func() any { return &protocol.ResourceID{} },
}

// EncodeStep builds the raw command of a command step.
func EncodeStep(s Step) ([]byte, error) {
	t, ok := protocol.CmdTypeByName(strings.ToUpper(s.Cmd))
	if !ok {
		return nil, fmt.Errorf("unknown command %q", s.Cmd)
	}

	hdr := protocol.Header{CtxID: s.Ctx}

	if s.Fence != nil {
		hdr.Flags |= protocol.FlagFence
		hdr.FenceID = *s.Fence
	}

	if s.Ring != nil {
		if s.Fence == nil {
			return nil, fmt.Errorf("%s: a ring needs a fence", s.Cmd)
		}

		hdr.Flags |= protocol.FlagInfoRingIdx
		hdr.RingIdx = *s.Ring
	}

	values, err := payload(t, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Cmd, err)
	}

	return protocol.EncodeCommand(t, hdr, values...), nil
}

func payload(t protocol.CmdType, s Step) ([]any, error) {
	newPayload, hasPayload := payloads[t]
	if !hasPayload {
		if s.Args.Kind != 0 {
			return nil, fmt.Errorf("takes no arguments")
		}

		return nil, nil
	}

	p := newPayload()

	if s.Args.Kind != 0 {
		args := s.Args
		normalizeKeys(&args)

		err := args.Decode(p)
		if err != nil {
			return nil, err
		}
	}

	values := []any{}

	switch p := p.(type) {
	case *protocol.CtxCreate:
		if len(s.Name) > len(p.DebugName) {
			return nil, fmt.Errorf("name %q is too long", s.Name)
		}

		p.NameLen = uint32(len(s.Name))
		copy(p.DebugName[:], s.Name)
		values = append(values, *p)
	case *protocol.AttachBacking:
		p.NrEntries = uint32(len(s.Entries))
		values = append(values, *p)
		values = append(values, memEntries(s.Entries)...)
	case *protocol.ResourceCreateBlob:
		p.NrEntries = uint32(len(s.Entries))
		values = append(values, *p)
		values = append(values, memEntries(s.Entries)...)
	case *protocol.Submit3D:
		data, err := hex.DecodeString(strings.ReplaceAll(s.Data, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}

		p.Size = uint32(len(data))
		values = append(values, *p, data)
	default:
		values = append(values, deref(p))
	}

	return values, nil
}

func memEntries(entries []Entry) []any {
	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = protocol.MemEntry{Addr: e.Addr, Length: e.Length}
	}

	return values
}

func deref(p any) any {
	switch p := p.(type) {
	case *protocol.ResourceCreate2D:
		return *p
	case *protocol.ResourceID:
		return *p
	case *protocol.SetScanout:
		return *p
	case *protocol.ResourceFlush:
		return *p
	case *protocol.TransferToHost2D:
		return *p
	case *protocol.GetCapsetInfo:
		return *p
	case *protocol.GetCapset:
		return *p
	case *protocol.GetEDID:
		return *p
	case *protocol.SetScanoutBlob:
		return *p
	case *protocol.ResourceCreate3D:
		return *p
	case *protocol.TransferHost3D:
		return *p
	case *protocol.MapBlob:
		return *p
	default:
		panic(fmt.Sprintf("no payload %T", p))
	}
}

// normalizeKeys turns snake case keys into the lower case field names the
// decoder matches.
func normalizeKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i < len(n.Content); i += 2 {
			key := n.Content[i]
			key.Value = strings.ReplaceAll(strings.ToLower(key.Value), "_", "")
		}
	}

	for _, c := range n.Content {
		normalizeKeys(c)
	}
}
