package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/sarchlab/vgpu/gpu/gpuerr"
)

// Command is a decoded control command: the header and the raw payload that
// follows it.
type Command struct {
	Header  Header
	Payload []byte
}

// Type returns the command type.
func (c *Command) Type() CmdType {
	return CmdType(c.Header.Type)
}

// Decode splits a raw control command into its header and payload.
func Decode(raw []byte) (*Command, error) {
	if len(raw) < HeaderSize {
		return nil, gpuerr.Newf(gpuerr.SizeMismatch, "decode header", 0,
			"%d bytes, need %d", len(raw), HeaderSize)
	}

	cmd := &Command{Payload: raw[HeaderSize:]}
	mustRead(raw[:HeaderSize], &cmd.Header)

	return cmd, nil
}

// Read decodes the fixed part of the payload into v, which must point to a
// fixed-size struct.
func (c *Command) Read(v any) error {
	size := binary.Size(v)
	if size < 0 || len(c.Payload) < size {
		return gpuerr.Newf(gpuerr.SizeMismatch, c.Type().String(), 0,
			"payload is %d bytes, need %d", len(c.Payload), size)
	}

	mustRead(c.Payload[:size], v)

	return nil
}

// ReadPartial decodes the payload into v, zero-filling the fields the guest
// did not send. Older guests send a shorter CTX_CREATE.
func (c *Command) ReadPartial(v any) {
	size := binary.Size(v)
	buf := make([]byte, size)
	copy(buf, c.Payload)
	mustRead(buf, v)
}

// Tail returns the payload bytes after a fixed-size struct of type v.
func (c *Command) Tail(v any) []byte {
	size := binary.Size(v)
	if size < 0 || size > len(c.Payload) {
		return nil
	}

	return c.Payload[size:]
}

// ReadMemEntries decodes n memory entries.
func ReadMemEntries(b []byte, n uint32) ([]MemEntry, error) {
	need := int(n) * MemEntrySize
	if len(b) < need {
		return nil, gpuerr.Newf(gpuerr.SizeMismatch, "mem entries", 0,
			"%d bytes for %d entries", len(b), n)
	}

	entries := make([]MemEntry, n)
	if n > 0 {
		mustRead(b[:need], entries)
	}

	return entries, nil
}

func mustRead(b []byte, v any) {
	err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
	if err != nil {
		panic(err)
	}
}

// Encode serializes values in wire order.
func Encode(values ...any) []byte {
	buf := new(bytes.Buffer)

	for _, v := range values {
		if b, ok := v.([]byte); ok {
			buf.Write(b)
			continue
		}

		err := binary.Write(buf, binary.LittleEndian, v)
		if err != nil {
			panic(err)
		}
	}

	return buf.Bytes()
}

// Response is a guest-visible reply to a command.
type Response struct {
	Header Header

	// Body is the fixed-size body of OK_* responses with data, or nil.
	Body any

	// Data is a variable-size trailer (capset data), or nil.
	Data []byte
}

// Type returns the response type.
func (r *Response) Type() RespType {
	return RespType(r.Header.Type)
}

// NewResponse builds a response for cmd. The fence, context and ring fields
// are echoed when the command is fenced.
func NewResponse(cmd *Command, t RespType) *Response {
	rsp := &Response{Header: Header{Type: uint32(t)}}

	if cmd.Header.Fenced() {
		rsp.Header.Flags |= FlagFence
		rsp.Header.FenceID = cmd.Header.FenceID
		rsp.Header.CtxID = cmd.Header.CtxID

		if cmd.Header.RingIndexed() {
			rsp.Header.Flags |= FlagInfoRingIdx
			rsp.Header.RingIdx = cmd.Header.RingIdx
		}
	}

	return rsp
}

// Bytes encodes the response.
func (r *Response) Bytes() []byte {
	values := []any{r.Header}
	if r.Body != nil {
		values = append(values, r.Body)
	}

	if r.Data != nil {
		values = append(values, r.Data)
	}

	return Encode(values...)
}

// EncodeCommand builds the raw bytes of a control command, as a guest
// driver would place them on the control queue.
func EncodeCommand(t CmdType, hdr Header, payload ...any) []byte {
	hdr.Type = uint32(t)
	return Encode(append([]any{hdr}, payload...)...)
}
