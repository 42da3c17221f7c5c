package device

import (
	"encoding/binary"

	"github.com/sarchlab/vgpu/gpu/protocol"
)

// Display is the preferred mode reported to the guest for every scanout.
type Display struct {
	Width  uint32
	Height uint32
}

// DefaultDisplay is the mode reported when none is configured.
var DefaultDisplay = Display{Width: 1280, Height: 800}

func (d *Device) displayInfo(cmd *protocol.Command) (*protocol.Response, error) {
	var info protocol.RespDisplayInfo

	for i := range d.scanouts {
		info.PModes[i] = protocol.DisplayOne{
			Rect: protocol.Rect{
				Width:  d.display.Width,
				Height: d.display.Height,
			},
			Enabled: 1,
		}
	}

	rsp := protocol.NewResponse(cmd, protocol.RespOKDisplayInfo)
	rsp.Body = info

	return rsp, nil
}

func (d *Device) edid(cmd *protocol.Command) (*protocol.Response, error) {
	var g protocol.GetEDID
	if err := cmd.Read(&g); err != nil {
		return nil, err
	}

	if _, err := d.scanout("get edid", g.Scanout); err != nil {
		return nil, err
	}

	block := EDID(d.display, g.Scanout)

	var body protocol.RespEDID
	body.Size = uint32(len(block))
	copy(body.EDID[:], block)

	rsp := protocol.NewResponse(cmd, protocol.RespOKEDID)
	rsp.Body = body

	return rsp, nil
}

// EDID builds a 128-byte EDID 1.4 base block whose preferred timing is the
// display mode.
func EDID(mode Display, serial uint32) []byte {
	b := make([]byte, 128)

	copy(b[0:8], []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00})

	// Manufacturer "VGP" in 5-bit letters, big endian.
	mfg := uint16('V'-'@')<<10 | uint16('G'-'@')<<5 | uint16('P'-'@')
	binary.BigEndian.PutUint16(b[8:10], mfg)
	binary.LittleEndian.PutUint16(b[10:12], 0x1234)
	binary.LittleEndian.PutUint32(b[12:16], serial)

	b[16] = 1  // week
	b[17] = 34 // 2024
	b[18] = 1  // version 1.4
	b[19] = 4

	b[20] = 0xa5 // digital, 8 bits per color, DisplayPort
	b[21] = byte(mode.Width / 40)
	b[22] = byte(mode.Height / 40)
	b[23] = 120 // gamma 2.2
	b[24] = 0x06

	for i := 38; i < 54; i += 2 {
		b[i], b[i+1] = 0x01, 0x01
	}

	detailedTiming(b[54:72], mode)
	displayName(b[72:90], "vgpu")
	rangeLimits(b[90:108])
	dummyDescriptor(b[108:126])

	var sum byte
	for _, v := range b[:127] {
		sum += v
	}

	b[127] = -sum

	return b
}

// detailedTiming writes a CVT reduced blanking timing at 60 Hz.
func detailedTiming(b []byte, mode Display) {
	const (
		hblank = 160
		hfront = 48
		hsync  = 32
		vfront = 3
		vsync  = 6
	)

	vblank := uint32(23)
	htotal := mode.Width + hblank
	vtotal := mode.Height + vblank
	clock := htotal * vtotal * 60 / 10000

	binary.LittleEndian.PutUint16(b[0:2], uint16(clock))
	b[2] = byte(mode.Width)
	b[3] = byte(hblank)
	b[4] = byte(mode.Width>>8)<<4 | byte(hblank>>8)
	b[5] = byte(mode.Height)
	b[6] = byte(vblank)
	b[7] = byte(mode.Height>>8)<<4 | byte(vblank>>8)
	b[8] = hfront
	b[9] = hsync
	b[10] = vfront<<4 | vsync
	b[11] = 0

	widthMM := mode.Width * 254 / 960
	heightMM := mode.Height * 254 / 960
	b[12] = byte(widthMM)
	b[13] = byte(heightMM)
	b[14] = byte(widthMM>>8)<<4 | byte(heightMM>>8)
	b[17] = 0x1a
}

func displayName(b []byte, name string) {
	b[3] = 0xfc

	text := b[5:18]
	for i := range text {
		text[i] = ' '
	}

	n := copy(text, name)
	if n < len(text) {
		text[n] = '\n'
	}
}

func rangeLimits(b []byte) {
	b[3] = 0xfd
	b[5] = 50  // min vertical Hz
	b[6] = 125 // max vertical Hz
	b[7] = 30  // min horizontal kHz
	b[8] = 160 // max horizontal kHz
	b[9] = 60  // max pixel clock / 10 MHz
	b[10] = 0x01
	b[11] = '\n'

	for i := 12; i < 18; i++ {
		b[i] = ' '
	}
}

func dummyDescriptor(b []byte) {
	b[3] = 0x10
}
