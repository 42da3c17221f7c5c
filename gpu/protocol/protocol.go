// Package protocol describes the virtio-gpu control commands that the device
// handles: opcodes, response codes and the fixed layouts of their payloads.
package protocol

import "fmt"

// CmdType is the type field of a control command header.
type CmdType uint32

// 2D commands.
const (
	CmdGetDisplayInfo        CmdType = 0x0100
	CmdResourceCreate2D      CmdType = 0x0101
	CmdResourceUnref         CmdType = 0x0102
	CmdSetScanout            CmdType = 0x0103
	CmdResourceFlush         CmdType = 0x0104
	CmdTransferToHost2D      CmdType = 0x0105
	CmdResourceAttachBacking CmdType = 0x0106
	CmdResourceDetachBacking CmdType = 0x0107
	CmdGetCapsetInfo         CmdType = 0x0108
	CmdGetCapset             CmdType = 0x0109
	CmdGetEDID               CmdType = 0x010a
	CmdResourceAssignUUID    CmdType = 0x010b
	CmdResourceCreateBlob    CmdType = 0x010c
	CmdSetScanoutBlob        CmdType = 0x010d
)

// 3D commands.
const (
	CmdCtxCreate          CmdType = 0x0200
	CmdCtxDestroy         CmdType = 0x0201
	CmdCtxAttachResource  CmdType = 0x0202
	CmdCtxDetachResource  CmdType = 0x0203
	CmdResourceCreate3D   CmdType = 0x0204
	CmdTransferToHost3D   CmdType = 0x0205
	CmdTransferFromHost3D CmdType = 0x0206
	CmdSubmit3D           CmdType = 0x0207
	CmdResourceMapBlob    CmdType = 0x0208
	CmdResourceUnmapBlob  CmdType = 0x0209
)

var cmdNames = map[CmdType]string{
	CmdGetDisplayInfo:        "GET_DISPLAY_INFO",
	CmdResourceCreate2D:      "RESOURCE_CREATE_2D",
	CmdResourceUnref:         "RESOURCE_UNREF",
	CmdSetScanout:            "SET_SCANOUT",
	CmdResourceFlush:         "RESOURCE_FLUSH",
	CmdTransferToHost2D:      "TRANSFER_TO_HOST_2D",
	CmdResourceAttachBacking: "RESOURCE_ATTACH_BACKING",
	CmdResourceDetachBacking: "RESOURCE_DETACH_BACKING",
	CmdGetCapsetInfo:         "GET_CAPSET_INFO",
	CmdGetCapset:             "GET_CAPSET",
	CmdGetEDID:               "GET_EDID",
	CmdResourceAssignUUID:    "RESOURCE_ASSIGN_UUID",
	CmdResourceCreateBlob:    "RESOURCE_CREATE_BLOB",
	CmdSetScanoutBlob:        "SET_SCANOUT_BLOB",
	CmdCtxCreate:             "CTX_CREATE",
	CmdCtxDestroy:            "CTX_DESTROY",
	CmdCtxAttachResource:     "CTX_ATTACH_RESOURCE",
	CmdCtxDetachResource:     "CTX_DETACH_RESOURCE",
	CmdResourceCreate3D:      "RESOURCE_CREATE_3D",
	CmdTransferToHost3D:      "TRANSFER_TO_HOST_3D",
	CmdTransferFromHost3D:    "TRANSFER_FROM_HOST_3D",
	CmdSubmit3D:              "SUBMIT_3D",
	CmdResourceMapBlob:       "RESOURCE_MAP_BLOB",
	CmdResourceUnmapBlob:     "RESOURCE_UNMAP_BLOB",
}

func (t CmdType) String() string {
	if name, ok := cmdNames[t]; ok {
		return name
	}

	return fmt.Sprintf("CMD_0x%04x", uint32(t))
}

// CmdTypeByName finds a command type from its name, as printed by String.
func CmdTypeByName(name string) (CmdType, bool) {
	for t, n := range cmdNames {
		if n == name {
			return t, true
		}
	}

	return 0, false
}

// RespType is the type field of a response header.
type RespType uint32

// Response types.
const (
	RespOKNoData       RespType = 0x1100
	RespOKDisplayInfo  RespType = 0x1101
	RespOKCapsetInfo   RespType = 0x1102
	RespOKCapset       RespType = 0x1103
	RespOKEDID         RespType = 0x1104
	RespOKResourceUUID RespType = 0x1105
	RespOKMapInfo      RespType = 0x1106

	RespErrUnspec            RespType = 0x1200
	RespErrOutOfMemory       RespType = 0x1201
	RespErrInvalidScanoutID  RespType = 0x1202
	RespErrInvalidResourceID RespType = 0x1203
	RespErrInvalidContextID  RespType = 0x1204
	RespErrInvalidParameter  RespType = 0x1205
)

var respNames = map[RespType]string{
	RespOKNoData:             "OK_NODATA",
	RespOKDisplayInfo:        "OK_DISPLAY_INFO",
	RespOKCapsetInfo:         "OK_CAPSET_INFO",
	RespOKCapset:             "OK_CAPSET",
	RespOKEDID:               "OK_EDID",
	RespOKResourceUUID:       "OK_RESOURCE_UUID",
	RespOKMapInfo:            "OK_MAP_INFO",
	RespErrUnspec:            "ERR_UNSPEC",
	RespErrOutOfMemory:       "ERR_OUT_OF_MEMORY",
	RespErrInvalidScanoutID:  "ERR_INVALID_SCANOUT_ID",
	RespErrInvalidResourceID: "ERR_INVALID_RESOURCE_ID",
	RespErrInvalidContextID:  "ERR_INVALID_CONTEXT_ID",
	RespErrInvalidParameter:  "ERR_INVALID_PARAMETER",
}

func (t RespType) String() string {
	if name, ok := respNames[t]; ok {
		return name
	}

	return fmt.Sprintf("RESP_0x%04x", uint32(t))
}

// RespTypeByName finds a response type from its name, as printed by String.
func RespTypeByName(name string) (RespType, bool) {
	for t, n := range respNames {
		if n == name {
			return t, true
		}
	}

	return 0, false
}

// IsError tells if the response reports a failure.
func (t RespType) IsError() bool {
	return t >= RespErrUnspec
}

// Header flags.
const (
	FlagFence       uint32 = 1 << 0
	FlagInfoRingIdx uint32 = 1 << 1
)

// Capability set ids.
const (
	CapsetVirgl     uint32 = 1
	CapsetVirgl2    uint32 = 2
	CapsetGfxstream uint32 = 3
	CapsetVenus     uint32 = 4
)

// Blob memory types.
const (
	BlobMemGuest       uint32 = 1
	BlobMemHost3D      uint32 = 2
	BlobMemHost3DGuest uint32 = 3
)

// Blob flags.
const (
	BlobFlagUseMappable    uint32 = 1 << 0
	BlobFlagUseShareable   uint32 = 1 << 1
	BlobFlagUseCrossDevice uint32 = 1 << 2
)

// Map info cache types returned by RESOURCE_MAP_BLOB.
const (
	MapCacheNone     uint32 = 0x00
	MapCacheCached   uint32 = 0x01
	MapCacheUncached uint32 = 0x02
	MapCacheWC       uint32 = 0x03
)

// MaxScanouts is the number of scanouts the protocol can describe.
const MaxScanouts = 16

// Format is a virtio-gpu pixel format.
type Format uint32

// Pixel formats. All of them use 4 bytes per pixel.
const (
	FormatB8G8R8A8Unorm Format = 1
	FormatB8G8R8X8Unorm Format = 2
	FormatA8R8G8B8Unorm Format = 3
	FormatX8R8G8B8Unorm Format = 4
	FormatR8G8B8A8Unorm Format = 67
	FormatX8B8G8R8Unorm Format = 68
	FormatA8B8G8R8Unorm Format = 121
	FormatR8G8B8X8Unorm Format = 134
)

// BytesPerPixel returns the size of a pixel, or 0 for an unknown format.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatB8G8R8A8Unorm, FormatB8G8R8X8Unorm,
		FormatA8R8G8B8Unorm, FormatX8R8G8B8Unorm,
		FormatR8G8B8A8Unorm, FormatX8B8G8R8Unorm,
		FormatA8B8G8R8Unorm, FormatR8G8B8X8Unorm:
		return 4
	default:
		return 0
	}
}
