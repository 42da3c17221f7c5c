package device

import (
	"github.com/sarchlab/vgpu/gpu/gpuerr"
	"github.com/sarchlab/vgpu/gpu/protocol"
)

// ResponseType maps the error of a command to the response the guest sees.
// Renderer failures and everything the protocol has no code for become
// ERR_UNSPEC.
func ResponseType(cmdType protocol.CmdType, err error) protocol.RespType {
	switch gpuerr.KindOf(err) {
	case gpuerr.UnknownResource, gpuerr.InvalidID:
		return protocol.RespErrInvalidResourceID
	case gpuerr.DuplicateID:
		if cmdType == protocol.CmdCtxCreate {
			return protocol.RespErrInvalidContextID
		}

		return protocol.RespErrInvalidResourceID
	case gpuerr.UnknownContext:
		return protocol.RespErrInvalidContextID
	case gpuerr.UnknownScanout:
		return protocol.RespErrInvalidScanoutID
	case gpuerr.InvalidParameter:
		return protocol.RespErrInvalidParameter
	case gpuerr.FeatureDisabled:
		// Disabled blobs are a bad parameter; a disabled context init is
		// not.
		if cmdType == protocol.CmdResourceCreateBlob {
			return protocol.RespErrInvalidParameter
		}

		return protocol.RespErrUnspec
	default:
		return protocol.RespErrUnspec
	}
}

func unsupported(cmd *protocol.Command) error {
	return gpuerr.Newf(gpuerr.Unspecified, cmd.Type().String(), 0,
		"command 0x%x not supported", uint32(cmd.Type()))
}
