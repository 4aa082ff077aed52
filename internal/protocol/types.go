package protocol

import "fmt"

// PacketType is the numeric packet tag carried in every QTM-RT header.
type PacketType uint32

const (
	PacketError PacketType = iota
	PacketCommand
	PacketXML
	PacketData
	PacketNoMoreData
	PacketC3DFile
	PacketEvent
	PacketDiscover
	PacketQTMFile
)

func (t PacketType) String() string {
	switch t {
	case PacketError:
		return "error"
	case PacketCommand:
		return "command"
	case PacketXML:
		return "xml"
	case PacketData:
		return "data"
	case PacketNoMoreData:
		return "no_more_data"
	case PacketC3DFile:
		return "c3d_file"
	case PacketEvent:
		return "event"
	case PacketDiscover:
		return "discover"
	case PacketQTMFile:
		return "qtm_file"
	default:
		return fmt.Sprintf("packet_type(%d)", uint32(t))
	}
}

// ParsePacketType maps a raw header tag onto the known enumeration.
// Unknown tags are a wire contract violation, never a catch-all value.
func ParsePacketType(v uint32) (PacketType, error) {
	if v > uint32(PacketQTMFile) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPacketType, v)
	}
	return PacketType(v), nil
}

// Event is the one-byte state code carried in the body of event packets.
type Event byte

const (
	EventConnected             Event = 1
	EventConnectionClosed      Event = 2
	EventCaptureStarted        Event = 3
	EventCaptureStopped        Event = 4
	EventCalibrationStarted    Event = 6
	EventCalibrationStopped    Event = 7
	EventRTFromFileStarted     Event = 8
	EventRTFromFileStopped     Event = 9
	EventWaitingForTrigger     Event = 10
	EventCameraSettingsChanged Event = 11
	EventQTMShuttingDown       Event = 12
	EventCaptureSaved          Event = 13
	EventReprocessingStarted   Event = 14
	EventReprocessingStopped   Event = 15
	EventTrigger               Event = 16
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventConnectionClosed:
		return "connection_closed"
	case EventCaptureStarted:
		return "capture_started"
	case EventCaptureStopped:
		return "capture_stopped"
	case EventCalibrationStarted:
		return "calibration_started"
	case EventCalibrationStopped:
		return "calibration_stopped"
	case EventRTFromFileStarted:
		return "rt_from_file_started"
	case EventRTFromFileStopped:
		return "rt_from_file_stopped"
	case EventWaitingForTrigger:
		return "waiting_for_trigger"
	case EventCameraSettingsChanged:
		return "camera_settings_changed"
	case EventQTMShuttingDown:
		return "qtm_shutting_down"
	case EventCaptureSaved:
		return "capture_saved"
	case EventReprocessingStarted:
		return "reprocessing_started"
	case EventReprocessingStopped:
		return "reprocessing_stopped"
	case EventTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("event(%d)", byte(e))
	}
}
