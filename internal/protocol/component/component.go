// Package component decodes the interior of QTM-RT data packet bodies:
// the frame header, the sized component list, and the rigid body payloads.
// Positions stay in millimeters and angles in the convention QTM is
// configured with; nothing here converts units.
package component

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Fixed layout sizes in bytes.
const (
	dataHeaderLen = 16 // timestamp (8) + frame number (4) + component count (4)
	headerLen     = 8  // component size (4) + component type (4)
	ratesLen      = 8  // body count (4) + drop rate (2) + out-of-sync rate (2)
	poseLen       = 48 // position (3 float32) + rotation matrix (9 float32)
	eulerPoseLen  = 24 // position (3 float32) + rotation angles (3 float32)
)

var (
	ErrShortDataHeader      = errors.New("component: short data header")
	ErrShortComponentHeader = errors.New("component: short component header")
	ErrInvalidComponentSize = errors.New("component: declared size below component header")
	ErrTruncatedComponent   = errors.New("component: truncated component payload")
	ErrCountMismatch        = errors.New("component: component count mismatch")
	ErrTruncatedBodies      = errors.New("component: truncated rigid body payload")
)

// Type identifies one streamed component kind.
type Type uint32

const (
	Type3D                  Type = 1
	Type3DNoLabels          Type = 2
	TypeAnalog              Type = 3
	TypeForce               Type = 4
	Type6D                  Type = 5
	Type6DEuler             Type = 6
	Type2D                  Type = 7
	Type2DLinearized        Type = 8
	Type3DResiduals         Type = 9
	Type3DNoLabelsResiduals Type = 10
	Type6DResiduals         Type = 11
	Type6DEulerResiduals    Type = 12
	TypeAnalogSingle        Type = 13
	TypeImage               Type = 14
	TypeForceSingle         Type = 15
	TypeGazeVector          Type = 16
	TypeTimecode            Type = 17
	TypeSkeleton            Type = 18
	TypeEyeTracker          Type = 19
)

// Header is the fixed prefix of every data packet body.
type Header struct {
	Timestamp   int64 // microseconds since measurement start
	FrameNumber uint32
	Count       uint32
}

// Component is one sized entry of a data packet. Data aliases the packet
// body; the caller owns both.
type Component struct {
	Type Type
	Data []byte
}

// Split walks the sized component list of one data packet body. The declared
// component count must match the walk; disagreement is a decode error, never
// a silent partial result.
func Split(body []byte) (Header, []Component, error) {
	if len(body) < dataHeaderLen {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortDataHeader, len(body))
	}
	h := Header{
		Timestamp:   int64(binary.LittleEndian.Uint64(body[0:8])),
		FrameNumber: binary.LittleEndian.Uint32(body[8:12]),
		Count:       binary.LittleEndian.Uint32(body[12:16]),
	}

	comps := make([]Component, 0)
	i := dataHeaderLen
	for i < len(body) {
		if len(body)-i < headerLen {
			return Header{}, nil, fmt.Errorf("%w: %d bytes at offset %d", ErrShortComponentHeader, len(body)-i, i)
		}
		size := binary.LittleEndian.Uint32(body[i : i+4])
		typ := binary.LittleEndian.Uint32(body[i+4 : i+8])
		if size < headerLen {
			return Header{}, nil, fmt.Errorf("%w: %d", ErrInvalidComponentSize, size)
		}
		if int(size) > len(body)-i {
			return Header{}, nil, fmt.Errorf("%w: declared %d, remaining %d", ErrTruncatedComponent, size, len(body)-i)
		}
		comps = append(comps, Component{Type: Type(typ), Data: body[i+headerLen : i+int(size)]})
		i += int(size)
	}
	if uint32(len(comps)) != h.Count {
		return Header{}, nil, fmt.Errorf("%w: declared %d, walked %d", ErrCountMismatch, h.Count, len(comps))
	}
	return h, comps, nil
}

// Find returns the first component of the given type.
func Find(comps []Component, t Type) (Component, bool) {
	for _, c := range comps {
		if c.Type == t {
			return c, true
		}
	}
	return Component{}, false
}

// Pose is one rigid body sample: position in millimeters plus a row-major
// 3x3 rotation matrix.
type Pose struct {
	X, Y, Z  float32
	Rotation [9]float32
}

// EulerPose is one rigid body sample with rotation angles instead of a
// matrix. Angle meaning follows the Euler convention configured in QTM.
type EulerPose struct {
	X, Y, Z          float32
	Roll, Pitch, Yaw float32
}

// SixD is a decoded 6DOF component.
type SixD struct {
	DropRate      uint16
	OutOfSyncRate uint16
	Bodies        []Pose
}

// SixDEuler is a decoded 6DOF Euler component.
type SixDEuler struct {
	DropRate      uint16
	OutOfSyncRate uint16
	Bodies        []EulerPose
}

// Parse6D decodes a 6DOF component payload.
func Parse6D(data []byte) (SixD, error) {
	n, rates, err := parseRates(data)
	if err != nil {
		return SixD{}, err
	}
	if want := ratesLen + n*poseLen; len(data) != want {
		return SixD{}, fmt.Errorf("%w: %d bytes, want %d for %d bodies", ErrTruncatedBodies, len(data), want, n)
	}
	out := SixD{DropRate: rates[0], OutOfSyncRate: rates[1], Bodies: make([]Pose, 0, n)}
	for i := ratesLen; i < len(data); i += poseLen {
		var p Pose
		p.X = f32(data, i)
		p.Y = f32(data, i+4)
		p.Z = f32(data, i+8)
		for j := range p.Rotation {
			p.Rotation[j] = f32(data, i+12+4*j)
		}
		out.Bodies = append(out.Bodies, p)
	}
	return out, nil
}

// Parse6DEuler decodes a 6DOF Euler component payload.
func Parse6DEuler(data []byte) (SixDEuler, error) {
	n, rates, err := parseRates(data)
	if err != nil {
		return SixDEuler{}, err
	}
	if want := ratesLen + n*eulerPoseLen; len(data) != want {
		return SixDEuler{}, fmt.Errorf("%w: %d bytes, want %d for %d bodies", ErrTruncatedBodies, len(data), want, n)
	}
	out := SixDEuler{DropRate: rates[0], OutOfSyncRate: rates[1], Bodies: make([]EulerPose, 0, n)}
	for i := ratesLen; i < len(data); i += eulerPoseLen {
		out.Bodies = append(out.Bodies, EulerPose{
			X:     f32(data, i),
			Y:     f32(data, i+4),
			Z:     f32(data, i+8),
			Roll:  f32(data, i+12),
			Pitch: f32(data, i+16),
			Yaw:   f32(data, i+20),
		})
	}
	return out, nil
}

func parseRates(data []byte) (int, [2]uint16, error) {
	if len(data) < ratesLen {
		return 0, [2]uint16{}, fmt.Errorf("%w: %d bytes", ErrTruncatedBodies, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	drop := binary.LittleEndian.Uint16(data[4:6])
	outOfSync := binary.LittleEndian.Uint16(data[6:8])
	return n, [2]uint16{drop, outOfSync}, nil
}

func f32(data []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
}
