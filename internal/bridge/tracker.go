package bridge

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/danmuck/qtmctl/internal/protocol/component"
)

var ErrBodyNotFound = errors.New("bridge: body not found")

// BodyState is one rigid body's pose in the latest frame. Position is in
// the configured units; Rotation carries the row-major 3x3 matrix when
// streaming 6D, Euler carries roll/pitch/yaw when streaming 6DEuler. A
// body whose tracking is lost keeps Tracked false and zeroed pose fields
// so snapshots stay JSON-encodable.
type BodyState struct {
	Name     string     `json:"name"`
	Tracked  bool       `json:"tracked"`
	Position [3]float64 `json:"position"`
	Rotation []float64  `json:"rotation,omitempty"`
	Euler    []float64  `json:"euler,omitempty"`
}

// FrameSnapshot is the full state derived from one data packet.
type FrameSnapshot struct {
	FrameNumber   uint32      `json:"frame_number"`
	TimestampUS   int64       `json:"timestamp_us"`
	ReceivedAt    time.Time   `json:"received_at"`
	DropRate      uint16      `json:"drop_rate"`
	OutOfSyncRate uint16      `json:"out_of_sync_rate"`
	Bodies        []BodyState `json:"bodies"`
}

// TrackedCount reports how many bodies are currently tracked.
func (f FrameSnapshot) TrackedCount() int {
	n := 0
	for _, b := range f.Bodies {
		if b.Tracked {
			n++
		}
	}
	return n
}

// Tracker holds the latest frame for the HTTP side. The streaming pump
// replaces snapshots wholesale and never mutates a published one, so
// readers may hold a returned snapshot across requests.
type Tracker struct {
	mu     sync.RWMutex
	names  []string
	latest FrameSnapshot
	seen   bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetBodies installs the body names discovered from the parameter set and
// clears any frame from a previous stream.
func (t *Tracker) SetBodies(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append([]string(nil), names...)
	t.latest = FrameSnapshot{}
	t.seen = false
}

func (t *Tracker) BodyNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.names...)
}

func (t *Tracker) Update(snap FrameSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = snap
	t.seen = true
}

// Latest returns the most recent snapshot, if any frame arrived yet.
func (t *Tracker) Latest() (FrameSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.seen
}

// Body looks up one body by name in the latest snapshot.
func (t *Tracker) Body(name string) (BodyState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.seen {
		return BodyState{}, ErrBodyNotFound
	}
	for _, b := range t.latest.Bodies {
		if b.Name == name {
			return b, nil
		}
	}
	return BodyState{}, ErrBodyNotFound
}

// snapshotFrom6D zips discovered names with decoded poses. Callers have
// already checked that counts match. QTM reports lost tracking as NaN
// coordinates; those bodies come out untracked with zeroed fields.
func snapshotFrom6D(names []string, hdr component.Header, comp component.SixD, scale float64) FrameSnapshot {
	snap := FrameSnapshot{
		FrameNumber:   hdr.FrameNumber,
		TimestampUS:   hdr.Timestamp,
		ReceivedAt:    time.Now(),
		DropRate:      comp.DropRate,
		OutOfSyncRate: comp.OutOfSyncRate,
		Bodies:        make([]BodyState, 0, len(comp.Bodies)),
	}
	for i, pose := range comp.Bodies {
		state := BodyState{Name: names[i]}
		if !poseLost(pose.X, pose.Y, pose.Z) {
			state.Tracked = true
			state.Position = [3]float64{
				float64(pose.X) * scale,
				float64(pose.Y) * scale,
				float64(pose.Z) * scale,
			}
			state.Rotation = make([]float64, len(pose.Rotation))
			for j, r := range pose.Rotation {
				state.Rotation[j] = float64(r)
			}
		}
		snap.Bodies = append(snap.Bodies, state)
	}
	return snap
}

func snapshotFrom6DEuler(names []string, hdr component.Header, comp component.SixDEuler, scale float64) FrameSnapshot {
	snap := FrameSnapshot{
		FrameNumber:   hdr.FrameNumber,
		TimestampUS:   hdr.Timestamp,
		ReceivedAt:    time.Now(),
		DropRate:      comp.DropRate,
		OutOfSyncRate: comp.OutOfSyncRate,
		Bodies:        make([]BodyState, 0, len(comp.Bodies)),
	}
	for i, pose := range comp.Bodies {
		state := BodyState{Name: names[i]}
		if !poseLost(pose.X, pose.Y, pose.Z) {
			state.Tracked = true
			state.Position = [3]float64{
				float64(pose.X) * scale,
				float64(pose.Y) * scale,
				float64(pose.Z) * scale,
			}
			state.Euler = []float64{
				float64(pose.Roll),
				float64(pose.Pitch),
				float64(pose.Yaw),
			}
		}
		snap.Bodies = append(snap.Bodies, state)
	}
	return snap
}

func poseLost(x, y, z float32) bool {
	return math.IsNaN(float64(x)) || math.IsNaN(float64(y)) || math.IsNaN(float64(z))
}
