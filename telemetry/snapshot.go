package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot reasons.
const (
	ReasonPeriodic     = ""
	ReasonNotConverged = "not converged"
	ReasonFinal        = "final"
)

// Snapshot holds the particle state after one step.
type Snapshot struct {
	Version int    `json:"version"`
	Seed    int64  `json:"seed"`
	Scene   string `json:"scene"`
	Dim     int    `json:"dim"`

	Step int     `json:"step"`
	Time float64 `json:"time"`

	// Reason is appended to the file name when set.
	Reason string `json:"reason,omitempty"`

	Particles []ParticleState `json:"particles"`
	Contacts  []ContactState  `json:"contacts"`
}

// ParticleState holds one particle's kinematic state.
type ParticleState struct {
	ID       uint32     `json:"id"`
	Fixed    bool       `json:"fixed"`
	Shape    string     `json:"shape"`
	Radius   float64    `json:"radius,omitempty"`
	Normal   [3]float64 `json:"normal,omitempty"`
	Mass     float64    `json:"mass"`
	Inertia  [3]float64 `json:"inertia"`
	Position [3]float64 `json:"position"`
	// Rotation is the unit quaternion as (real, i, j, k).
	Rotation [4]float64 `json:"rotation"`
	Velocity [3]float64 `json:"velocity"`
	Omega    [3]float64 `json:"omega"`
}

// ContactState holds one contact and the force it carried.
type ContactState struct {
	I        int     `json:"i"`
	J        int     `json:"j"`
	Distance float64 `json:"distance"`
	Force    float64 `json:"force"`
	Gamma    float64 `json:"gamma,omitempty"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Reason != "" {
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, strings.ReplaceAll(snapshot.Reason, " ", "_"))
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
