package board

import (
	"encoding/json"
	"fmt"

	"agentboard/internal/domain"
)

const SnapshotVersion = 1

// Snapshot is the exported canvas document: everything needed to rebuild
// the board, minus transient state like selection and popups.
type Snapshot struct {
	Version     int                 `json:"version"`
	Prompt      string              `json:"prompt,omitempty"`
	Viewport    domain.Viewport     `json:"viewport"`
	Boxes       []domain.AgentBox   `json:"boxes"`
	Connections []domain.Connection `json:"connections"`
}

func (b *Board) Snapshot() Snapshot {
	return Snapshot{
		Version:     SnapshotVersion,
		Prompt:      b.prompt,
		Viewport:    b.viewport,
		Boxes:       b.Boxes(),
		Connections: b.Connections(),
	}
}

func (b *Board) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(b.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the whole board state with the snapshot. Validation runs
// before anything is touched: a rejected snapshot leaves the board as it was.
func (b *Board) Restore(snap Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	boxes := make([]domain.AgentBox, len(snap.Boxes))
	copy(boxes, snap.Boxes)
	conns := make([]domain.Connection, len(snap.Connections))
	copy(conns, snap.Connections)

	b.boxes = boxes
	b.connections = conns
	b.popups = make(map[string]domain.PopupState)
	b.prompt = snap.Prompt
	b.SetViewport(snap.Viewport)
	return nil
}

func (b *Board) ImportJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return b.Restore(snap)
}

func validateSnapshot(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Viewport.Scale <= 0 {
		return fmt.Errorf("invalid viewport scale %v", snap.Viewport.Scale)
	}

	ids := make(map[string]bool, len(snap.Boxes))
	for _, box := range snap.Boxes {
		if box.ID == "" {
			return fmt.Errorf("box with empty id")
		}
		if ids[box.ID] {
			return fmt.Errorf("duplicate box id %s", box.ID)
		}
		ids[box.ID] = true
		if box.Width < domain.MinBoxWidth || box.Height < domain.MinBoxHeight {
			return fmt.Errorf("box %s below minimum size (%gx%g)", box.ID, box.Width, box.Height)
		}
	}

	for _, conn := range snap.Connections {
		if conn.ID == "" {
			return fmt.Errorf("connection with empty id")
		}
		if conn.FromID == conn.ToID {
			return fmt.Errorf("connection %s is a self-loop", conn.ID)
		}
		if !conn.FromSide.Valid() || !conn.ToSide.Valid() {
			return fmt.Errorf("connection %s has invalid side", conn.ID)
		}
		if !ids[conn.FromID] || !ids[conn.ToID] {
			return fmt.Errorf("connection %s references missing box", conn.ID)
		}
	}
	return nil
}
