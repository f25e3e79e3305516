package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

type ExportData struct {
	Metadata RunMetadata       `json:"metadata"`
	Stats    []protocol.Stats  `json:"stats"`
	Path     []kinematics.Vec3 `json:"path"`
}

// Export writes a stored run as a single JSON document.
func (s *Store) Export(w io.Writer, id string) error {
	meta, err := s.Load(id)
	if err != nil {
		return err
	}
	stats, err := s.LoadStats(id)
	if err != nil {
		return err
	}
	path, err := s.LoadPath(id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Metadata: *meta, Stats: stats, Path: path})
}
