package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/metrics"
	"github.com/san-kum/armsim/internal/protocol"
)

const (
	metadataFile = "metadata.json"
	statsFile    = "stats.csv"
	pathFile     = "path.csv"
)

var ErrEmptyRecording = errors.New("storage: recording has no stats and no path")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Target      kinematics.Vec3        `json:"target"`
	Joints      kinematics.JointAngles `json:"joints"`
	Generations int                    `json:"generations"`
	BestFitness float64                `json:"best_fitness"`
	Frames      int                    `json:"frames"`
	Samples     int                    `json:"samples"`
	Obstacle    *protocol.Obstacle     `json:"obstacle,omitempty"`
	Metrics     map[string]float64     `json:"metrics,omitempty"`
}

// Save writes rec under a new run directory. A failed save leaves nothing
// behind.
func (s *Store) Save(rec *Recording, arm *kinematics.Arm) (id string, err error) {
	if len(rec.Stats) == 0 && len(rec.Path) == 0 {
		return "", ErrEmptyRecording
	}

	now := time.Now()
	id = fmt.Sprintf("run_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(runDir)
		}
	}()

	meta := RunMetadata{
		ID:        id,
		RunID:     rec.RunID,
		Timestamp: now,
		Target:    rec.Target,
		Joints:    arm.Inverse(rec.Target),
		Frames:    rec.Frames,
		Samples:   len(rec.Path),
		Obstacle:  rec.Obstacle,
	}
	if n := len(rec.Stats); n > 0 {
		last := rec.Stats[n-1]
		meta.Generations = last.Generation
		meta.BestFitness = last.Best
	}
	if len(rec.Path) > 0 {
		meta.Metrics = metrics.Evaluate(rec.Path, metrics.ForRun(rec.Target, rec.Obstacle)...)
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	statsRows := [][]string{{"generation", "best", "avg", "steps"}}
	for _, st := range rec.Stats {
		statsRows = append(statsRows, []string{
			strconv.Itoa(st.Generation),
			strconv.FormatFloat(st.Best, 'f', 6, 64),
			strconv.FormatFloat(st.Avg, 'f', 6, 64),
			strconv.Itoa(st.Steps),
		})
	}
	if err := writeCSV(filepath.Join(runDir, statsFile), statsRows); err != nil {
		return "", err
	}

	pathRows := [][]string{{"x", "y", "z"}}
	for _, p := range rec.Path {
		pathRows = append(pathRows, []string{
			strconv.FormatFloat(p.X, 'f', 6, 64),
			strconv.FormatFloat(p.Y, 'f', 6, 64),
			strconv.FormatFloat(p.Z, 'f', 6, 64),
		})
	}
	if err := writeCSV(filepath.Join(runDir, pathFile), pathRows); err != nil {
		return "", err
	}

	return id, nil
}

// List returns every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(id string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadStats(id string) ([]protocol.Stats, error) {
	records, err := readCSV(filepath.Join(s.baseDir, id, statsFile))
	if err != nil {
		return nil, err
	}

	stats := make([]protocol.Stats, 0, len(records))
	for _, record := range records {
		if len(record) != 4 {
			continue
		}
		gen, err1 := strconv.Atoi(record[0])
		best, err2 := strconv.ParseFloat(record[1], 64)
		avg, err3 := strconv.ParseFloat(record[2], 64)
		steps, err4 := strconv.Atoi(record[3])
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			continue
		}
		stats = append(stats, protocol.Stats{Generation: gen, Best: best, Avg: avg, Steps: steps})
	}
	return stats, nil
}

func (s *Store) LoadPath(id string) ([]kinematics.Vec3, error) {
	records, err := readCSV(filepath.Join(s.baseDir, id, pathFile))
	if err != nil {
		return nil, err
	}

	path := make([]kinematics.Vec3, 0, len(records))
	for _, record := range records {
		if len(record) != 3 {
			continue
		}
		x, err1 := strconv.ParseFloat(record[0], 64)
		y, err2 := strconv.ParseFloat(record[1], 64)
		z, err3 := strconv.ParseFloat(record[2], 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			continue
		}
		path = append(path, kinematics.Vec3{X: x, Y: y, Z: z})
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

// readCSV returns the data rows of a file written by writeCSV.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}
