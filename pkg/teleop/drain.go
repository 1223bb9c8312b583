package teleop

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/armrec/pkg/catalog"
	"github.com/gwillem/armrec/pkg/metrics"
	"github.com/gwillem/armrec/pkg/pickle"
)

// ManifestFile is written next to the snapshot files.
const ManifestFile = "run.yaml"

// SnapshotName returns the file name of record j.
func SnapshotName(j int) string {
	return fmt.Sprintf("data_%d.pkl", j)
}

// SnapshotFiles lists the snapshot files in dir ordered by record index.
func SnapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	type indexed struct {
		idx  int
		path string
	}
	var files []indexed
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		num, ok := strings.CutPrefix(e.Name(), "data_")
		if !ok {
			continue
		}
		num, ok = strings.CutSuffix(num, ".pkl")
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(num)
		if err != nil || idx < 0 {
			continue
		}
		files = append(files, indexed{idx, filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].idx < files[j].idx })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// drain writes every record to its own file, continuing past failures.
func (r *Recorder) drain() []catalog.Snapshot {
	log := r.pc.Logger
	records := r.pc.Buffer.Records()
	snaps := make([]catalog.Snapshot, 0, len(records))

	for j, rec := range records {
		path := filepath.Join(r.snapshotDir, SnapshotName(j))
		snap := catalog.Snapshot{
			RunID:      r.runID,
			Index:      j,
			Path:       path,
			HasControl: rec.Control != nil,
		}
		if err := pickle.WriteFile(path, rec); err != nil {
			snap.Error = err.Error()
			r.pc.Metrics.Snapshots.WithLabelValues(metrics.ResultFailed).Inc()
			log.Error("error writing file", "path", path, "err", err)
		} else {
			r.pc.Metrics.Snapshots.WithLabelValues(metrics.ResultWritten).Inc()
			log.Debug("wrote file", "path", path)
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Manifest describes a run for tools reading the snapshot directory.
type Manifest struct {
	RunID           string    `yaml:"run_id"`
	StartedAt       time.Time `yaml:"started_at"`
	EndedAt         time.Time `yaml:"ended_at"`
	MasterPort      string    `yaml:"master_port"`
	FollowerPort    string    `yaml:"follower_port"`
	ControlSource   string    `yaml:"control_source"`
	Period          string    `yaml:"period"`
	SafeZoneEnforce bool      `yaml:"safe_zone_enforced"`
	ImageDir        string    `yaml:"image_dir,omitempty"`
	Records         int       `yaml:"records"`
	Written         int       `yaml:"written"`
	Failed          int       `yaml:"failed"`
	Frames          int       `yaml:"frames"`
	StopReason      string    `yaml:"stop_reason"`
}

func (r *Recorder) manifest(sum Summary) Manifest {
	return Manifest{
		RunID:           sum.RunID,
		StartedAt:       sum.StartedAt,
		EndedAt:         sum.EndedAt,
		MasterPort:      r.cfg.MasterDevice,
		FollowerPort:    r.cfg.FollowerDevice,
		ControlSource:   string(r.cfg.ControlSource),
		Period:          r.cfg.Period.String(),
		SafeZoneEnforce: r.cfg.EnforceSafeZone,
		ImageDir:        sum.ImageDir,
		Records:         sum.Records,
		Written:         sum.Written,
		Failed:          sum.Failed,
		Frames:          sum.Frames,
		StopReason:      sum.StopReason,
	}
}

func writeManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a run manifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
