package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bakekit/internal/image"
	"bakekit/pkg/bakefile"
)

// BuildRecord is the audit record written after a successful build. Failed
// builds leave no record: a half-built layer stack is not a valid artifact,
// so there is nothing to resume from.
type BuildRecord struct {
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	BakefilePath  string    `json:"bakefile_path"`
	Profile       string    `json:"profile"`
	ImageRef      string    `json:"image_ref"`
	Tag           string    `json:"tag"`
	Packages      []string  `json:"packages"`
	Layers        int       `json:"layers"`
	FinishedAt    time.Time `json:"finished_at"`
}

const (
	RecordFileName      = ".bakekit.record.json"
	RecordSchemaVersion = "1.0"
)

// newRecord builds the audit record for a finished build.
func newRecord(bf *bakefile.Bakefile, bakefilePath, runID string, img *image.Image) *BuildRecord {
	return &BuildRecord{
		SchemaVersion: RecordSchemaVersion,
		RunID:         runID,
		BakefilePath:  bakefilePath,
		Profile:       bf.Spec.Profile,
		ImageRef:      img.Ref,
		Tag:           bf.Spec.Output.Tag,
		Packages:      img.Packages(),
		Layers:        len(img.Layers),
		FinishedAt:    time.Now(),
	}
}

// profileRecordPath returns the record file for one profile of a
// multi-profile build. Concurrent profile builds must never share a record
// file.
func profileRecordPath(profile string) string {
	return fmt.Sprintf(".bakekit.%s.record.json", profile)
}

// saveRecord persists the build record to path.
func saveRecord(record *BuildRecord, path string) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize build record: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write build record: %w", err)
	}

	return nil
}

// LoadRecord reads the most recent build record, or returns nil if none exists.
func LoadRecord() (*BuildRecord, error) {
	if _, err := os.Stat(RecordFileName); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(RecordFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read build record: %w", err)
	}

	var record BuildRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse build record: %w", err)
	}

	return &record, nil
}
