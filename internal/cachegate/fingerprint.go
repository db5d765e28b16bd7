package cachegate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"scanlapse/internal/fileutil"
)

// Fingerprint captures every input that changes extracted pixels.
type Fingerprint struct {
	GeometryHashes      []string `json:"geometry_hashes"`
	SegmentStarts       []int    `json:"segment_starts"`
	PaddingActive       bool     `json:"padding_active"`
	SourceCropped       bool     `json:"source_cropped"`
	GeometryFromCropped bool     `json:"geometry_from_cropped"`
	ResizeFactor        float64  `json:"resize_factor"`
	PreserveTimestamps  bool     `json:"preserve_timestamps"`
}

// Equal reports full structural equality.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return slices.Equal(f.GeometryHashes, other.GeometryHashes) &&
		slices.Equal(f.SegmentStarts, other.SegmentStarts) &&
		f.PaddingActive == other.PaddingActive &&
		f.SourceCropped == other.SourceCropped &&
		f.GeometryFromCropped == other.GeometryFromCropped &&
		f.ResizeFactor == other.ResizeFactor &&
		f.PreserveTimestamps == other.PreserveTimestamps
}

// ExtractionInputs lists what goes into an extraction fingerprint.
type ExtractionInputs struct {
	GeometryFiles       []string
	SegmentStarts       []int
	PaddingActive       bool
	SourceCropped       bool
	GeometryFromCropped bool
	ResizeFactor        float64
	PreserveTimestamps  bool
}

// NewFingerprint hashes the geometry files in segment order.
func NewFingerprint(in ExtractionInputs) (Fingerprint, error) {
	hashes := make([]string, 0, len(in.GeometryFiles))
	for _, path := range in.GeometryFiles {
		sum, err := fileutil.HashFile(path)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("hash geometry file: %w", err)
		}
		hashes = append(hashes, sum)
	}
	return Fingerprint{
		GeometryHashes:      hashes,
		SegmentStarts:       slices.Clone(in.SegmentStarts),
		PaddingActive:       in.PaddingActive,
		SourceCropped:       in.SourceCropped,
		GeometryFromCropped: in.GeometryFromCropped,
		ResizeFactor:        in.ResizeFactor,
		PreserveTimestamps:  in.PreserveTimestamps,
	}, nil
}

// MeasureFingerprint extends the extraction fingerprint with the inputs that
// only affect measured values.
type MeasureFingerprint struct {
	Extraction          Fingerprint `json:"extraction"`
	MetadataHash        string      `json:"metadata_hash"`
	ForceFileNumberTime bool        `json:"force_file_number_time"`
	IntervalHours       float64     `json:"interval_hours"`
	StartHours          float64     `json:"start_hours"`
	Normalization       string      `json:"normalization"`
	Percentage          float64     `json:"percentage"`
}

// MeasureInputs lists what goes into a measurement fingerprint on top of the
// extraction fingerprint.
type MeasureInputs struct {
	MetadataFile        string
	ForceFileNumberTime bool
	IntervalHours       float64
	StartHours          float64
	Normalization       string
	Percentage          float64
}

// NewMeasureFingerprint hashes the metadata file and records the flags.
func NewMeasureFingerprint(extraction Fingerprint, in MeasureInputs) (MeasureFingerprint, error) {
	sum, err := fileutil.HashFile(in.MetadataFile)
	if err != nil {
		return MeasureFingerprint{}, fmt.Errorf("hash metadata file: %w", err)
	}
	return MeasureFingerprint{
		Extraction:          extraction,
		MetadataHash:        sum,
		ForceFileNumberTime: in.ForceFileNumberTime,
		IntervalHours:       in.IntervalHours,
		StartHours:          in.StartHours,
		Normalization:       in.Normalization,
		Percentage:          in.Percentage,
	}, nil
}

// Digest returns a stable hex key for storage alongside measured tables.
func (m MeasureFingerprint) Digest() string {
	payload, err := json.Marshal(m)
	if err != nil {
		// Only plain values are marshalled; this cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
