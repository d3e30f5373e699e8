// Package neuroglancer writes rendered stacks and segmentations as
// Neuroglancer precomputed datasets.
package neuroglancer

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Info is the "info" file at the root of a precomputed volume.
type Info struct {
	Type        string  `json:"@type"`
	DataType    string  `json:"data_type"`
	NumChannels int     `json:"num_channels"`
	VolumeType  string  `json:"type"`
	Scales      []Scale `json:"scales"`
}

type Scale struct {
	Key         string     `json:"key"`
	Size        [3]int     `json:"size"`
	Resolution  [3]float64 `json:"resolution"`
	VoxelOffset [3]int     `json:"voxel_offset"`
	ChunkSizes  [][3]int   `json:"chunk_sizes"`
	Encoding    string     `json:"encoding"`
}

func newInfo(dataType, volumeType string) Info {
	return Info{
		Type:        "neuroglancer_multiscale_volume",
		DataType:    dataType,
		NumChannels: 1,
		VolumeType:  volumeType,
	}
}

func writeInfo(dir string, info Info) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "info"), b, 0o644)
}

// ReadInfo loads the info file of a volume directory.
func ReadInfo(dir string) (Info, error) {
	var info Info
	b, err := os.ReadFile(filepath.Join(dir, "info"))
	if err != nil {
		return info, err
	}
	err = json.Unmarshal(b, &info)
	return info, err
}
