package brainstream

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/braingenix/brainstream/rt/generator"
	"github.com/braingenix/brainstream/rt/imaging"
	"github.com/braingenix/brainstream/rt/streaming"
	"github.com/braingenix/brainstream/rt/subregion"
	"gopkg.in/yaml.v3"
)

const mb = 1 << 20

type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Pools       PoolsConfig       `yaml:"pools"`
	Memory      MemoryConfig      `yaml:"memory"`
	Streaming   StreamingConfig   `yaml:"streaming"`
	Subdivision SubdivisionConfig `yaml:"subdivision"`
	Output      OutputConfig      `yaml:"output"`
	PostProcess PostProcessConfig `yaml:"post_process"`
}

type LoggingConfig struct {
	Prefix string `yaml:"prefix"`
	Debug  bool   `yaml:"debug"`
}

type PoolsConfig struct {
	// Zero means one worker per CPU.
	GeneratorWorkers int `yaml:"generator_workers"`
	ImageWorkers     int `yaml:"image_workers"`
}

type MemoryConfig struct {
	ScalingPercent          float64 `yaml:"scaling_percent"`
	MaxArrayEdge            int     `yaml:"max_array_edge"`
	ReservationLimitPercent float64 `yaml:"reservation_limit_percent"`
	PollIntervalMs          int     `yaml:"poll_interval_ms"`

	RAMBudgetMB   uint64 `yaml:"ram_budget_mb"`
	VRAMBudgetMB  uint64 `yaml:"vram_budget_mb"`
	RAMWarningMB  uint64 `yaml:"ram_warning_mb"`
	VRAMWarningMB uint64 `yaml:"vram_warning_mb"`
	RAMCriticalMB uint64 `yaml:"ram_critical_mb"`
}

type StreamingConfig struct {
	UpdatesPerFrame      int     `yaml:"updates_per_frame"`
	Quadratic            bool    `yaml:"quadratic"`
	RAMCutoffDistance    float32 `yaml:"ram_cutoff_distance"`
	VRAMCutoffDistance   float32 `yaml:"vram_cutoff_distance"`
	DistanceExponent     float32 `yaml:"distance_exponent"`
	LinearCoefficient    float32 `yaml:"linear_coefficient"`
	ConstantCoefficient  float32 `yaml:"constant_coefficient"`
	GlobalMinLOD         int     `yaml:"global_min_lod"`
	GlobalMaxLOD         int     `yaml:"global_max_lod"`
	MaxTextureResolution int     `yaml:"max_texture_resolution"`
	UploadIntervalMs     int     `yaml:"upload_interval_ms"`
}

type SubdivisionConfig struct {
	Threshold uint64 `yaml:"threshold"`
	Noise     bool   `yaml:"noise"`
	NoiseSeed int64  `yaml:"noise_seed"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// IndexDB is a SQLite file for the image index; empty keeps it in
	// memory.
	IndexDB            string `yaml:"index_db"`
	AssetDir           string `yaml:"asset_dir"`
	ExportSegmentation bool   `yaml:"export_segmentation"`
	Seed               int64  `yaml:"seed"`
}

type PostProcessConfig struct {
	ContrastJitter        float64 `yaml:"contrast_jitter"`
	BrightnessJitter      float64 `yaml:"brightness_jitter"`
	Interference          bool    `yaml:"interference"`
	InterferenceAmplitude float64 `yaml:"interference_amplitude"`
	InterferencePeriod    float64 `yaml:"interference_period"`
	InterferenceAngle     float64 `yaml:"interference_angle"`
	PreBlurNoise          float64 `yaml:"pre_blur_noise"`
	BlurRadius            float64 `yaml:"blur_radius"`
	PostBlurNoise         float64 `yaml:"post_blur_noise"`
}

func DefaultConfig() Config {
	sc := streaming.DefaultConfig()
	dc := subregion.DefaultConfig()
	return Config{
		Logging: LoggingConfig{Prefix: "brainstream"},
		Memory: MemoryConfig{
			ScalingPercent:          dc.MemoryScalingPercent,
			MaxArrayEdge:            dc.MaxEdgeCeiling,
			ReservationLimitPercent: dc.ReservationLimitPercent,
			PollIntervalMs:          int(dc.PollInterval / time.Millisecond),
			RAMBudgetMB:             4096,
			VRAMBudgetMB:            2048,
		},
		Streaming: StreamingConfig{
			UpdatesPerFrame:    sc.TotalUpdatesPerFrame,
			RAMCutoffDistance:  sc.RAMCutoffDistance,
			VRAMCutoffDistance: sc.VRAMCutoffDistance,
			DistanceExponent:   sc.DistanceExponent,
			UploadIntervalMs:   16,
		},
		Subdivision: SubdivisionConfig{Threshold: generator.DefaultSubdivisionThreshold},
		Output:      OutputConfig{Dir: "output"},
		PostProcess: PostProcessConfig{
			PreBlurNoise:  0.02,
			BlurRadius:    1,
			PostBlurNoise: 0.01,
		},
	}
}

// LoadConfig reads a YAML file over the defaults, so keys missing from the
// file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func (c Config) ManagerConfig() streaming.Config {
	s := c.Streaming
	return streaming.Config{
		TotalUpdatesPerFrame: s.UpdatesPerFrame,
		Quadratic:            s.Quadratic,
		RAMCutoffDistance:    s.RAMCutoffDistance,
		VRAMCutoffDistance:   s.VRAMCutoffDistance,
		DistanceExponent:     s.DistanceExponent,
		LinearCoefficient:    s.LinearCoefficient,
		ConstantCoefficient:  s.ConstantCoefficient,
		GlobalMinLOD:         s.GlobalMinLOD,
		GlobalMaxLOD:         s.GlobalMaxLOD,
		MaxTextureResolution: s.MaxTextureResolution,
		RAMWarningBytes:      c.Memory.RAMWarningMB * mb,
		VRAMWarningBytes:     c.Memory.VRAMWarningMB * mb,
		RAMCriticalBytes:     c.Memory.RAMCriticalMB * mb,
	}
}

func (c Config) DriverConfig() subregion.Config {
	return subregion.Config{
		MemoryScalingPercent:    c.Memory.ScalingPercent,
		MaxEdgeCeiling:          c.Memory.MaxArrayEdge,
		ReservationLimitPercent: c.Memory.ReservationLimitPercent,
		PollInterval:            time.Duration(c.Memory.PollIntervalMs) * time.Millisecond,
		SubdivisionThreshold:    c.Subdivision.Threshold,
	}
}

func (c Config) PostProcessing() imaging.PostProcess {
	p := c.PostProcess
	return imaging.PostProcess{
		ContrastJitter:   p.ContrastJitter,
		BrightnessJitter: p.BrightnessJitter,
		Interference: imaging.Interference{
			Enabled:   p.Interference,
			Amplitude: p.InterferenceAmplitude,
			Period:    p.InterferencePeriod,
			Angle:     p.InterferenceAngle,
		},
		PreBlurNoise:  p.PreBlurNoise,
		BlurRadius:    p.BlurRadius,
		PostBlurNoise: p.PostBlurNoise,
	}
}

func (c Config) noise() *generator.NoiseParams {
	if !c.Subdivision.Noise {
		return nil
	}
	return generator.DefaultNoise(c.Subdivision.NoiseSeed)
}

func (c Config) budgets() (ram, vram uint64) {
	return c.Memory.RAMBudgetMB * mb, c.Memory.VRAMBudgetMB * mb
}
