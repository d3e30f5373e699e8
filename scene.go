package brainstream

import (
	"fmt"
	"os"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/imaging"
	"github.com/braingenix/brainstream/rt/subregion"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// SceneDef defines the compartments, microscope and scan regions of an
// offline render.
type SceneDef struct {
	Shapes     []ShapeDef    `yaml:"shapes"`
	Microscope MicroscopeDef `yaml:"microscope"`
	Regions    []RegionDef   `yaml:"regions"`
	Calcium    *CalciumDef   `yaml:"calcium"`
}

// ShapeDef is one compartment. Type selects which fields apply:
// "sphere" uses Center and Radius, "box" uses Center, Dimensions and
// Rotation (degrees), "cylinder" uses End1, Radius1, End2 and Radius2.
type ShapeDef struct {
	Type       string     `yaml:"type"`
	Center     [3]float64 `yaml:"center"`
	Radius     float64    `yaml:"radius"`
	Dimensions [3]float64 `yaml:"dimensions"`
	Rotation   [3]float64 `yaml:"rotation"`
	End1       [3]float64 `yaml:"end1"`
	Radius1    float64    `yaml:"radius1"`
	End2       [3]float64 `yaml:"end2"`
	Radius2    float64    `yaml:"radius2"`
}

type MicroscopeDef struct {
	VoxelResolution float64 `yaml:"voxel_resolution"`
	ImageWidth      int     `yaml:"image_width"`
	ImageHeight     int     `yaml:"image_height"`
	PixelsPerVoxel  float64 `yaml:"pixels_per_voxel"`
	OverlapPercent  float64 `yaml:"overlap_percent"`
	SliceThickness  float64 `yaml:"slice_thickness"`
}

type RegionDef struct {
	Min      [3]float64 `yaml:"min"`
	Max      [3]float64 `yaml:"max"`
	Rotation [3]float64 `yaml:"rotation"`
}

// CalciumDef holds per-compartment concentration series indexed by the
// compartment's position in Shapes.
type CalciumDef struct {
	Timesteps      int         `yaml:"timesteps"`
	Layers         int         `yaml:"layers"`
	Concentrations [][]float64 `yaml:"concentrations"`
}

func LoadScene(path string) (*SceneDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def SceneDef
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &def, nil
}

// Shape converts d, returning core.Unsupported for unknown types so the
// generator can skip and report it.
func (d ShapeDef) Shape() core.Shape {
	switch d.Type {
	case "sphere":
		return core.Sphere{Center: mgl64.Vec3(d.Center), Radius: d.Radius}
	case "box":
		return core.Box{
			Center:     mgl64.Vec3(d.Center),
			Dimensions: mgl64.Vec3(d.Dimensions),
			Rotation: mgl64.Vec3{
				mgl64.DegToRad(d.Rotation[0]),
				mgl64.DegToRad(d.Rotation[1]),
				mgl64.DegToRad(d.Rotation[2]),
			},
		}
	case "cylinder":
		return core.Cylinder{
			End1:    mgl64.Vec3(d.End1),
			Radius1: d.Radius1,
			End2:    mgl64.Vec3(d.End2),
			Radius2: d.Radius2,
		}
	default:
		return core.Unsupported{Name: d.Type}
	}
}

func (d MicroscopeDef) Params() subregion.MicroscopeParams {
	return subregion.MicroscopeParams{
		VoxelResolution: d.VoxelResolution,
		ImageWidth:      d.ImageWidth,
		ImageHeight:     d.ImageHeight,
		PixelsPerVoxel:  d.PixelsPerVoxel,
		OverlapPercent:  d.OverlapPercent,
		SliceThickness:  d.SliceThickness,
	}
}

// Apply adds the scene to sim and returns the IDs of its scan regions.
func (def *SceneDef) Apply(sim *Simulation) []int {
	parents := make([]uint64, len(def.Shapes))
	for i, sh := range def.Shapes {
		parents[i] = sim.AddCompartment(sh.Shape())
	}
	if c := def.Calcium; c != nil {
		series := make(imaging.ConcentrationSeries, len(c.Concentrations))
		for i, values := range c.Concentrations {
			if i < len(parents) {
				series[parents[i]] = values
			}
		}
		sim.SetConcentrationSource(series, c.Timesteps, c.Layers)
	}
	ids := make([]int, 0, len(def.Regions))
	for _, r := range def.Regions {
		box := core.NewBoundingBox(mgl64.Vec3(r.Min), mgl64.Vec3(r.Max))
		ids = append(ids, sim.DefineScanRegion(box, mgl64.Vec3(r.Rotation)))
	}
	return ids
}
