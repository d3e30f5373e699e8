package brainstream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneYAML = `
shapes:
  - type: sphere
    center: [15, 15, 2]
    radius: 5
  - type: box
    center: [5, 5, 2]
    dimensions: [2, 2, 2]
    rotation: [0, 0, 90]
  - type: cylinder
    end1: [0, 0, 0]
    radius1: 1
    end2: [10, 0, 0]
    radius2: 0.5
  - type: mesh
microscope:
  voxel_resolution: 1
  image_width: 10
  image_height: 10
  pixels_per_voxel: 1
  slice_thickness: 2
regions:
  - min: [0, 0, 0]
    max: [30, 30, 4]
calcium:
  timesteps: 2
  layers: 3
  concentrations:
    - [0.1, 0.2]
`

func TestLoadScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sceneYAML), 0o644))

	def, err := LoadScene(path)
	require.NoError(t, err)
	require.Len(t, def.Shapes, 4)

	assert.Equal(t, core.Sphere{Center: mgl64.Vec3{15, 15, 2}, Radius: 5}, def.Shapes[0].Shape())
	box, ok := def.Shapes[1].Shape().(core.Box)
	require.True(t, ok)
	assert.InDelta(t, mgl64.DegToRad(90), box.Rotation.Z(), 1e-12)
	assert.Equal(t, "cylinder", def.Shapes[2].Shape().Kind())
	assert.Equal(t, core.Unsupported{Name: "mesh"}, def.Shapes[3].Shape())

	p := def.Microscope.Params()
	assert.Equal(t, 10, p.ImageWidth)
	assert.Equal(t, 2.0, p.SliceThickness)
	require.NotNil(t, def.Calcium)
	assert.Equal(t, 3, def.Calcium.Layers)
}

func TestSceneApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sceneYAML), 0o644))
	def, err := LoadScene(path)
	require.NoError(t, err)

	sim := newTestSimulation(t, testConfig(t))
	ids := def.Apply(sim)
	assert.Equal(t, []int{0}, ids)

	sim.mu.Lock()
	defer sim.mu.Unlock()
	require.Len(t, sim.compartments, 4)
	assert.Equal(t, uint64(1), sim.compartments[0].ID)
	assert.Equal(t, 2, sim.timesteps)
	assert.Equal(t, 0.2, sim.source.Concentration(1, 1))
	assert.Equal(t, mgl64.Vec3{30, 30, 4}, sim.regions[0].Box.Max)
}
