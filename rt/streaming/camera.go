package streaming

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a viewpoint that pulls texture detail toward nearby models.
type Camera struct {
	Name     string
	Position mgl32.Vec3
	// StreamingPriority weights this camera's share of the per-frame
	// update budget.
	StreamingPriority float32
}

func NewCamera(name string, position mgl32.Vec3) *Camera {
	return &Camera{
		Name:              name,
		Position:          position,
		StreamingPriority: 1,
	}
}

// DistanceTo is the distance from the camera to the model's approximate
// bounding sphere, zero when the camera is inside it.
func (c *Camera) DistanceTo(m *RenderableModel) float32 {
	d := c.Position.Sub(m.Transform.Position).Len()
	return math32.Max(0, d-m.Transform.ApproximateRadius(m.Extent))
}
