package brainstream

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/braingenix/brainstream/rt/assets"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/braingenix/brainstream/rt/streaming"
	"github.com/go-gl/mathgl/mgl32"
)

// FrameStreamer runs texture streaming for the live scene. The renderer
// calls Frame once per frame; Run moves resident levels in the background.
type FrameStreamer struct {
	store    assets.Store
	monitor  *resource.Monitor
	manager  *streaming.Manager
	uploader *streaming.AsyncUploader
	logger   Logger

	mu      sync.Mutex
	models  []*streaming.RenderableModel
	cameras []*streaming.Camera
}

func NewFrameStreamer(cfg Config, store assets.Store, probe resource.SystemMemoryProbe, logger Logger) *FrameStreamer {
	logger = core.OrNop(logger)
	if probe == nil {
		probe = resource.NewHostProbe(nil)
	}
	ram, vram := cfg.budgets()
	monitor := resource.NewMonitor(ram, vram)
	uploader := streaming.NewAsyncUploader(store, time.Duration(cfg.Streaming.UploadIntervalMs)*time.Millisecond, logger)
	return &FrameStreamer{
		store:    store,
		monitor:  monitor,
		manager:  streaming.NewManager(cfg.ManagerConfig(), monitor, probe, uploader, logger),
		uploader: uploader,
		logger:   logger,
	}
}

func (f *FrameStreamer) Monitor() *resource.Monitor         { return f.monitor }
func (f *FrameStreamer) Uploader() *streaming.AsyncUploader { return f.uploader }

// ImportModel stores the mip chains of the PNG textures at paths and adds
// a model that streams them.
func (f *FrameStreamer) ImportModel(name string, transform core.Transform, extent mgl32.Vec3, paths ...string) (*streaming.RenderableModel, error) {
	textures := make([]streaming.Texture, 0, len(paths))
	for _, p := range paths {
		levels, err := assets.ImportTexture(f.store, p)
		if err != nil {
			return nil, err
		}
		textures = append(textures, streaming.Texture{
			Name:   strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
			Levels: levels,
		})
	}
	m := streaming.NewRenderableModel(name, transform, extent, textures)
	f.AddModel(m)
	return m, nil
}

func (f *FrameStreamer) AddModel(m *streaming.RenderableModel) {
	f.mu.Lock()
	f.models = append(f.models, m)
	models := slices.Clone(f.models)
	f.mu.Unlock()
	f.uploader.SetModels(models)
}

// RemoveModel drops every model called name from streaming.
func (f *FrameStreamer) RemoveModel(name string) {
	f.mu.Lock()
	f.models = slices.DeleteFunc(f.models, func(m *streaming.RenderableModel) bool { return m.Name == name })
	models := slices.Clone(f.models)
	f.mu.Unlock()
	f.uploader.SetModels(models)
}

func (f *FrameStreamer) AddCamera(c *streaming.Camera) {
	f.mu.Lock()
	f.cameras = append(f.cameras, c)
	f.mu.Unlock()
}

// Frame runs one streaming decision pass over every model and camera.
func (f *FrameStreamer) Frame() streaming.PassStats {
	f.mu.Lock()
	models := slices.Clone(f.models)
	cameras := slices.Clone(f.cameras)
	f.mu.Unlock()

	stats := f.manager.UpdateStreamingDecisions(models, cameras)
	if f.logger.DebugEnabled() {
		f.logger.Debugf("streaming frame: quotas %v, %d up, %d down, RAM %d B, VRAM %d B",
			stats.Quotas, stats.Increases, stats.Decreases,
			f.monitor.Usage(resource.RAM), f.monitor.Usage(resource.VRAM))
	}
	return stats
}

// Run drives the uploader until ctx is done.
func (f *FrameStreamer) Run(ctx context.Context) {
	f.uploader.Run(ctx)
}
