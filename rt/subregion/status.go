package subregion

import "sync/atomic"

// Modality selects the imaging simulation.
type Modality int

const (
	EM Modality = iota
	Calcium
)

func (m Modality) String() string {
	switch m {
	case EM:
		return "EM"
	case Calcium:
		return "Calcium"
	default:
		return "unknown"
	}
}

// Progress is a snapshot of a running render.
type Progress struct {
	CurrentRegion int
	TotalRegions  int
	CurrentSlice  int
	TotalSlices   int
	CurrentImage  int
	TotalImages   int
}

type progress struct {
	currentRegion atomic.Int64
	totalRegions  atomic.Int64
	currentSlice  atomic.Int64
	totalSlices   atomic.Int64
	currentImage  atomic.Int64
	totalImages   atomic.Int64
}

func (p *progress) reset(regions, slices, images int) {
	p.currentRegion.Store(0)
	p.currentSlice.Store(0)
	p.currentImage.Store(0)
	p.totalRegions.Store(int64(regions))
	p.totalSlices.Store(int64(slices))
	p.totalImages.Store(int64(images))
}

func (p *progress) snapshot() Progress {
	return Progress{
		CurrentRegion: int(p.currentRegion.Load()),
		TotalRegions:  int(p.totalRegions.Load()),
		CurrentSlice:  int(p.currentSlice.Load()),
		TotalSlices:   int(p.totalSlices.Load()),
		CurrentImage:  int(p.currentImage.Load()),
		TotalImages:   int(p.totalImages.Load()),
	}
}
