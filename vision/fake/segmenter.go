// Package fake implements a deterministic Segmenter for tests and for running the pipeline
// without a model.
package fake

import (
	"context"
	"sync"
	"time"

	"go.viam.com/utils"

	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
	"go.viam.com/segfront/vision"
)

const maxSeen = 1024

// Object is a detection the fake segmenter reports on every frame. Its mask is the box.
type Object struct {
	Box     vision.Box
	ClassID int
	Score   float64
}

// Segmenter reports the same objects for every frame.
type Segmenter struct {
	Objects []Object
	// NoMasks makes the segmenter report that masks are unavailable.
	NoMasks bool
	// Latency is how long each call takes.
	Latency time.Duration
	// Labels names class ids on the visualization.
	Labels func(classID int) string

	mu      sync.Mutex
	headers []ros.Header
}

// NewSegmenter returns a fake that reports objects on every frame.
func NewSegmenter(objects ...Object) *Segmenter {
	return &Segmenter{Objects: objects}
}

// Segment implements vision.Segmenter.
func (s *Segmenter) Segment(ctx context.Context, frame *rimage.Frame) (*vision.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Latency > 0 {
		utils.SelectContextOrWait(ctx, s.Latency)
	}
	s.mu.Lock()
	s.headers = append(s.headers, frame.Header)
	if len(s.headers) > maxSeen {
		s.headers = s.headers[len(s.headers)-maxSeen:]
	}
	s.mu.Unlock()

	seg := &vision.Segmentation{MasksAvailable: !s.NoMasks}
	if !s.NoMasks {
		for _, o := range s.Objects {
			seg.Objects = append(seg.Objects, vision.DetectedObject{
				Box:     o.Box,
				Mask:    vision.NewBoxMask(frame.Width, frame.Height, o.Box.Rect()),
				ClassID: o.ClassID,
				Score:   o.Score,
			})
		}
	}

	base, err := rimage.ToImage(frame)
	if err != nil {
		return nil, err
	}
	seg.Visualization = vision.Annotate(base, seg.Objects, s.Labels)
	return seg, nil
}

// Seen returns the headers of the most recent frames segmented, oldest first.
func (s *Segmenter) Seen() []ros.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ros.Header(nil), s.headers...)
}
