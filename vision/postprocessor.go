package vision

import "github.com/samber/lo"

// Postprocessor defines a function that filters/modifies an incoming Segmentation. Objects are
// removed whole so that every per-object field stays aligned.
type Postprocessor func(*Segmentation) *Segmentation

// NewScoreFilter returns a function that filters out objects below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return filterObjects(func(o DetectedObject) bool { return o.Score >= conf })
}

// NewAreaFilter returns a function that filters out objects whose mask covers fewer pixels than
// area. Objects without a mask are kept.
func NewAreaFilter(area int) Postprocessor {
	return filterObjects(func(o DetectedObject) bool { return o.Mask == nil || o.Mask.Count() >= area })
}

// Chain applies the postprocessors in order.
func Chain(pps ...Postprocessor) Postprocessor {
	return func(seg *Segmentation) *Segmentation {
		for _, pp := range pps {
			if pp != nil {
				seg = pp(seg)
			}
		}
		return seg
	}
}

func filterObjects(keep func(DetectedObject) bool) Postprocessor {
	return func(in *Segmentation) *Segmentation {
		if in == nil {
			return nil
		}
		out := *in
		out.Objects = lo.Filter(in.Objects, func(o DetectedObject, _ int) bool { return keep(o) })
		return &out
	}
}
