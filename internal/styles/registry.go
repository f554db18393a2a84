// Package styles implements the ad-hoc polymorphism the design notes call
// for: each rendering style is a "processor" capability with
// name/can_handle/validate/process/estimate_complexity, dispatched through
// a registry keyed by Style. This keeps each style's code path isolated
// instead of a deep inheritance hierarchy.
package styles

import (
	"context"
	"fmt"

	"github.com/vclip/vclip/internal/types"
)

// Request is everything a processor needs to render one (scene, style) pair.
type Request struct {
	UID          string
	VideoID      string
	SceneID      uint32
	Style        types.Style
	RawSegmentPath string
	CropMode     types.CropMode
	TargetAspect types.AspectRatio
}

// Context carries caller-provided dependencies as an untyped Deps value.
// None of the processors in this package read it; they receive their
// dependencies through their constructors.
type Context struct {
	Deps any
}

// Result is a successfully rendered clip, ready for upload.
type Result struct {
	LocalPath     string
	ThumbnailPath string
	DurationSeconds float64
}

// Processor is the capability every style implements.
type Processor interface {
	Name() string
	CanHandle(s types.Style) bool
	Validate(req Request, ctx Context) error
	Process(ctx context.Context, req Request, pctx Context) (Result, error)
	EstimateComplexity(req Request) int
}

// Registry maps a style to the processor that handles it.
type Registry struct {
	processors []Processor
}

func NewRegistry(processors ...Processor) *Registry {
	return &Registry{processors: processors}
}

func (r *Registry) ForStyle(s types.Style) (Processor, error) {
	for _, p := range r.processors {
		if p.CanHandle(s) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("styles: no processor registered for style %q", s)
}

// ValidateStyleSet checks that the style set is non-empty and that every
// requested style has a registered processor.
func (r *Registry) ValidateStyleSet(styles []types.Style) error {
	if len(styles) == 0 {
		return fmt.Errorf("styles: style set must be non-empty")
	}
	for _, s := range styles {
		if _, err := r.ForStyle(s); err != nil {
			return err
		}
	}
	return nil
}
