package wsgateway

import (
	"fmt"

	"github.com/vclip/vclip/internal/security"
	"github.com/vclip/vclip/internal/types"
)

// validate runs the admission sequence a newly received request goes
// through before it's allowed to enqueue a job: rate limit,
// SSRF-validated source URL, sanitized prompt, get-or-create user, quota
// checks, style-tier checks.
func (s *session) validate(req clientRequest) (types.JobKind, any, error) {
	if err := s.gateway.tracker.CheckJobInterval(s.userID); err != nil {
		return "", nil, err
	}

	switch req.Kind {
	case string(types.JobAnalyze):
		if err := security.ValidateSourceURL(req.VideoURL); err != nil {
			return "", nil, fmt.Errorf("invalid video url: %w", err)
		}
		var prompt *string
		if req.PromptInstructions != nil {
			sanitized := security.SanitizePromptInstructions(*req.PromptInstructions)
			prompt = &sanitized
		}
		if _, err := s.gateway.store.GetOrCreateUser(s.ctx, s.userID); err != nil {
			return "", nil, fmt.Errorf("load user: %w", err)
		}
		if err := s.gateway.quota.CheckAllQuotas(s.ctx, s.userID, 0); err != nil {
			return "", nil, err
		}
		return types.JobAnalyze, types.AnalyzeJob{
			UserID: s.userID, DraftID: req.DraftID,
			VideoURL: req.VideoURL, PromptInstructions: prompt,
		}, nil

	case string(types.JobReprocess):
		if len(req.Styles) == 0 {
			return "", nil, fmt.Errorf("style set must be non-empty")
		}
		u, err := s.gateway.store.GetOrCreateUser(s.ctx, s.userID)
		if err != nil {
			return "", nil, fmt.Errorf("load user: %w", err)
		}
		expectedCredits := uint32(len(req.SceneIDs) * len(req.Styles))
		if err := s.gateway.quota.CheckAllQuotas(s.ctx, s.userID, expectedCredits); err != nil {
			return "", nil, err
		}
		if err := planAllowsStyles(u.PlanID, req.Styles); err != nil {
			return "", nil, err
		}
		return types.JobReprocess, types.ReprocessJob{
			UserID: s.userID, VideoID: req.VideoID,
			SceneIDs: req.SceneIDs, Styles: req.Styles,
			CropMode: req.CropMode, TargetAspect: req.TargetAspect,
			CutSilentParts: req.CutSilentParts,
		}, nil

	default:
		return "", nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

// planAllowsStyles checks the requested style set against the plan's
// feature tier. Free plans may not use Pro-only or Studio-only styles; Pro
// plans may not use Studio-only styles.
func planAllowsStyles(planID string, styles []types.Style) error {
	if types.ContainsStudioOnlyStyles(styles) && planID != "studio" {
		return fmt.Errorf("one or more requested styles require the studio plan")
	}
	if types.ContainsProOnlyStyles(styles) && planID != "pro" && planID != "studio" {
		return fmt.Errorf("one or more requested styles require the pro plan or above")
	}
	return nil
}
