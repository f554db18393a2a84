package wsgateway

import "github.com/vclip/vclip/internal/types"

// clientRequest is the single JSON message a client sends to open a session.
// Kind selects which job the gateway builds once admission passes, or, when
// Reconnect is set, which existing job's progress channel to resume
// streaming instead of enqueuing anything.
type clientRequest struct {
	Token string `json:"token"`
	Kind  string `json:"kind"` // "analyze" or "reprocess"

	// analyze fields
	DraftID            string  `json:"draft_id,omitempty"`
	VideoURL           string  `json:"video_url,omitempty"`
	PromptInstructions *string `json:"prompt_instructions,omitempty"`

	// reprocess fields
	VideoID        string             `json:"video_id,omitempty"`
	SceneIDs       []uint32           `json:"scene_ids,omitempty"`
	Styles         []types.Style      `json:"styles,omitempty"`
	CropMode       types.CropMode     `json:"crop_mode,omitempty"`
	TargetAspect   types.AspectRatio  `json:"target_aspect,omitempty"`
	CutSilentParts bool               `json:"cut_silent_parts,omitempty"`

	// reconnect
	Reconnect bool   `json:"reconnect,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}
