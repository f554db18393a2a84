package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// jobWire is Job's wire shape: Payload travels as raw JSON so it can be
// decoded into the concrete struct matching Kind, since Payload's static
// type is `any` and a generic json.Unmarshal would otherwise hand callers
// back a map[string]any instead of e.g. AnalyzeJob.
type jobWire struct {
	JobID     string          `json:"job_id"`
	Kind      JobKind         `json:"kind"`
	UserID    string          `json:"user_id"`
	CreatedAt string          `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return json.Marshal(jobWire{
		JobID: j.JobID, Kind: j.Kind, UserID: j.UserID,
		CreatedAt: j.CreatedAt.Format(time.RFC3339Nano), Payload: payload,
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal job envelope: %w", err)
	}
	j.JobID = w.JobID
	j.Kind = w.Kind
	j.UserID = w.UserID
	if w.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
		if err != nil {
			return fmt.Errorf("unmarshal job created_at: %w", err)
		}
		j.CreatedAt = t
	}

	switch w.Kind {
	case JobAnalyze:
		var p AnalyzeJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal analyze payload: %w", err)
		}
		j.Payload = p
	case JobDownloadSource:
		var p DownloadSourceJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal download_source payload: %w", err)
		}
		j.Payload = p
	case JobReprocess:
		var p ReprocessJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal reprocess payload: %w", err)
		}
		j.Payload = p
	case JobRenderSceneStyle:
		var p RenderSceneStyleJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal render_scene_style payload: %w", err)
		}
		j.Payload = p
	default:
		return fmt.Errorf("unmarshal job: unknown kind %q", w.Kind)
	}
	return nil
}
