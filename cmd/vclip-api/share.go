package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vclip/vclip/internal/store"
)

const shareSlugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
const shareSlugLength = 10

// createShareHandler mints a new share slug for one of the caller's clips,
// under /share/create.
type createShareHandler struct {
	store *store.Store
}

type createShareRequest struct {
	UID     string `json:"uid"`
	VideoID string `json:"video_id"`
}

func (h *createShareHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	slug, err := h.mintSlug(r.Context(), req.UID, req.VideoID)
	if err != nil {
		http.Error(w, "failed to mint share slug", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"slug": slug})
}

// mintSlug generates a fresh slug, retrying on the rare primary-key
// collision rather than requiring every caller to handle it.
func (h *createShareHandler) mintSlug(ctx context.Context, uid, videoID string) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		slug, err := gonanoid.Generate(shareSlugAlphabet, shareSlugLength)
		if err != nil {
			return "", err
		}
		err = h.store.PutShareSlug(ctx, &store.ShareSlug{
			Slug: slug, VideoID: videoID, UID: uid, CreatedAt: time.Now(),
		})
		if err == nil {
			return slug, nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return "", err
		}
	}
	return "", context.DeadlineExceeded
}
