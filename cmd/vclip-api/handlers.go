package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/store"
)

// shareHandler resolves a share slug to a redirect at the underlying clip's
// signed object-store URL. It is one of the gateway's plain-HTTP routes
// beside the WebSocket upgrade, with /share/create, /billing/webhook and
// /healthz.
type shareHandler struct {
	store   *store.Store
	objects filestore.ObjectStore
}

func (h *shareHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/share/")
	if slug == "" {
		http.NotFound(w, r)
		return
	}
	sl, err := h.store.GetShareSlug(r.Context(), slug)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	clips, err := h.store.ListClipsForVideo(r.Context(), sl.VideoID)
	if err != nil || len(clips) == 0 {
		http.Error(w, "no clips for shared video", http.StatusNotFound)
		return
	}
	url, err := h.signedURLFor(r.Context(), clips[0].ObjectKey)
	if err != nil {
		http.Error(w, "failed to sign clip url", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *shareHandler) signedURLFor(ctx context.Context, key string) (string, error) {
	return h.objects.SignedURL(ctx, key)
}
