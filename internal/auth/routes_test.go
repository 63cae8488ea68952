package auth_test

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/auth"
)

func chiRouter(h *auth.Handler) chi.Router {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}
