package settings

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// view is the non-secret state returned to the popup UI. The API key itself
// never leaves the store; only its presence is reported.
type view struct {
	APIKeyConfigured bool `json:"api_key_configured"`
	PostProcessing   bool `json:"post_processing"`
}

type update struct {
	APIKey         *string `json:"api_key,omitempty"`
	PostProcessing *bool   `json:"post_processing,omitempty"`
}

// Handler serves GET/PUT on the settings surface so a popup UI can
// configure the relay.
func Handler(store *Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			snap, err := store.Snapshot(r.Context())
			if err != nil {
				logger.Error().Err(err).Msg("Failed to read settings")
				http.Error(w, "settings unavailable", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(view{
				APIKeyConfigured: snap.APIKey != "",
				PostProcessing:   snap.PostProcessing,
			})

		case http.MethodPut:
			var upd update
			if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
				http.Error(w, "malformed body", http.StatusBadRequest)
				return
			}
			if upd.APIKey != nil {
				if err := store.SetAPIKey(r.Context(), *upd.APIKey); err != nil {
					logger.Error().Err(err).Msg("Failed to store API key")
					http.Error(w, "settings unavailable", http.StatusInternalServerError)
					return
				}
			}
			if upd.PostProcessing != nil {
				if err := store.SetPostProcessing(r.Context(), *upd.PostProcessing); err != nil {
					logger.Error().Err(err).Msg("Failed to store post-processing flag")
					http.Error(w, "settings unavailable", http.StatusInternalServerError)
					return
				}
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
