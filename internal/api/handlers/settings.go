package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// SettingTargetLanguage overrides the configured default target language.
const SettingTargetLanguage = "target_language"

// SettingsStore is the key/value settings table.
type SettingsStore interface {
	GetSetting(ctx context.Context, key, defaultVal string) string
	SetSetting(ctx context.Context, key, value string) error
}

type SettingsHandler struct {
	store           SettingsStore
	defaultLanguage string
}

func NewSettingsHandler(store SettingsStore, defaultLanguage string) *SettingsHandler {
	return &SettingsHandler{store: store, defaultLanguage: defaultLanguage}
}

type settingsResponse struct {
	TargetLanguage  string `json:"target_language"`
	DefaultLanguage string `json:"default_language"`
}

// TargetLanguage returns the stored override, or the configured default.
func (h *SettingsHandler) TargetLanguage(ctx context.Context) string {
	return h.store.GetSetting(ctx, SettingTargetLanguage, h.defaultLanguage)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, settingsResponse{
		TargetLanguage:  h.TargetLanguage(r.Context()),
		DefaultLanguage: h.defaultLanguage,
	}, http.StatusOK)
}

// UpdateSettings sets the target language override. An empty value clears
// it, falling back to the configured default.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetLanguage *string `json:"target_language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == nil {
		jsonError(w, "target_language is required", http.StatusBadRequest)
		return
	}

	if err := h.store.SetSetting(r.Context(), SettingTargetLanguage, strings.TrimSpace(*req.TargetLanguage)); err != nil {
		jsonError(w, "failed to save setting: "+SettingTargetLanguage, http.StatusInternalServerError)
		return
	}
	h.GetSettings(w, r)
}
