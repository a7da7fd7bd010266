package handlers

import "net/http"

// Models handles GET /v1/models. Discovery never fails: the analyzer
// falls back to its default model list.
func (h *AnalysisHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.Analyzer.ListModels(r.Context())
	h.writeJSON(w, map[string][]string{"models": models})
}

// HistoryList handles GET /v1/history, newest first.
func (h *AnalysisHandler) HistoryList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{"history": h.History.Entries()})
}

// HistoryClear handles DELETE /v1/history.
func (h *AnalysisHandler) HistoryClear(w http.ResponseWriter, r *http.Request) {
	h.History.Clear()
	w.WriteHeader(http.StatusNoContent)
}
