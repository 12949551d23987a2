package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"adgenerator/internal/domain"
	"adgenerator/internal/export"
)

const maxExportBody = 1 << 20

type exportRequest struct {
	URLs []string `json:"urls"`
}

// ExportZip downloads the listed image URLs and streams them back as one zip.
func (a *App) ExportZip(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.URLs) == 0 {
		a.error(w, http.StatusBadRequest, "no_urls", "No image URLs provided.")
		return
	}

	archive, report, err := a.Exporter.Archive(r.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, domain.ErrNoURLs) {
			a.error(w, http.StatusBadRequest, "no_urls", "No image URLs provided.")
			return
		}
		a.Logger.Error().Err(err).Msg("export: build archive")
		a.error(w, http.StatusInternalServerError, "internal", "Error creating zip file.")
		return
	}
	a.Logger.Info().
		Int("requested", report.Requested).
		Int("included", report.Included).
		Int("skipped", report.Skipped).
		Msg("export: archive ready")

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.ArchiveName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
