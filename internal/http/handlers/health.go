package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if a.Checker == nil {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	report := a.Checker.Check(r.Context())
	a.json(w, report.HTTPStatus(), report)
}
