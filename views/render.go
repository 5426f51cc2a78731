package views

import (
	"bytes"
	"net/http"

	"github.com/a-h/templ"
)

// Render writes component as an HTML page. The page is buffered so a failing
// component never leaves a half-written 200 behind.
func Render(w http.ResponseWriter, r *http.Request, status int, component templ.Component) error {
	var buf bytes.Buffer
	if err := component.Render(r.Context(), &buf); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
