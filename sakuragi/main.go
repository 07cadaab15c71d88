// Package sakuragi serves a human-readable status page of a guide.
package sakuragi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal"
)

//go:embed index.html
var templates embed.FS

type Conf[P railnet.Position[P]] struct {
	Comment string
	Guide   *tal.Guide[P]
}

type Server[P railnet.Position[P]] struct {
	conf Conf[P]
	sm   *http.ServeMux
	t    *template.Template
}

func New[P railnet.Position[P]](conf Conf[P]) *Server[P] {
	s := &Server[P]{
		conf: conf,
		sm:   http.NewServeMux(),
	}
	s.t = template.Must(template.New("index").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"aspectClass": func(a railnet.Aspect) string {
			switch a {
			case railnet.AspectClear:
				return "clear"
			case railnet.AspectCaution:
				return "caution"
			default:
				return "stop"
			}
		},
		"shortID": func(id tal.TrainID) string {
			return id.String()[:8]
		},
	}).ParseFS(templates, "*.html"))
	s.sm.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

func (s *Server[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.sm.ServeHTTP(w, r)
}

func (s *Server[P]) handleIndex(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	err := s.t.ExecuteTemplate(buf, "index", map[string]any{
		"comment": s.conf.Comment,
		"gs":      s.conf.Guide.Snapshot(),
		"objects": s.conf.Guide.Network().Len(),
		"now":     time.Now(),
	})
	if err != nil {
		zap.S().Errorw("render status page", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
