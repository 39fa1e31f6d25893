package gateway

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"unicode/utf8"

	"github.com/klauspost/compress/gzhttp"
)

// MaxInputBytes caps the body of a submitted command.
const MaxInputBytes = 64 << 10

//go:embed web
var webFS embed.FS

// jsonMarshal is used when encoding responses; tests may replace it to force Marshal errors.
var jsonMarshal = json.Marshal

func (s *Server) routes() (http.Handler, error) {
	gz, err := gzhttp.NewWrapper(gzhttp.MinSize(s.gzipMinSize))
	if err != nil {
		return nil, fmt.Errorf("gateway gzip: %w", err)
	}
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		return nil, fmt.Errorf("gateway static: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", gz(http.HandlerFunc(handleIndex)))
	mux.Handle("GET /static/", gz(http.StripPrefix("/static/", http.FileServerFS(static))))
	mux.Handle("GET /frame-data", gz(NoStore(http.HandlerFunc(s.handleFrameData))))
	mux.Handle("GET /console-history", gz(NoStore(http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /output/{mode}", gz(NoStore(http.HandlerFunc(s.handleOutput))))
	mux.Handle("POST /input", NoStore(http.HandlerFunc(s.handleInput)))
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return AccessLog(s.log())(mux), nil
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleFrameData(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.backend.FrameData())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.backend.History())
}

// handleOutput serves GET /output/update (204 when nothing changed) and
// GET /output/full (always the complete state).
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	var full bool
	switch r.PathValue("mode") {
	case "update":
	case "full":
		full = true
	default:
		http.NotFound(w, r)
		return
	}
	upd, ok := s.backend.Poll(full)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, upd)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxInputBytes))
	if err != nil {
		s.log().Warn("rejecting console input", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unreadable command body", http.StatusBadRequest)
		return
	}
	if !utf8.Valid(body) {
		s.log().Warn("rejecting console input", "remote", r.RemoteAddr, "error", "invalid UTF-8")
		http.Error(w, "command must be UTF-8 text", http.StatusBadRequest)
		return
	}
	if !s.backend.Submit(string(body)) {
		http.Error(w, "console closed", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := jsonMarshal(v)
	if err != nil {
		s.log().Error("encode response", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
