// Package kujo serves the viewer-sync stream and the JSON API of a guide.
package kujo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/metrics"
	"nyiyui.ca/hato/railnet/tal"
	"nyiyui.ca/hato/railnet/tal/layout"
)

const (
	eventsStream   = "events"
	snapshotStream = "snapshot"
)

type Conf[P railnet.Position[P]] struct {
	Guide    *tal.Guide[P]
	ParsePos func(string) (P, error)
	// Metrics is served on /metrics when set.
	Metrics     *metrics.Collector
	CORSOrigins []string
}

type Server[P railnet.Position[P]] struct {
	conf Conf[P]
	g    *tal.Guide[P]
	s    *sse.Server
	mux  *http.ServeMux
	h    http.Handler
}

func NewServer[P railnet.Position[P]](conf Conf[P]) *Server[P] {
	s := &Server[P]{
		conf: conf,
		g:    conf.Guide,
		s:    sse.New(),
		mux:  http.NewServeMux(),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(eventsStream)
	s.s.CreateStream(snapshotStream)
	s.s.OnSubscribe = func(streamID string, _ *sse.Subscriber) {
		if streamID == eventsStream {
			// new viewers start from a clear and the full object set
			go s.g.RequestFullSync()
		}
	}
	s.mux.HandleFunc("GET /events", s.s.ServeHTTP)
	s.mux.HandleFunc("GET /network", s.handleNetwork)
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /route", s.handleRoute)
	s.mux.HandleFunc("GET /aspect", s.handleAspect)
	s.mux.HandleFunc("POST /dirty", s.handleDirty)
	s.mux.HandleFunc("POST /sync", s.handleSync)
	if conf.Metrics != nil {
		s.mux.Handle("GET /metrics", conf.Metrics.Handler())
	}
	s.h = cors.New(cors.Options{
		AllowedOrigins: conf.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(s.mux)
	return s
}

// Run forwards guide events to the SSE streams until ctx is done.
func (s *Server[P]) Run(ctx context.Context) error {
	events := make(chan tal.Event[P], 16)
	s.g.EventMux.Subscribe("kujo", events)
	defer s.g.EventMux.Unsubscribe(events)
	snapshots := make(chan tal.GuideSnapshot[P], 1)
	s.g.SnapshotMux.Subscribe("kujo", snapshots)
	defer s.g.SnapshotMux.Unsubscribe(snapshots)
	for {
		select {
		case <-ctx.Done():
			s.s.Close()
			return ctx.Err()
		case e := <-events:
			s.publish(eventsStream, string(e.Kind), e)
		case gs := <-snapshots:
			s.publish(snapshotStream, "", gs)
		}
	}
}

func (s *Server[P]) publish(stream, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("marshal json", "stream", stream, "err", err)
		return
	}
	e := &sse.Event{Data: data}
	if event != "" {
		e.Event = []byte(event)
	}
	if !s.s.TryPublish(stream, e) {
		zap.S().Debugw("sse stream full, dropped event", "stream", stream, "event", event)
	}
}

func (s *Server[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("write response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{err.Error()})
}

func (s *Server[P]) handleNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.g.Nodes())
}

func (s *Server[P]) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.g.Snapshot())
}

func (s *Server[P]) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := s.conf.ParsePos(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var heading railnet.Heading
	if h := q.Get("heading"); h != "" {
		if err := heading.UnmarshalText([]byte(h)); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	to := q.Get("to")
	if to == "" {
		writeError(w, http.StatusBadRequest, errors.New("to: missing destination pattern"))
		return
	}
	route, err := s.g.Pathfind(from, heading, to)
	if errors.Is(err, layout.ErrNoRouteFound) {
		writeError(w, http.StatusNotFound, err)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

type aspectResponse[P railnet.Position[P]] struct {
	Signal P              `json:"signal"`
	Train  tal.TrainID    `json:"train"`
	Aspect railnet.Aspect `json:"aspect"`
}

func (s *Server[P]) handleAspect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signal, err := s.conf.ParsePos(q.Get("signal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	train := tal.NoContext
	if raw := q.Get("train"); raw != "" {
		train, err = uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if _, ok := s.g.Network().ProtectedSection(signal); !ok {
		writeError(w, http.StatusNotFound, errors.New("no such signal"))
		return
	}
	writeJSON(w, http.StatusOK, aspectResponse[P]{signal, train, s.g.Aspect(signal, train)})
}

type dirtyRequest struct {
	Positions []string `json:"positions"`
}

func (s *Server[P]) handleDirty(w http.ResponseWriter, r *http.Request) {
	var req dirtyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ps := make([]P, 0, len(req.Positions))
	for _, raw := range req.Positions {
		p, err := s.conf.ParsePos(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ps = append(ps, p)
	}
	for _, p := range ps {
		s.g.MarkDirty(p)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server[P]) handleSync(w http.ResponseWriter, r *http.Request) {
	s.g.RequestFullSync()
	w.WriteHeader(http.StatusNoContent)
}
