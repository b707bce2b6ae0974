package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/icalstore/rcal/command"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// Server wires the engine registry into an HTTP surface mirroring the
// CAL_*/EVT_*/EVO_*/EVI_* command set (spec §6): one calendar per
// "/cal/{key}" subtree.
type Server struct {
	registry *Registry
	authz    *Authorizer
	qlimiter *queryLimiter
	tail     *NotificationTail
	log      zerolog.Logger
}

func NewServer(registry *Registry, authz *Authorizer, qlimiter *queryLimiter, tail *NotificationTail, log zerolog.Logger) *Server {
	return &Server{registry: registry, authz: authz, qlimiter: qlimiter, tail: tail, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(httprate.Limit(100, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	r.Route("/cal/{key}", func(r chi.Router) {
		r.Use(s.authz.Middleware)

		r.Get("/", s.calGet)
		r.Put("/", s.calSet)
		r.Delete("/", s.calDel)
		r.Post("/idx/rebuild", s.calIdxRebuild)
		r.Post("/idx/disable", s.calIdxDisable)

		r.Get("/evt", s.evtList)
		r.With(s.qlimiter.Middleware).Get("/evt/query", s.evtQuery)
		r.Post("/evt/prune", s.evtPrune)
		r.Get("/evt/{uid}", s.evtGet)
		r.Put("/evt/{uid}", s.evtSet)
		r.Delete("/evt/{uid}", s.evtDel)
		r.Get("/evt/{uid}/evi", s.eviList)

		r.Get("/evo/{uid}", s.evoList)
		r.Post("/evo/prune", s.evoPrune)
		r.Get("/evo/{uid}/{instant}", s.evoGet)
		r.Put("/evo/{uid}/{instant}", s.evoSet)
		r.Delete("/evo/{uid}/{instant}", s.evoDel)

		r.With(s.qlimiter.Middleware).Get("/evi", s.eviQuery)

		r.Get("/notifications", s.notifications)
	})
	return r
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*command.Engine, string, bool) {
	key := chi.URLParam(r, "key")
	eng, err := s.registry.Get(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return nil, "", false
	}
	return eng, key, true
}

func (s *Server) save(r *http.Request, key string) {
	if err := s.registry.Save(r.Context(), key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("save failed")
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case rcalerr.Is(err, rcalerr.NotFound):
		status = http.StatusNotFound
	case rcalerr.Is(err, rcalerr.Validation), rcalerr.Is(err, rcalerr.Parse):
		status = http.StatusBadRequest
	case rcalerr.Is(err, rcalerr.ParseTimeout):
		status = http.StatusRequestTimeout
	case rcalerr.Is(err, rcalerr.UnboundedExpansion):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// parseEventProps decodes a request body carrying a single VEVENT (or a
// bare property list wrapped in one by the caller) into the flat
// property slice property.Parse expects.
func parseEventProps(r *http.Request) ([]*ical.Prop, string, error) {
	cal, err := ical.NewDecoder(r.Body).Decode()
	if err != nil {
		return nil, "", fmt.Errorf("decode calendar: %w", err)
	}
	var vevent *ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			vevent = child
			break
		}
	}
	if vevent == nil {
		return nil, "", fmt.Errorf("request body has no VEVENT component")
	}

	var uid string
	var props []*ical.Prop
	for name, values := range vevent.Props {
		for i := range values {
			p := &values[i]
			if name == ical.PropUID {
				uid = p.Value
				continue
			}
			props = append(props, p)
		}
	}
	return props, uid, nil
}

func queryString(r *http.Request) string {
	if q := r.URL.Query().Get("q"); q != "" {
		return q
	}
	return r.URL.RawQuery
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s parameter", name)
	}
	return time.Parse(time.RFC3339, raw)
}

func parseInstantParam(r *http.Request) (time.Time, error) {
	raw := chi.URLParam(r, "instant")
	return time.Parse("20060102T150405Z", raw)
}

func (s *Server) calGet(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	data, err := eng.CalGet()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) calSet(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	body, err := readAll(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := eng.CalSet(r.Context(), body); err != nil {
		writeErr(w, err)
		return
	}
	s.save(r, key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) calDel(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	eng.CalDel(r.Context())
	if err := s.registry.Delete(r.Context(), key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("delete failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) calIdxRebuild(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	eng.CalIdxRebuild(r.Context())
	s.save(r, key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) calIdxDisable(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	eng.CalIdxDisable(r.Context())
	s.save(r, key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) evtList(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, eng.EvtList())
}

func (s *Server) evtGet(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, eng.EvtGet(chi.URLParam(r, "uid")))
}

func (s *Server) evtSet(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	props, uid, err := parseEventProps(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if chi.URLParam(r, "uid") != "" {
		uid = chi.URLParam(r, "uid")
	}
	accepted, err := eng.EvtSet(r.Context(), uid, props, nowUTC())
	if err != nil {
		writeErr(w, err)
		return
	}
	if accepted {
		s.save(r, key)
	}
	writeJSON(w, map[string]bool{"accepted": accepted})
}

func (s *Server) evtDel(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	deleted := eng.EvtDel(r.Context(), chi.URLParam(r, "uid"))
	if deleted {
		s.save(r, key)
	}
	writeJSON(w, map[string]bool{"deleted": deleted})
}

func (s *Server) evtPrune(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeErr(w, err)
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		writeErr(w, err)
		return
	}
	pruned, err := eng.EvtPrune(r.Context(), from, until)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.save(r, key)
	writeJSON(w, pruned)
}

func (s *Server) evtQuery(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	rows, err := eng.EvtQuery(queryString(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) evoList(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	instants, err := eng.EvoList(chi.URLParam(r, "uid"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, instants)
}

func (s *Server) evoGet(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	instant, err := parseInstantParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	lines, err := eng.EvoGet(chi.URLParam(r, "uid"), instant)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, lines)
}

func (s *Server) evoSet(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	instant, err := parseInstantParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	props, _, err := parseEventProps(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	accepted, err := eng.EvoSet(r.Context(), chi.URLParam(r, "uid"), instant, props, nowUTC())
	if err != nil {
		writeErr(w, err)
		return
	}
	if accepted {
		s.save(r, key)
	}
	writeJSON(w, map[string]bool{"accepted": accepted})
}

func (s *Server) evoDel(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	instant, err := parseInstantParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	deleted, err := eng.EvoDel(r.Context(), chi.URLParam(r, "uid"), instant)
	if err != nil {
		writeErr(w, err)
		return
	}
	if deleted {
		s.save(r, key)
	}
	writeJSON(w, map[string]bool{"deleted": deleted})
}

func (s *Server) evoPrune(w http.ResponseWriter, r *http.Request) {
	eng, key, ok := s.engine(w, r)
	if !ok {
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeErr(w, err)
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		writeErr(w, err)
		return
	}
	n, err := eng.EvoPrune(r.Context(), r.URL.Query().Get("uid"), from, until)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.save(r, key)
	writeJSON(w, map[string]int{"pruned": n})
}

func (s *Server) eviQuery(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	rows, err := eng.EviQuery(queryString(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) eviList(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.engine(w, r)
	if !ok {
		return
	}
	rows, err := eng.EviList(chi.URLParam(r, "uid"), queryString(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.tail.ServeHTTP(w, r, key)
}

func readAll(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func nowUTC() time.Time { return time.Now().UTC() }
