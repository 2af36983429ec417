package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"postboard/pkg/board"
	"postboard/pkg/logger"
	"postboard/pkg/nav"
	"postboard/pkg/page"
	"postboard/pkg/postapi"
	"postboard/pkg/render"
)

const maxPostsLimit = 100

type API struct {
	ServiceName string

	r        *mux.Router
	posts    postapi.Client
	tmpl     *page.Template
	renderer *render.Renderer
	lw       LogWriter
}

// Option tweaks an API at construction time.
type Option func(*API)

// WithRenderer replaces the default renderer, e.g. to pin its clock.
func WithRenderer(r *render.Renderer) Option {
	return func(api *API) { api.renderer = r }
}

// WithLogWriter ships access logs through w.
func WithLogWriter(w LogWriter) Option {
	return func(api *API) { api.lw = w }
}

func New(name string, posts postapi.Client, tmpl *page.Template, opts ...Option) *API {
	api := API{
		ServiceName: name,
		r:           mux.NewRouter(),
		posts:       posts,
		tmpl:        tmpl,
		renderer:    render.New(),
	}
	for _, opt := range opts {
		opt(&api)
	}
	api.endpoints()

	return &api
}

func (api *API) Router() *mux.Router {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(api.requestIDMiddleware)
	if api.lw != nil {
		api.r.Use(api.loggingMiddleware(api.lw))
	}

	api.r.HandleFunc("/", api.postsPageHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/prev", api.navHandler(navPrev)).Methods(http.MethodGet)
	api.r.HandleFunc("/next", api.navHandler(navNext)).Methods(http.MethodGet)
	api.r.HandleFunc("/health", api.healthHandler).Methods(http.MethodGet)

	jsonAPI := api.r.PathPrefix("/api").Subrouter()
	jsonAPI.Use(api.headerMiddleware)
	jsonAPI.HandleFunc("/posts", api.postsProxy).Methods(http.MethodGet)
}

// postsPageHandler renders the posts page for the query in the request URL.
// A URL without _page or _limit is first redirected to one that has them.
func (api *API) postsPageHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	if u, changed := nav.InitURL(r.URL); changed {
		http.Redirect(w, r, u.RequestURI(), http.StatusFound)
		log.Debugf("[postsPageHandler][%s] redirected to %s", sID, u.RequestURI())
		return
	}

	ctrl, err := api.newController(r)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[postsPageHandler][%s] failed to create page: %v", sID, err)
		return
	}

	status := http.StatusOK
	if err := ctrl.Init(r.Context()); err != nil {
		status = http.StatusBadGateway
		log.Errorf("[postsPageHandler][%s] failed to load posts: %v", sID, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := ctrl.WriteTo(w); err != nil {
		log.Errorf("[postsPageHandler][%s] failed to write page: %v", sID, err)
		return
	}
	log.Debugf("[postsPageHandler][%s] response sent to: %v", sID, r.RemoteAddr)
}

type navDirection int

const (
	navPrev navDirection = iota
	navNext
)

// navHandler serves the prev/next controls without script: it loads the page
// the request came from, applies the click and redirects to the result.
func (api *API) navHandler(dir navDirection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sID := logger.Shorten(logger.RequestID(r.Context()))

		ctrl, err := api.newController(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Errorf("[navHandler][%s] failed to create page: %v", sID, err)
			return
		}
		if err := ctrl.Init(r.Context()); err != nil {
			http.Error(w, "Posts API Unavailable", http.StatusBadGateway)
			log.Errorf("[navHandler][%s] failed to load posts: %v", sID, err)
			return
		}

		if dir == navPrev {
			err = ctrl.HandlePrevClick(r.Context())
		} else {
			err = ctrl.HandleNextClick(r.Context())
		}
		if err != nil {
			log.Errorf("[navHandler][%s] failed to navigate: %v", sID, err)
		}

		target := ctrl.URL().RequestURI()
		http.Redirect(w, r, target, http.StatusSeeOther)
		log.Debugf("[navHandler][%s] redirected to %s", sID, target)
	}
}

// newController builds a controller over a fresh page whose location is the
// posts page at the request query.
func (api *API) newController(r *http.Request) (*board.Controller, error) {
	p, err := api.tmpl.New()
	if err != nil {
		return nil, err
	}
	u := *r.URL
	u.Path = "/"
	u.RawPath = ""
	return board.New(api.posts, p, nav.NewHistory(&u), api.renderer), nil
}

// postsProxy returns the posts API response for the request query as JSON.
func (api *API) postsProxy(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	u, _ := nav.InitURL(r.URL)
	query := u.Query()

	if limit, err := strconv.Atoi(query.Get(nav.ParamLimit)); err == nil && limit > maxPostsLimit {
		http.Error(w, "Limit parameter is too big", http.StatusBadRequest)
		log.Debugf("[postsProxy][%s] request with too big limit parameter", sID)
		return
	}

	resp, err := api.posts.GetAll(r.Context(), query)
	if err != nil {
		var errNotFound *postapi.ErrNotFound
		if errors.As(err, &errNotFound) {
			http.Error(w, "Posts not found", http.StatusNotFound)
			log.Infof("[postsProxy][%s] %v", sID, errNotFound)
			return
		}
		http.Error(w, "Posts API Unavailable", http.StatusBadGateway)
		log.Errorf("[postsProxy][%s] error calling posts API: %v", sID, err)
		return
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("[postsProxy][%s] failed to encode response data: %v", sID, err)
		return
	}
	log.Debugf("[postsProxy][%s] response sent to: %v", sID, r.RemoteAddr)
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
