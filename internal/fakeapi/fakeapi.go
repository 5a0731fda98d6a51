// Package fakeapi is an in-process stand-in for the console API. It speaks
// the same envelope, issues HS256 access tokens and counts every call so
// tests can assert on network traffic.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	DefaultUser     = "admin"
	DefaultPassword = "admin"
	DefaultTenant   = "acme"
)

// API holds the fake server state. The zero value is not usable, use New.
type API struct {
	secret    []byte
	accessTTL time.Duration
	apiKey    string
	now       func() time.Time
	logger    *zap.Logger

	mu            sync.Mutex
	users         map[string]string
	refreshTokens map[string]string // refresh token -> subject
	resources     map[string]map[string]map[string]any
	lastHeaders   http.Header
	failures      []int
	refreshStatus int
	refreshDelay  time.Duration

	refreshCalls atomic.Int64
	dataCalls    atomic.Int64
	hits         sync.Map // "METHOD /path" -> *atomic.Int64
}

type Option func(*API)

func WithAccessTTL(d time.Duration) Option {
	return func(a *API) {
		a.accessTTL = d
	}
}

// WithAPIKey makes every call require X-API-Key.
func WithAPIKey(key string) Option {
	return func(a *API) {
		a.apiKey = key
	}
}

// WithClock drives token minting and validation.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

func WithUser(name, password string) Option {
	return func(a *API) {
		a.users[name] = password
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		a.logger = l
	}
}

func New(opts ...Option) *API {
	a := &API{
		secret:        []byte("fakeapi-" + uuid.NewString()),
		accessTTL:     15 * time.Minute,
		now:           time.Now,
		logger:        zap.NewNop(),
		users:         map[string]string{DefaultUser: DefaultPassword},
		refreshTokens: make(map[string]string),
		resources:     make(map[string]map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start serves the API on a loopback httptest server.
func (a *API) Start() *httptest.Server {
	return httptest.NewServer(a.Handler())
}

func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(a.countHits, a.requireAPIKey)

	auth := router.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh-token", a.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", a.handleForgotPassword).Methods(http.MethodPost)
	auth.Handle("/me", a.authenticated(http.HandlerFunc(a.handleMe))).Methods(http.MethodGet)

	data := router.PathPrefix("/api").Subrouter()
	data.Use(a.authenticated, a.injectFailures)
	data.HandleFunc("/{family}", a.handleList).Methods(http.MethodGet)
	data.HandleFunc("/{family}", a.handleCreate).Methods(http.MethodPost)
	data.HandleFunc("/{family}", a.handleBulkDelete).Methods(http.MethodDelete)
	data.HandleFunc("/{family}/{id}", a.handleGet).Methods(http.MethodGet)
	data.HandleFunc("/{family}/{id}", a.handleReplace).Methods(http.MethodPut)
	data.HandleFunc("/{family}/{id}", a.handleDelete).Methods(http.MethodDelete)

	return router
}

// IssueSession mints a token pair for subject whose access token expires
// after ttl, registering the refresh token.
func (a *API) IssueSession(subject string, ttl time.Duration) (access, refresh string, err error) {
	access, err = a.MintToken(subject, ttl)
	if err != nil {
		return "", "", err
	}
	refresh = uuid.NewString()
	a.mu.Lock()
	a.refreshTokens[refresh] = subject
	a.mu.Unlock()
	return access, refresh, nil
}

// MintToken signs an access token for subject expiring after ttl.
func (a *API) MintToken(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub":    subject,
		"tenant": DefaultTenant,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
		"jti":    uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Seed stores obj under family and returns its id.
func (a *API) Seed(family string, obj map[string]any) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocked(family, obj)
}

// FailNext makes the next data calls answer with the given statuses, in order.
func (a *API) FailNext(statuses ...int) {
	a.mu.Lock()
	a.failures = append(a.failures, statuses...)
	a.mu.Unlock()
}

// RejectRefresh makes refresh calls answer status; 0 restores normal behavior.
func (a *API) RejectRefresh(status int) {
	a.mu.Lock()
	a.refreshStatus = status
	a.mu.Unlock()
}

// DelayRefresh holds every refresh call for d before answering.
func (a *API) DelayRefresh(d time.Duration) {
	a.mu.Lock()
	a.refreshDelay = d
	a.mu.Unlock()
}

func (a *API) RefreshCalls() int64 {
	return a.refreshCalls.Load()
}

// DataCalls counts calls that reached a resource handler, auth included.
func (a *API) DataCalls() int64 {
	return a.dataCalls.Load()
}

// Hits counts requests for method and path, query excluded.
func (a *API) Hits(method, path string) int64 {
	v, ok := a.hits.Load(method + " " + path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// LastHeaders returns the headers of the most recent data call.
func (a *API) LastHeaders() http.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastHeaders.Clone()
}

func (a *API) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := a.hits.LoadOrStore(r.Method+" "+r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" && r.Header.Get("X-API-Key") != a.apiKey {
			writeEnvelope(w, http.StatusForbidden, false, nil, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.dataCalls.Add(1)
		a.mu.Lock()
		a.lastHeaders = r.Header.Clone()
		a.mu.Unlock()

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			writeEnvelope(w, http.StatusUnauthorized, false, nil, "missing token")
			return
		}
		if _, err := a.parse(raw); err != nil {
			a.logger.Debug("rejecting token", zap.Error(err))
			writeEnvelope(w, http.StatusUnauthorized, false, nil, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		status := 0
		if len(a.failures) > 0 {
			status = a.failures[0]
			a.failures = a.failures[1:]
		}
		a.mu.Unlock()
		if status != 0 {
			writeEnvelope(w, status, false, nil, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) parse(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "invalid payload")
		return
	}
	a.mu.Lock()
	password, ok := a.users[req.Username]
	a.mu.Unlock()
	if !ok || password != req.Password {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "Utilizador ou palavra-passe inválidos")
		return
	}
	access, refresh, err := a.IssueSession(req.Username, a.accessTTL)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, false, nil, err.Error())
		return
	}
	writeEnvelope(w, http.StatusOK, true, tokenPair{AccessToken: access, RefreshToken: refresh})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)

	a.mu.Lock()
	delay, status := a.refreshDelay, a.refreshStatus
	a.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		writeEnvelope(w, status, false, nil, "refresh rejected")
		return
	}

	var req tokenPair
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "invalid payload")
		return
	}

	a.mu.Lock()
	subject, ok := a.refreshTokens[req.RefreshToken]
	if ok {
		delete(a.refreshTokens, req.RefreshToken)
	}
	a.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, false, nil, "invalid refresh token")
		return
	}

	access, refresh, err := a.IssueSession(subject, a.accessTTL)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, false, nil, err.Error())
		return
	}
	writeEnvelope(w, http.StatusOK, true, tokenPair{AccessToken: access, RefreshToken: refresh})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "Email é obrigatório")
		return
	}
	writeEnvelope(w, http.StatusOK, true, nil)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, err := a.parse(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if err != nil {
		writeEnvelope(w, http.StatusUnauthorized, false, nil, "invalid token")
		return
	}
	writeEnvelope(w, http.StatusOK, true, map[string]any{
		"subject": claims["sub"],
		"tenant":  claims["tenant"],
		"exp":     claims["exp"],
	})
}

type page struct {
	Items      []map[string]any `json:"items"`
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	family := mux.Vars(r)["family"]
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageNum < 1 {
		pageNum = 1
	}
	if pageSize < 1 {
		pageSize = 25
	}
	filter := strings.ToLower(r.URL.Query().Get("filter"))

	a.mu.Lock()
	var items []map[string]any
	for _, obj := range a.resources[family] {
		if filter != "" && !strings.Contains(strings.ToLower(fmt.Sprint(obj["nome"])), filter) {
			continue
		}
		items = append(items, obj)
	}
	a.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return fmt.Sprint(items[i]["id"]) < fmt.Sprint(items[j]["id"])
	})
	total := len(items)
	from := (pageNum - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	writeEnvelope(w, http.StatusOK, true, page{
		Items:      items[from:to],
		TotalCount: total,
		Page:       pageNum,
		PageSize:   pageSize,
	})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a.mu.Lock()
	obj, ok := a.resources[vars["family"]][vars["id"]]
	a.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, false, nil, "Registo não encontrado")
		return
	}
	writeEnvelope(w, http.StatusOK, true, obj)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	obj, msgs := decodeObject(r)
	if len(msgs) > 0 {
		writeEnvelope(w, http.StatusBadRequest, false, nil, msgs...)
		return
	}
	a.mu.Lock()
	id := a.insertLocked(mux.Vars(r)["family"], obj)
	a.mu.Unlock()
	writeEnvelope(w, http.StatusOK, true, id)
}

func (a *API) handleReplace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	obj, msgs := decodeObject(r)
	if len(msgs) > 0 {
		writeEnvelope(w, http.StatusBadRequest, false, nil, msgs...)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.resources[vars["family"]][vars["id"]]; !ok {
		writeEnvelope(w, http.StatusNotFound, false, nil, "Registo não encontrado")
		return
	}
	obj["id"] = vars["id"]
	a.resources[vars["family"]][vars["id"]] = obj
	writeEnvelope(w, http.StatusOK, true, vars["id"])
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.resources[vars["family"]][vars["id"]]; !ok {
		writeEnvelope(w, http.StatusNotFound, false, nil, "Registo não encontrado")
		return
	}
	delete(a.resources[vars["family"]], vars["id"])
	writeEnvelope(w, http.StatusOK, true, vars["id"])
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "Nenhum registo selecionado")
		return
	}
	family := mux.Vars(r)["family"]
	a.mu.Lock()
	removed := 0
	for _, id := range req.IDs {
		if _, ok := a.resources[family][id]; ok {
			delete(a.resources[family], id)
			removed++
		}
	}
	a.mu.Unlock()
	writeEnvelope(w, http.StatusOK, true, removed)
}

func (a *API) insertLocked(family string, obj map[string]any) string {
	if a.resources[family] == nil {
		a.resources[family] = make(map[string]map[string]any)
	}
	id, _ := obj["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	obj["id"] = id
	a.resources[family][id] = obj
	return id
}

// decodeObject applies the one rule every entity shares: a non-empty nome.
func decodeObject(r *http.Request) (map[string]any, []string) {
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return nil, []string{"Pedido inválido"}
		}
		return nil, []string{"Pedido vazio"}
	}
	if nome, _ := obj["nome"].(string); strings.TrimSpace(nome) == "" {
		return nil, []string{"Nome é obrigatório"}
	}
	return obj, nil
}

func writeEnvelope(w http.ResponseWriter, status int, succeeded bool, data any, messages ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"succeeded": succeeded,
		"data":      data,
		"messages":  messages,
	})
}
