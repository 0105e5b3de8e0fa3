package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/filter"
	"github.com/dgnsrekt/options-screener/internal/screener"
	statesync "github.com/dgnsrekt/options-screener/internal/sync"
	"github.com/dgnsrekt/options-screener/internal/ws"
)

var ErrReloadInProgress = errors.New("reload already in progress")

var presetNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("preset", func(fl validator.FieldLevel) bool {
		return presetNamePattern.MatchString(fl.Field().String())
	})
	return v
}

type Server struct {
	reload *ReloadManager
	engine *screener.Engine
	hub    *ws.Hub
	events *statesync.Broadcaster
	config *config.ServerConfig
	logger *zap.Logger
}

func NewServer(reload *ReloadManager, engine *screener.Engine, hub *ws.Hub, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		reload: reload,
		engine: engine,
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// AttachEvents serves b on /events and publishes a reload event after every reload.
func (s *Server) AttachEvents(b *statesync.Broadcaster) {
	s.events = b
	s.reload.OnReload(func(*ReloadResult) {
		b.Publish(statesync.EventReload)
	})
}

// State reports the loaded snapshot and feed activity for the event stream.
func (s *Server) State() statesync.State {
	var st statesync.State
	if snap := s.reload.Current(); snap != nil {
		st.DataDate = snap.Date
		st.LoadedAt = snap.LoadedAt
		st.Records = len(snap.Records)
	}
	if s.hub != nil {
		st.ActivePresets = s.hub.ActiveGroups()
		st.WSClients = s.hub.ClientCount()
	}
	return st
}

// IsPresetGroup reports whether name is a preset in dir. It is the group
// validator for the preset feed.
func IsPresetGroup(dir string) func(string) bool {
	return func(name string) bool {
		if !presetNamePattern.MatchString(name) {
			return false
		}
		_, err := config.FindPreset(dir, name)
		return err == nil
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Details *filter.ValidationErrors `json:"details,omitempty"`
	Fields  []string                 `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

type HealthResponse struct {
	Status    string     `json:"status"`
	DataDir   string     `json:"data_dir"`
	DataDate  string     `json:"data_date,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	Records   int        `json:"records"`
	WSClients int        `json:"ws_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", DataDir: s.config.DataDir}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}

	snap := s.reload.Current()
	if snap == nil {
		resp.Status = "loading"
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp)
		return
	}
	resp.DataDate = snap.Date
	resp.LoadedAt = &snap.LoadedAt
	resp.Records = len(snap.Records)
	render.JSON(w, r, resp)
}

// FieldInfo describes one accepted configuration key.
type FieldInfo struct {
	Key    string `json:"key"`
	Field  string `json:"field"`
	Kind   string `json:"kind"`
	Type   string `json:"type"`
	Window string `json:"window"`
	Group  string `json:"group,omitempty"`
	Doc    string `json:"doc"`
}

type FieldsResponse struct {
	Keys         []FieldInfo `json:"keys"`
	SortTokens   []string    `json:"sort_tokens"`
	DefaultSort  string      `json:"default_sort"`
	DefaultLimit int         `json:"default_limit"`
	MaxLimit     int         `json:"max_limit"`
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	keys := catalog.Keys()
	resp := FieldsResponse{
		Keys:         make([]FieldInfo, 0, len(keys)),
		SortTokens:   catalog.SortTokens(),
		DefaultSort:  catalog.DefaultSortToken,
		DefaultLimit: filter.DefaultLimit,
		MaxLimit:     filter.MaxLimit,
	}
	for _, key := range keys {
		d, _ := catalog.Resolve(key)
		resp.Keys = append(resp.Keys, FieldInfo{
			Key:    key,
			Field:  d.Field.Name,
			Kind:   d.Field.Kind.String(),
			Type:   d.Type.String(),
			Window: d.Field.Window.String(),
			Group:  d.Field.Group,
			Doc:    d.Field.Doc,
		})
	}
	render.JSON(w, r, resp)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	names, err := config.ListPresets(s.config.PresetDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("listing presets failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to list presets")
		return
	}
	if names == nil {
		names = []string{}
	}
	render.JSON(w, r, map[string]interface{}{"presets": names})
}

// ScreenRequest is the body of POST /screen. Filter values may be strings,
// numbers, booleans or lists; they are applied on top of the preset, if any.
type ScreenRequest struct {
	Date         string                 `json:"date" default:"latest" validate:"eq=latest|datetime=2006-01-02"`
	Preset       string                 `json:"preset" validate:"omitempty,preset"`
	Filter       map[string]interface{} `json:"filter"`
	Explain      string                 `json:"explain" validate:"omitempty,max=10"`
	ExplainLimit int                    `json:"explain_limit" default:"20" validate:"gte=1,lte=500"`
}

// MatchView is one ranked match.
type MatchView struct {
	Rank int `json:"rank"`
	*data.OptionRecord
}

// ExplainEntry lists the keys a rejected contract failed.
type ExplainEntry struct {
	ContractSymbol string             `json:"contract_symbol"`
	Failures       []screener.Failure `json:"failures"`
}

type ScreenResponse struct {
	RunID      string                    `json:"run_id"`
	Date       string                    `json:"date"`
	Preset     string                    `json:"preset,omitempty"`
	OrderBy    string                    `json:"order_by"`
	Limit      int                       `json:"limit"`
	Evaluated  int                       `json:"evaluated"`
	Passed     int                       `json:"passed"`
	Returned   int                       `json:"returned"`
	Matches    []MatchView               `json:"matches"`
	Rejections []screener.RejectionCount `json:"rejections"`
	Explain    []ExplainEntry            `json:"explain,omitempty"`
}

func newScreenResponse(runID, date, preset string, res *screener.Result) ScreenResponse {
	resp := ScreenResponse{
		RunID:      runID,
		Date:       date,
		Preset:     preset,
		OrderBy:    res.Spec.Order().Token,
		Limit:      res.Spec.Limit(),
		Evaluated:  res.Evaluated,
		Passed:     res.Passed,
		Returned:   len(res.Matches),
		Matches:    make([]MatchView, 0, len(res.Matches)),
		Rejections: res.RejectionCounts(),
	}
	for i, m := range res.Matches {
		resp.Matches = append(resp.Matches, MatchView{Rank: i + 1, OptionRecord: m.Record})
	}
	return resp
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req ScreenRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := defaults.Set(&req); err != nil {
		s.logger.Error("applying request defaults failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to apply defaults")
		return
	}
	if err := validate.StructCtx(r.Context(), &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid request", Fields: requestErrors(err)})
		return
	}

	raw := map[string]string{}
	if req.Preset != "" {
		path, err := config.FindPreset(s.config.PresetDir, req.Preset)
		if err != nil {
			writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		preset, err := config.LoadPreset(path)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		raw = preset
	}
	for key, value := range req.Filter {
		raw[key] = stringify(value)
	}

	date, records, err := s.reload.Records(r.Context(), req.Date)
	switch {
	case errors.Is(err, data.ErrNoRecords):
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("no records for date %s", req.Date))
		return
	case errors.Is(err, data.ErrInvalidDate):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("loading records failed", zap.String("date", req.Date), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to load records")
		return
	}

	res, err := s.engine.Run(r.Context(), raw, records)
	if err != nil {
		var verrs *filter.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, ErrorResponse{Error: "invalid filter configuration", Details: verrs})
			return
		}
		s.logger.Error("screen failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "screen failed")
		return
	}

	resp := newScreenResponse(uuid.NewString(), date, req.Preset, res)
	if req.Explain != "" {
		for _, v := range res.Explain(req.Explain) {
			if len(resp.Explain) == req.ExplainLimit {
				break
			}
			resp.Explain = append(resp.Explain, ExplainEntry{
				ContractSymbol: v.Record.ContractSymbol,
				Failures:       v.Failures,
			})
		}
	}

	s.logger.Info("screen served",
		zap.String("runID", resp.RunID),
		zap.String("date", date),
		zap.String("preset", req.Preset),
		zap.Int("evaluated", resp.Evaluated),
		zap.Int("passed", resp.Passed),
	)
	render.JSON(w, r, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" && date != "latest" {
		if _, err := data.ParseDate(date); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid date %q (expected YYYY-MM-DD or latest)", date))
			return
		}
	}

	result, err := s.reload.Reload(r.Context(), date)
	switch {
	case errors.Is(err, ErrReloadInProgress):
		writeError(w, r, http.StatusConflict, err.Error())
		return
	case errors.Is(err, data.ErrNoRecords):
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("reload failed", zap.String("date", date), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, result)
}

// requestErrors turns validator errors into "field: rule" strings.
func requestErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return out
}

// stringify renders a decoded JSON value as the raw text the filter parser expects.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
