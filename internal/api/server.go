package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/quintessa-dev/Automacao-de-editais/internal/collect"
	"github.com/quintessa-dev/Automacao-de-editais/internal/errbus"
	"github.com/quintessa-dev/Automacao-de-editais/internal/models"
	"github.com/quintessa-dev/Automacao-de-editais/internal/perplexity"
	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
	"github.com/quintessa-dev/Automacao-de-editais/internal/store"
)

// Store is the persistence surface the API needs. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	collect.Store
	UpdateItems(ctx context.Context, updates []store.ItemUpdate) (int, error)
	DeleteItems(ctx context.Context, uids []string) (int, error)
	ClearItems(ctx context.Context) error
	UpsertConfig(ctx context.Context, values map[string]string) error
	LogsTail(ctx context.Context, n int) ([]store.LogEntry, error)
	AppendPerplexityRun(ctx context.Context, run store.PerplexityRun) error
}

type Server struct {
	Store      Store
	Registry   *providers.Registry
	Perplexity *perplexity.Client
	Echo       *echo.Echo

	sanitizer *bluemonday.Policy
}

func NewServer(st Store, reg *providers.Registry) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{
		Store:      st,
		Registry:   reg,
		Perplexity: perplexity.NewClient(os.Getenv("PERPLEXITY_API_KEY")),
		Echo:       e,
		sanitizer:  bluemonday.StrictPolicy(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api")
	api.GET("/config", s.handleGetConfig)
	api.POST("/config", s.handleSetConfig)
	api.POST("/group/regex", s.handleGroupRegex)

	api.GET("/items", s.handleGetItems)
	api.POST("/items/update", s.handleUpdateItems)
	api.POST("/items/delete", s.handleDeleteItems)
	api.POST("/items/clear", s.handleClearItems)

	api.POST("/collect", s.handleCollect)
	api.POST("/diag/providers", s.handleDiagProviders)
	api.GET("/diag/logs", s.handleDiagLogs)

	api.POST("/perplexity/count_tokens", s.handleCountTokens)
	api.POST("/perplexity/search", s.handlePerplexitySearch)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// respond shapes every API payload the same way: the requested data plus
// the errors accumulated during the request.
func respond(c echo.Context, status int, bus *errbus.Bus, payload map[string]interface{}) error {
	payload["ok"] = status < http.StatusBadRequest && bus.Len() == 0
	payload["errors"] = bus.Entries()
	return c.JSON(status, payload)
}

func (s *Server) handleGetConfig(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	cfg, err := s.Store.ReadConfig(ctx)
	if err != nil {
		bus.Push("config.read", err)
		cfg = map[string]string{}
	}
	defaults := map[string]string{"MIN_DAYS": strconv.Itoa(collect.MinDaysDefault)}
	regexByGroup := map[string]string{}
	if cfg["MIN_DAYS"] == "" {
		cfg["MIN_DAYS"] = defaults["MIN_DAYS"]
	}
	for _, group := range s.Registry.Groups() {
		key := collect.RegexKey(group)
		defaults[key] = collect.DefaultRegex[key]
		if cfg[key] == "" {
			cfg[key] = defaults[key]
		}
		regexByGroup[group] = cfg[key]
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"config":         cfg,
		"defaults":       defaults,
		"groups":         s.Registry.Groups(),
		"regex_by_group": regexByGroup,
		"status_choices": models.StatusChoices,
		"status_bg":      models.StatusBackground,
		"status_colors":  models.StatusColors,
	})
}

type configUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type setConfigRequest struct {
	Updates []configUpdate `json:"updates"`
}

// parseConfigUpdates accepts the {"updates": [{key, value}]} list shape the
// frontend sends, and a flat {"KEY": "value"} map as a convenience.
func parseConfigUpdates(body []byte) (map[string]string, error) {
	var req setConfigRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Updates) > 0 {
		values := make(map[string]string, len(req.Updates))
		for _, u := range req.Updates {
			if u.Key != "" {
				values[u.Key] = u.Value
			}
		}
		return values, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func (s *Server) handleSetConfig(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		bus.Push("config.bind", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}
	values, err := parseConfigUpdates(body)
	if err != nil {
		bus.Push("config.bind", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	if err := s.Store.UpsertConfig(ctx, values); err != nil {
		bus.Push("config.write", err)
		return respond(c, http.StatusInternalServerError, bus, map[string]interface{}{})
	}

	cfg, err := s.Store.ReadConfig(ctx)
	if err != nil {
		bus.Push("config.read", err)
	}
	return respond(c, http.StatusOK, bus, map[string]interface{}{"config": cfg})
}

type groupRegexRequest struct {
	Group string `json:"group"`
	Regex string `json:"regex"`
}

func (s *Server) handleGroupRegex(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req groupRegexRequest
	if err := c.Bind(&req); err != nil || req.Group == "" {
		bus.Pushf("group.regex", "group is required")
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	key := collect.RegexKey(req.Group)
	if err := s.Store.UpsertConfig(ctx, map[string]string{key: req.Regex}); err != nil {
		bus.Push("group.regex", err)
		return respond(c, http.StatusInternalServerError, bus, map[string]interface{}{})
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"group": req.Group,
		"key":   key,
		"regex": req.Regex,
	})
}

// sourceItems is one source's items in the grouped listing.
type sourceItems struct {
	Source string        `json:"source"`
	Items  []models.Item `json:"items"`
}

func (s *Server) handleGetItems(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	group := c.QueryParam("group")
	status := c.QueryParam("status")
	if status != "" && status != "Todos" && !models.ValidStatus(status) {
		status = models.StatusPending
	}

	items, err := s.Store.ListItems(ctx)
	if err != nil {
		bus.Push("items.list", err)
		return respond(c, http.StatusInternalServerError, bus, map[string]interface{}{})
	}

	bySource := make(map[string][]models.Item)
	for _, it := range items {
		if it.DoNotShow {
			continue
		}
		if group != "" && !collect.SameGroup(it.Group, group) {
			continue
		}
		if status != "" && status != "Todos" && it.Status != status {
			continue
		}
		bySource[it.Source] = append(bySource[it.Source], it)
	}

	sources := make([]string, 0, len(bySource))
	for name := range bySource {
		sources = append(sources, name)
	}
	sort.Slice(sources, func(i, j int) bool {
		return strings.ToLower(sources[i]) < strings.ToLower(sources[j])
	})

	grouped := make([]sourceItems, 0, len(sources))
	for _, name := range sources {
		rows := bySource[name]
		sort.Slice(rows, func(i, j int) bool {
			return deadlineSortKey(rows[i]) < deadlineSortKey(rows[j])
		})
		grouped = append(grouped, sourceItems{Source: name, Items: rows})
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"group":   group,
		"status":  status,
		"sources": grouped,
	})
}

// deadlineSortKey orders items by deadline with unknown deadlines last.
func deadlineSortKey(it models.Item) string {
	if it.DeadlineAt == nil {
		return "9999-12-31T23:59:59Z"
	}
	return it.DeadlineISO()
}

type updateItemsRequest struct {
	Items []store.ItemUpdate `json:"items"`
}

func (s *Server) handleUpdateItems(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req updateItemsRequest
	if err := c.Bind(&req); err != nil {
		bus.Push("items.update", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	for i := range req.Items {
		if req.Items[i].Notes != nil {
			clean := s.sanitizer.Sanitize(*req.Items[i].Notes)
			req.Items[i].Notes = &clean
		}
	}

	updated, err := s.Store.UpdateItems(ctx, req.Items)
	if err != nil {
		bus.Push("items.update", err)
	}
	return respond(c, http.StatusOK, bus, map[string]interface{}{"updated": updated})
}

type deleteItemsRequest struct {
	UIDs []string `json:"uids"`
}

func (s *Server) handleDeleteItems(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req deleteItemsRequest
	if err := c.Bind(&req); err != nil {
		bus.Push("items.delete", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	deleted, err := s.Store.DeleteItems(ctx, req.UIDs)
	if err != nil {
		bus.Push("items.delete", err)
	}
	return respond(c, http.StatusOK, bus, map[string]interface{}{"deleted": deleted})
}

func (s *Server) handleClearItems(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	if err := s.Store.ClearItems(ctx); err != nil {
		bus.Push("items.clear", err)
		return respond(c, http.StatusInternalServerError, bus, map[string]interface{}{})
	}
	s.Store.AppendLog(ctx, "INFO", "items cleared")
	return respond(c, http.StatusOK, bus, map[string]interface{}{"cleared": true})
}

type collectRequest struct {
	Groups  []string `json:"groups"`
	MinDays int      `json:"min_days"`
}

func (s *Server) handleCollect(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req collectRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		bus.Push("collect.bind", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	collector := collect.NewCollector(s.Store, s.Registry)
	result, err := collector.Run(ctx, bus, req.Groups, req.MinDays)
	if err != nil {
		bus.Push("collect", err)
		return respond(c, http.StatusInternalServerError, bus, map[string]interface{}{})
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"run_id":         result.RunID,
		"fixed_links":    result.FixedLinks,
		"new_items":      result.NewItems,
		"provider_stats": result.Stats,
	})
}

type diagRequest struct {
	ReGov   string `json:"re_gov"`
	RePhil  string `json:"re_phil"`
	ReLatam string `json:"re_latam"`
}

func (s *Server) handleDiagProviders(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req diagRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		bus.Push("diag.bind", err)
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	cfg, err := s.Store.ReadConfig(ctx)
	if err != nil {
		bus.Push("config.read", err)
		cfg = map[string]string{}
	}

	overrides := map[string]string{}
	if req.ReGov != "" {
		overrides["RE_GOV"] = req.ReGov
	}
	if req.RePhil != "" {
		overrides["RE_PHIL"] = req.RePhil
	}
	if req.ReLatam != "" {
		overrides["RE_LATAM"] = req.ReLatam
	}

	rows := collect.Diagnose(ctx, s.Registry, cfg, overrides)

	logs, err := s.Store.LogsTail(ctx, 200)
	if err != nil {
		bus.Push("logs.tail", err)
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"rows": rows,
		"logs": logs,
	})
}

func (s *Server) handleDiagLogs(c echo.Context) error {
	bus := errbus.New()
	logs, err := s.Store.LogsTail(c.Request().Context(), 200)
	if err != nil {
		bus.Push("logs.tail", err)
	}
	return respond(c, http.StatusOK, bus, map[string]interface{}{"logs": logs})
}

type countTokensRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCountTokens(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req countTokensRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		bus.Pushf("perplexity.count_tokens", "url is required")
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	tokens, characters, err := perplexity.CountTokensFromURL(ctx, req.URL)
	if err != nil {
		bus.Push("perplexity.count_tokens", err)
	}

	run := store.PerplexityRun{Mode: "count_tokens", Prompt: req.URL, TokensIn: tokens}
	if err != nil {
		run.Error = err.Error()
	}
	if err := s.Store.AppendPerplexityRun(ctx, run); err != nil {
		bus.Push("perplexity.save", err)
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{
		"tokens":     tokens,
		"characters": characters,
	})
}

type perplexitySearchRequest struct {
	perplexity.SearchRequest
	Save bool `json:"save"`
}

func (s *Server) handlePerplexitySearch(c echo.Context) error {
	bus := errbus.New()
	ctx := c.Request().Context()

	var req perplexitySearchRequest
	if err := c.Bind(&req); err != nil || req.Query == "" {
		bus.Pushf("perplexity.search", "query is required")
		return respond(c, http.StatusBadRequest, bus, map[string]interface{}{})
	}

	if req.USDBRL <= 0 {
		if cfg, err := s.Store.ReadConfig(ctx); err == nil {
			if rate := parseFloatDefault(cfg["USD_BRL"], 0); rate > 0 {
				req.USDBRL = rate
			}
		}
	}

	result := s.Perplexity.Search(ctx, req.SearchRequest)
	result.Summary = s.sanitizer.Sanitize(result.Summary)
	if result.Error != "" {
		bus.Pushf("perplexity.search", "%s", result.Error)
	}

	if req.Save {
		run := store.PerplexityRun{
			Mode:      "search",
			Model:     result.Model,
			Prompt:    req.Query,
			TokensIn:  result.TokensIn,
			TokensOut: result.TokensOut,
			CostUSD:   result.CostUSD,
			CostBRL:   result.CostBRL,
			Summary:   result.Summary,
			Links:     strings.Join(result.Links, "\n"),
			Error:     result.Error,
		}
		if err := s.Store.AppendPerplexityRun(ctx, run); err != nil {
			bus.Push("perplexity.save", err)
		}
	}

	return respond(c, http.StatusOK, bus, map[string]interface{}{"result": result})
}

func parseFloatDefault(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
