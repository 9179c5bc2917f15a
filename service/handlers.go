package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/affiliate"
	"github.com/saiset-co/sai-cache/server"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	apiTimeout       = 30 * time.Second
)

type putRequest struct {
	Value interface{} `json:"value"`
	TTL   string      `json:"ttl"`
}

type rewriteRequest struct {
	Text       string `json:"text"`
	TemplateID string `json:"template_id"`
}

func (s *Service) registerRoutes(metricsManager types.MetricsManager) {
	if ptr := s.container.Cache.Load(); ptr != nil {
		h := &cacheHandlers{cache: *ptr}

		group := s.router.Group("/cache")
		group.GET("", h.keys)
		group.DELETE("", h.clear)
		group.GET("/stats", h.stats)
		group.GET("/{key}", h.get)
		group.HEAD("/{key}", h.has)
		group.PUT("/{key}", h.put)
		group.DELETE("/{key}", h.remove)
	}

	rewriter, templates := s.container.Rewriter.Load(), s.container.Templates.Load()
	if rewriter != nil && templates != nil {
		h := &affiliateHandlers{rewriter: rewriter, templates: templates, logger: s.logger()}

		s.router.POST("/affiliate/rewrite", h.rewrite).WithTimeout(apiTimeout)

		group := s.router.Group("/templates").WithTimeout(apiTimeout)
		group.GET("", h.listTemplates)
		group.POST("", h.createTemplate)
		group.GET("/{id}", h.getTemplate)
		group.PUT("/{id}", h.updateTemplate)
		group.DELETE("/{id}", h.deleteTemplate)
	}

	if metricsManager != nil {
		s.router.GET("/metrics", metricsManager.Handler()).WithoutMiddlewares("logging", "rate_limit")
	}
}

type cacheHandlers struct {
	cache types.CacheManager
}

func (h *cacheHandlers) get(ctx *fasthttp.RequestCtx) {
	key := server.PathParam(ctx, "key")

	value, found := h.cache.Get(key)
	if !found {
		utils.WriteError(ctx, fasthttp.StatusNotFound, types.Errorf(types.ErrResourceNotFound, "key: %s", key))
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func (h *cacheHandlers) has(ctx *fasthttp.RequestCtx) {
	if !h.cache.Has(server.PathParam(ctx, "key")) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (h *cacheHandlers) put(ctx *fasthttp.RequestCtx) {
	key := server.PathParam(ctx, "key")

	var raw map[string]interface{}
	if err := utils.Unmarshal(ctx.PostBody(), &raw); err != nil {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "invalid JSON body"))
		return
	}

	if _, ok := raw["value"]; !ok {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "value is required"))
		return
	}

	request := putRequest{Value: raw["value"]}
	if ttl, ok := raw["ttl"].(string); ok {
		request.TTL = ttl
	}

	var ttl time.Duration
	if request.TTL != "" {
		parsed, err := time.ParseDuration(request.TTL)
		if err != nil || parsed < 0 {
			utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "invalid ttl %q", request.TTL))
			return
		}
		ttl = parsed
	}

	if err := h.cache.Set(key, request.Value, ttl); err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *cacheHandlers) remove(ctx *fasthttp.RequestCtx) {
	removed, err := h.cache.Delete(server.PathParam(ctx, "key"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]bool{"removed": removed})
}

func (h *cacheHandlers) keys(ctx *fasthttp.RequestCtx) {
	keys, err := h.cache.Keys()
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	if keys == nil {
		keys = []string{}
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string][]string{"keys": keys})
}

func (h *cacheHandlers) clear(ctx *fasthttp.RequestCtx) {
	if err := h.cache.Clear(); err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *cacheHandlers) stats(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, h.cache.Stats())
}

type affiliateHandlers struct {
	rewriter  *affiliate.Rewriter
	templates *affiliate.TemplateStore
	logger    types.Logger
}

func (h *affiliateHandlers) rewrite(ctx *fasthttp.RequestCtx) {
	var request rewriteRequest
	if err := utils.Unmarshal(ctx.PostBody(), &request); err != nil {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "invalid JSON body"))
		return
	}

	if request.Text == "" {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "text is required"))
		return
	}

	var template *affiliate.Template
	if request.TemplateID != "" {
		found, err := h.templates.Get(ctx, request.TemplateID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		template = found
	}

	result, err := h.rewriter.Rewrite(ctx, request.Text, template)
	if err != nil {
		h.logger.Error("Rewrite failed", zap.Error(err))
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, result)
}

func (h *affiliateHandlers) listTemplates(ctx *fasthttp.RequestCtx) {
	limit := queryInt(ctx, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	skip := queryInt(ctx, "skip", 0)
	if skip < 0 {
		skip = 0
	}

	templates, total, err := h.templates.List(ctx, limit, skip)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"templates": templates,
		"total":     total,
	})
}

func (h *affiliateHandlers) createTemplate(ctx *fasthttp.RequestCtx) {
	var template affiliate.Template
	if err := utils.Unmarshal(ctx.PostBody(), &template); err != nil {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "invalid JSON body"))
		return
	}

	created, err := h.templates.Create(ctx, template)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusCreated, created)
}

func (h *affiliateHandlers) getTemplate(ctx *fasthttp.RequestCtx) {
	template, err := h.templates.Get(ctx, server.PathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, template)
}

func (h *affiliateHandlers) updateTemplate(ctx *fasthttp.RequestCtx) {
	var template affiliate.Template
	if err := utils.Unmarshal(ctx.PostBody(), &template); err != nil {
		utils.WriteError(ctx, fasthttp.StatusBadRequest, types.Errorf(types.ErrInvalidParameter, "invalid JSON body"))
		return
	}

	updated, err := h.templates.Update(ctx, server.PathParam(ctx, "id"), template)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, updated)
}

func (h *affiliateHandlers) deleteTemplate(ctx *fasthttp.RequestCtx) {
	if err := h.templates.Delete(ctx, server.PathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func writeServiceError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, types.ErrTemplateNotFound), errors.Is(err, types.ErrResourceNotFound):
		utils.WriteError(ctx, fasthttp.StatusNotFound, err)
	case errors.Is(err, types.ErrTemplateInvalid),
		errors.Is(err, types.ErrInvalidParameter),
		errors.Is(err, types.ErrCacheKeyEmpty):
		utils.WriteError(ctx, fasthttp.StatusBadRequest, err)
	case errors.Is(err, types.ErrInvalidState):
		utils.WriteError(ctx, fasthttp.StatusServiceUnavailable, err)
	default:
		utils.WriteError(ctx, fasthttp.StatusInternalServerError, err)
	}
}

func queryInt(ctx *fasthttp.RequestCtx, name string, fallback int) int {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return fallback
	}

	value, err := strconv.Atoi(string(raw))
	if err != nil {
		return fallback
	}

	return value
}
