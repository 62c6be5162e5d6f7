// Package api exposes the dispatcher over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/model"
	"github.com/hyperifyio/serpgate/internal/ratelimit"
	"github.com/hyperifyio/serpgate/internal/task"
)

// Dispatcher is the task surface the handlers need.
type Dispatcher interface {
	Submit(ctx context.Context, req model.SearchRequest) (task.Task, error)
	Poll(id string) (task.Task, error)
}

// Metrics instruments the router. *metrics.Collector implements it.
type Metrics interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

// Limiter budgets submissions per client. *ratelimit.Window and
// *ratelimit.Redis implement it.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Server holds the HTTP handlers.
type Server struct {
	Dispatcher Dispatcher
	Metrics    Metrics
	// Limiter, when set, caps POST /search per client IP.
	Limiter Limiter
	Version string
}

type submitResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// searchBody is the wire form of a search request. Limit is a pointer so an
// explicit 0 can be told apart from an omitted limit, which defaults.
type searchBody struct {
	Query        string             `json:"query"`
	Mode         model.Mode         `json:"mode"`
	Region       string             `json:"region"`
	Language     string             `json:"language"`
	Limit        *int               `json:"limit"`
	OutputFormat model.OutputFormat `json:"output_format"`
}

func (b searchBody) request() (model.SearchRequest, error) {
	req := model.SearchRequest{
		Query:        b.Query,
		Mode:         b.Mode,
		Region:       b.Region,
		Language:     b.Language,
		OutputFormat: b.OutputFormat,
	}
	if b.Limit != nil {
		if *b.Limit < 1 {
			return req, &model.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", model.MaxLimit)}
		}
		req.Limit = *b.Limit
	}
	return req, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), requestLog(), gin.Recovery())
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware())
		r.GET("/metrics", s.Metrics.Handler())
	}
	search := []gin.HandlerFunc{s.search}
	if s.Limiter != nil {
		search = append([]gin.HandlerFunc{rateLimit(s.Limiter)}, search...)
	}
	r.POST("/search", search...)
	r.GET("/tasks/:id", s.poll)
	r.GET("/health", s.health)
	return r
}

func (s *Server) search(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	req, err := body.request()
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	t, err := s.Dispatcher.Submit(c.Request.Context(), req)
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{TaskID: t.ID, Status: t.Status})
}

func writeSubmitError(c *gin.Context, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, task.ErrQueueFull), errors.Is(err, task.ErrStopped):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("submit failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) poll(c *gin.Context) {
	t, err := s.Dispatcher.Poll(c.Param("id"))
	if errors.Is(err, task.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.Version})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// rateLimit rejects over-budget clients with 429. A limiter error lets the
// request through.
func rateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("request_id", c.GetString("request_id")).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(max(int(math.Ceil(d.RetryAfter.Seconds())), 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
