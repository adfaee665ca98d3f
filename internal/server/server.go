// Package server exposes the game over HTTP.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"nines/internal/canvas"
	"nines/internal/expression"
	"nines/internal/game"
	"nines/internal/pipeline"
	"nines/internal/raster"
	"nines/pkg/geometry"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MaxSide bounds the canvas size accepted from clients.
const MaxSide = 4096

// Evaluator runs one recognition and validation pass.
type Evaluator interface {
	Evaluate(buf *raster.Buffer, target int) (expression.Result, pipeline.Recognition, error)
}

// Handler serves the game endpoints.
type Handler struct {
	evaluator Evaluator
	session   *game.Session
}

// NewHandler creates a handler around a pipeline and a game session.
func NewHandler(evaluator Evaluator, session *game.Session) *Handler {
	return &Handler{evaluator: evaluator, session: session}
}

// NewRouter wires the routes.
func NewRouter(h *Handler) *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	e.GET("/healthz", h.Health)

	v1 := e.Group("/api").
		Group("/v1")
	v1.GET("/target", h.GetTarget)
	v1.POST("/target", h.NewTarget)
	v1.POST("/evaluate", h.Evaluate)
	return e
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type targetResponse struct {
	Target   int   `json:"target"`
	Achieved []int `json:"achieved"`
}

// GetTarget returns the current target and achieved targets.
func (h *Handler) GetTarget(c *gin.Context) {
	c.JSON(http.StatusOK, targetResponse{Target: h.session.Target(), Achieved: h.session.Achieved()})
}

// NewTarget draws a new target.
func (h *Handler) NewTarget(c *gin.Context) {
	t := h.session.NewTarget()
	c.JSON(http.StatusOK, targetResponse{Target: t, Achieved: h.session.Achieved()})
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type strokeRequest struct {
	Width   int          `json:"width" binding:"required,min=1"`
	Height  int          `json:"height" binding:"required,min=1"`
	Strokes [][]point    `json:"strokes"`
	View    *canvas.View `json:"view"`
	Target  *int         `json:"target"`
}

type symbolResponse struct {
	Symbol     string  `json:"symbol"`
	X          int     `json:"x"`
	Confidence float64 `json:"confidence"`
}

type evaluateResponse struct {
	expression.Result
	Target     int                `json:"target"`
	Expression string             `json:"expression"`
	Symbols    []symbolResponse   `json:"symbols"`
	Regions    []geometry.RectInt `json:"regions"`
	Achieved   []int              `json:"achieved"`
}

// Evaluate recognizes a drawing and checks it against the target. The
// drawing is either JSON strokes or a multipart image upload.
func (h *Handler) Evaluate(c *gin.Context) {
	var (
		buf    *raster.Buffer
		target = h.session.Target()
		ok     bool
	)
	if c.ContentType() == "multipart/form-data" {
		buf, target, ok = h.bindUpload(c, target)
	} else {
		buf, target, ok = h.bindStrokes(c, target)
	}
	if !ok {
		return
	}

	res, rec, err := h.evaluator.Evaluate(buf, target)
	if err != nil {
		log.Err(err).Msg("evaluate drawing")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Recognizer unavailable", "message": err.Error()})
		return
	}
	if h.session.Record(target, res) {
		log.Info().Int("target", target).Str("expression", rec.Expression).Msg("target achieved")
	}

	symbols := make([]symbolResponse, len(rec.Symbols))
	for i, s := range rec.Symbols {
		symbols[i] = symbolResponse{Symbol: s.Symbol, X: s.AnchorX, Confidence: s.Confidence}
	}
	regions := make([]geometry.RectInt, len(rec.Regions))
	for i, r := range rec.Regions {
		regions[i] = r.Rect()
	}
	c.JSON(http.StatusOK, evaluateResponse{
		Result:     res,
		Target:     target,
		Expression: rec.Expression,
		Symbols:    symbols,
		Regions:    regions,
		Achieved:   h.session.Achieved(),
	})
}

func (h *Handler) bindStrokes(c *gin.Context, target int) (*raster.Buffer, int, bool) {
	var req strokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Err(err).Msg("bind stroke request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return nil, 0, false
	}
	if req.Width > MaxSide || req.Height > MaxSide {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": "canvas too large"})
		return nil, 0, false
	}
	if req.Target != nil {
		target = *req.Target
	}

	view := canvas.DefaultView()
	if req.View != nil {
		view = req.View.Normalized()
	}
	strokes := make([]canvas.Stroke, len(req.Strokes))
	for i, s := range req.Strokes {
		stroke := make(canvas.Stroke, len(s))
		for j, p := range s {
			stroke[j] = geometry.NewPoint2D(p.X, p.Y)
		}
		strokes[i] = stroke
	}

	buf, err := canvas.Render(req.Width, req.Height, view, strokes)
	if err != nil {
		log.Err(err).Msg("render strokes")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to render strokes", "message": err.Error()})
		return nil, 0, false
	}
	return buf, target, true
}

func (h *Handler) bindUpload(c *gin.Context, target int) (*raster.Buffer, int, bool) {
	if s := c.PostForm("target"); s != "" {
		t, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target", "message": err.Error()})
			return nil, 0, false
		}
		target = t
	}

	file, err := c.FormFile("file")
	if err != nil {
		log.Err(err).Msg("read file from form")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read form file", "message": err.Error()})
		return nil, 0, false
	}
	f, err := file.Open()
	if err != nil {
		log.Err(err).Msg("open file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open form file", "message": err.Error()})
		return nil, 0, false
	}
	defer f.Close()

	buf, err := raster.DecodeLimited(f, MaxSide)
	if errors.Is(err, raster.ErrTooLarge) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return nil, 0, false
	}
	if err != nil {
		log.Err(err).Msg("decode image")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode image", "message": err.Error()})
		return nil, 0, false
	}
	return buf, target, true
}
