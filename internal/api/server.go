package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ardrone-svr/internal/dispatcher"
	"ardrone-svr/internal/link"
	"ardrone-svr/internal/pipeline"
	"ardrone-svr/internal/session"
)

// Mirror es la copia del estado en redis (store.Redis).
type Mirror interface {
	GetState(ctx context.Context, session string) (uint32, bool)
	GetFlags(ctx context.Context, session string) map[string]int
	GetSnapshot(ctx context.Context, session string) (*pipeline.Snapshot, error)
}

type Options struct {
	Processor  *pipeline.Processor // último snapshot; opcional
	Mirror     Mirror              // opcional
	ConfigLink *link.Link          // canal de config persistente; opcional
	ConfigAddr string              // para lecturas puntuales si no hay link
	ConfigOpts link.Options
}

// Server es la API HTTP de control de una sesión.
type Server struct {
	addr string
	sess *session.Session
	opts Options
	lg   *slog.Logger
}

func NewServer(addr string, sess *session.Session, opts Options, lg *slog.Logger) *Server {
	if lg == nil {
		lg = slog.Default()
	}
	return &Server{addr: addr, sess: sess, opts: opts, lg: lg.With("component", "api")}
}

// Run sirve hasta que ctx se cancela.
func (r *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: r.addr, Handler: r.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	r.lg.Info("api listening", "addr", r.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Server) Handler() *gin.Engine {
	eng := gin.New()
	eng.Use(gin.Recovery())

	apiV1 := eng.Group("/v1")
	apiV1.GET("/state", r.getState)
	apiV1.GET("/sessions/:id/state", r.getMirrored)
	apiV1.POST("/takeoff", r.takeoff)
	apiV1.POST("/land", r.land)
	apiV1.POST("/hover", r.hover)
	apiV1.POST("/emergency", r.emergency)
	apiV1.POST("/steer", r.steer)
	apiV1.GET("/commands", r.listCommands)
	apiV1.POST("/commands/:name", r.runCommand)
	apiV1.GET("/config", r.getConfig)
	apiV1.POST("/config", r.setConfig)

	return eng
}

type stateResponse struct {
	SessionID       string             `json:"session_id"`
	State           uint32             `json:"state"`
	Phase           string             `json:"phase"`
	Flying          bool               `json:"flying"`
	Bootstrap       bool               `json:"bootstrap"`
	ComLost         bool               `json:"com_lost"`
	AltitudeLimited bool               `json:"altitude_limited"`
	Pending         int                `json:"pending"`
	Axes            dispatcher.Axes    `json:"axes"`
	ConfigLinked    bool               `json:"config_linked"`
	Snapshot        *pipeline.Snapshot `json:"snapshot,omitempty"`
}

func (r *Server) getState(ctx *gin.Context) {
	dec := r.sess.Decoder()
	resp := stateResponse{
		SessionID:       r.sess.ID,
		State:           dec.State(),
		Phase:           dec.Phase().String(),
		Flying:          dec.IsFlying(),
		Bootstrap:       dec.IsInBootstrap(),
		ComLost:         dec.IsCommunicationsLost(),
		AltitudeLimited: dec.IsAltitudeLimited(),
		Pending:         r.sess.Pending(),
		Axes:            r.sess.Encoder().Axes(),
	}
	if r.opts.Processor != nil {
		resp.Snapshot = r.opts.Processor.Last()
	}
	if r.opts.ConfigLink != nil {
		resp.ConfigLinked = r.opts.ConfigLink.Connected()
	}
	ctx.JSON(http.StatusOK, resp)
}

type mirroredResponse struct {
	SessionID string             `json:"session_id"`
	State     uint32             `json:"state"`
	Flags     map[string]int     `json:"flags"`
	Snapshot  *pipeline.Snapshot `json:"snapshot,omitempty"`
}

// getMirrored lee de redis el último estado de cualquier sesión, incluida
// una anterior a este proceso, mientras no venza su TTL.
func (r *Server) getMirrored(ctx *gin.Context) {
	if r.opts.Mirror == nil {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "state mirror disabled"})
		return
	}
	id := ctx.Param("id")
	rctx := ctx.Request.Context()
	state, ok := r.opts.Mirror.GetState(rctx, id)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	resp := mirroredResponse{SessionID: id, State: state, Flags: r.opts.Mirror.GetFlags(rctx, id)}
	if snap, err := r.opts.Mirror.GetSnapshot(rctx, id); err == nil {
		resp.Snapshot = snap
	} else {
		r.lg.Debug("mirrored snapshot", "session", id, "err", err)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (r *Server) takeoff(ctx *gin.Context) {
	r.sess.Takeoff()
	ctx.Status(http.StatusAccepted)
}

func (r *Server) land(ctx *gin.Context) {
	r.sess.Land()
	ctx.Status(http.StatusAccepted)
}

func (r *Server) hover(ctx *gin.Context) {
	r.sess.Hover()
	ctx.Status(http.StatusAccepted)
}

type emergencyRequest struct {
	On bool `json:"on"`
}

func (r *Server) emergency(ctx *gin.Context) {
	var req emergencyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.sess.Emergency(req.On)
	ctx.Status(http.StatusAccepted)
}

func (r *Server) steer(ctx *gin.Context) {
	var a dispatcher.Axes
	if err := ctx.ShouldBindJSON(&a); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.sess.Steer(a)
	ctx.JSON(http.StatusAccepted, r.sess.Encoder().Axes())
}

type commandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *Server) listCommands(ctx *gin.Context) {
	out := []commandInfo{}
	for _, n := range dispatcher.Names() {
		c, _ := dispatcher.Lookup(n)
		out = append(out, commandInfo{Name: c.Name, Description: c.Description})
	}
	ctx.JSON(http.StatusOK, out)
}

func (r *Server) runCommand(ctx *gin.Context) {
	name := ctx.Param("name")
	params := dispatcher.Params{}
	if ctx.Request.ContentLength != 0 {
		// acepta {"animation": 3} y {"animation": "3"}
		var raw map[string]any
		if err := ctx.ShouldBindJSON(&raw); err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for k, v := range raw {
			params[k] = fmt.Sprint(v)
		}
	}

	err := r.sess.Run(name, params)
	switch {
	case err == nil:
		ctx.Status(http.StatusAccepted)
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatcher.ErrThrottled):
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

type configRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

func (r *Server) setConfig(ctx *gin.Context) {
	var req configRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.sess.SetOption(req.Name, req.Value)
	ctx.Status(http.StatusAccepted)
}

// getConfig devuelve el último volcado del link persistente o, si no hay,
// pide uno (AT*CTRL=5,0) y lo lee del puerto de configuración.
func (r *Server) getConfig(ctx *gin.Context) {
	if r.opts.ConfigLink != nil {
		if last := r.opts.ConfigLink.Last(); last != "" {
			ctx.JSON(http.StatusOK, link.ParseConfig(last))
			return
		}
	}
	if r.opts.ConfigAddr == "" {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no configuration available"})
		return
	}

	r.sess.RequestConfig()
	text, err := link.FetchConfig(ctx.Request.Context(), r.opts.ConfigAddr, r.opts.ConfigOpts)
	if err != nil {
		r.lg.Error("config fetch failed", "addr", r.opts.ConfigAddr, "err", err)
		ctx.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, link.ParseConfig(text))
}
