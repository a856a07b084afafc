package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/errors"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/leaderboard"
	"github.com/victornm/tquiz/internal/quiz"
	"github.com/victornm/tquiz/internal/results"
	"github.com/victornm/tquiz/internal/scoring"
	"github.com/victornm/tquiz/internal/session"
	"github.com/victornm/tquiz/internal/tts"
)

// Config wires the API. Results, Leaderboard and Redis are optional; the
// routes they back answer 404 when they are nil.
type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	TTS          *tts.Client
	Results      *results.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string

	// AllowedOrigins lists the origins allowed to open a session stream.
	// Empty means same origin only; "*" allows any origin.
	AllowedOrigins []string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss  *session.Service
	tts *tts.Client
	rs  *results.Service
	ls  *leaderboard.Service

	redis  Redis
	prefix string

	upgrader websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		tts:    c.TTS,
		rs:     c.Results,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(c.AllowedOrigins),
		},
	}

	a.register(c.Router)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
			return a.PublishQuizCompleted(ctx, e.(domain.EventQuizCompleted))
		})
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

func (a *API) register(r gin.IRouter) {
	r.GET("/healthz", a.Health)
	r.POST("/api/text-to-speech", a.TextToSpeech)

	v1 := r.Group("/v1")
	v1.GET("/leaderboard", a.GetLeaderboard)

	s := v1.Group("/sessions")
	s.POST("", a.CreateSession)
	s.GET("/:id", a.GetSession)
	s.DELETE("/:id", a.DeleteSession)
	s.POST("/:id/start", a.StartQuiz)
	s.POST("/:id/answer", a.SelectAnswer)
	s.POST("/:id/goto", a.GoTo)
	s.POST("/:id/next", a.Next)
	s.POST("/:id/previous", a.Previous)
	s.POST("/:id/complete", a.Complete)
	s.POST("/:id/reset", a.Reset)
	s.GET("/:id/results", a.GetResults)
	s.GET("/:id/history", a.GetHistory)
	s.GET("/:id/stream", a.Stream)
}

var errDisabled = errors.New(errors.CodeNotFound, errors.WithMessagef("feature is not enabled"))

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": a.ss.Count()})
}

func (a *API) CreateSession(c *gin.Context) {
	ss, err := a.ss.CreateSession(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, ss.Snapshot().Redacted())
}

func (a *API) GetSession(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.Snapshot().Redacted())
	})
}

func (a *API) DeleteSession(c *gin.Context) {
	if err := a.ss.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type StartQuizRequest struct {
	Email string `json:"email"`
}

func (a *API) StartQuiz(c *gin.Context) {
	var req StartQuizRequest
	if !bind(c, &req) {
		return
	}

	a.withSession(c, func(ss *quiz.Session) {
		if err := ss.Start(c.Request.Context(), req.Email); err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, ss.Snapshot().Redacted())
	})
}

type SelectAnswerRequest struct {
	Choice string `json:"choice" binding:"required"`
}

func (a *API) SelectAnswer(c *gin.Context) {
	var req SelectAnswerRequest
	if !bind(c, &req) {
		return
	}

	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.SelectAnswer(req.Choice).Redacted())
	})
}

type GoToRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (a *API) GoTo(c *gin.Context) {
	var req GoToRequest
	if !bind(c, &req) {
		return
	}

	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.GoTo(*req.Index).Redacted())
	})
}

func (a *API) Next(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.Next().Redacted())
	})
}

func (a *API) Previous(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.Previous().Redacted())
	})
}

func (a *API) Complete(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.Complete(c.Request.Context()).Redacted())
	})
}

func (a *API) Reset(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		c.JSON(http.StatusOK, ss.Reset(c.Request.Context()).Redacted())
	})
}

type ResultsResponse struct {
	Results  domain.Results      `json:"results"`
	Grade    string              `json:"grade"`
	Feedback string              `json:"feedback"`
	Review   []domain.ReviewItem `json:"review"`
}

func (a *API) GetResults(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		r, review, err := ss.Report()
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, ResultsResponse{
			Results:  r,
			Grade:    scoring.Grade(r.Score),
			Feedback: scoring.Feedback(r.Score),
			Review:   review,
		})
	})
}

type TextToSpeechResponse struct {
	Audio tts.Audio `json:"audio"`
}

// TextToSpeech answers {"audio"} on success and {"error"} otherwise.
func (a *API) TextToSpeech(c *gin.Context) {
	var req tts.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	audio, err := a.tts.Synthesize(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)

		e := errors.Convert(err)
		if e.Code == errors.CodeInvalidArgument {
			c.JSON(http.StatusBadRequest, gin.H{"error": e.Message})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": tts.ErrConversionFailed.Message})
		return
	}

	c.JSON(http.StatusOK, TextToSpeechResponse{Audio: audio})
}

var errNotStarted = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("quiz has not been started"))

// GetHistory lists the archived results of the email that started the session.
func (a *API) GetHistory(c *gin.Context) {
	if a.rs == nil {
		abort(c, errDisabled)
		return
	}

	a.withSession(c, func(ss *quiz.Session) {
		email := ss.Snapshot().UserEmail
		if email == "" {
			abort(c, errNotStarted)
			return
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		rs, err := a.rs.ListResults(c.Request.Context(), results.ListResultsRequest{
			UserEmail: email,
			Limit:     limit,
		})
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"results": rs})
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	if a.ls == nil {
		abort(c, errDisabled)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Limit: limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	for i := range l.Entries {
		l.Entries[i].UserEmail = MaskEmail(l.Entries[i].UserEmail)
	}

	c.JSON(http.StatusOK, l)
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}

		return false
	}
}

func (a *API) withSession(c *gin.Context, fn func(ss *quiz.Session)) {
	ss, err := a.ss.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	fn(ss)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err)))
		return false
	}

	return true
}

// abort writes err as {"code","message"} with its HTTP status.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
