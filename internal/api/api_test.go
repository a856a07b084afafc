package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/tquiz/internal/api"
	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/leaderboard"
	"github.com/victornm/tquiz/internal/quiz"
	"github.com/victornm/tquiz/internal/session"
	"github.com/victornm/tquiz/internal/tts"
)

type source struct {
	fail atomic.Bool
}

func (s *source) FetchQuestions(_ context.Context, count int) ([]domain.Question, error) {
	if s.fail.Load() {
		return nil, fmt.Errorf("provider down")
	}

	qs := make([]domain.Question, count)
	for i := range qs {
		qs[i] = domain.Question{
			ID:            i + 1,
			Category:      "Geography",
			Difficulty:    "easy",
			Prompt:        fmt.Sprintf("Capital %d?", i+1),
			Choices:       []string{"Lyon", "Paris", "Nice", "Lille"},
			CorrectChoice: "Paris",
		}
	}
	return qs, nil
}

type env struct {
	engine *gin.Engine
	source *source
	eb     *event.Bus
	redis  *miniredis.Miniredis
}

type option func(c *api.Config, e *env)

func withTTS(endpoint, key string) option {
	return func(c *api.Config, _ *env) {
		c.TTS = tts.NewClient(tts.Config{Endpoint: endpoint, APIKey: key})
	}
}

func withRedis(t *testing.T) option {
	return func(c *api.Config, e *env) {
		e.redis = miniredis.RunT(t)
		rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{e.redis.Addr()}})

		c.Redis = rc
		c.PubsubPrefix = "tquiz"
		c.Leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: c.EventBus,
			Redis:    rc,
			Prefix:   "tquiz",
		})
	}
}

func makeEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		engine: gin.New(),
		source: &source{},
		eb:     event.NewBus(),
	}

	ss := session.NewService(session.Config{
		Source:   e.source,
		EventBus: e.eb,
	})

	c := api.Config{
		Router:   e.engine,
		EventBus: e.eb,
		Session:  ss,
		TTS:      tts.NewClient(tts.Config{}),
	}
	for _, opt := range opts {
		opt(&c, e)
	}
	api.New(c)

	t.Cleanup(func() {
		ss.Stop()
		e.eb.Stop()
	})

	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *env) createSession(t *testing.T) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	snap := decode[domain.Snapshot](t, rec)
	require.NotEmpty(t, snap.SessionID)
	require.Equal(t, domain.StatusNotStarted, snap.Status)
	return snap.SessionID
}

func TestAPI_QuizFlow(t *testing.T) {
	e := makeEnv(t)
	id := e.createSession(t)
	base := "/v1/sessions/" + id

	rec := e.do(t, http.MethodPost, base+"/start", map[string]string{"email": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email address.", decode[errorBody](t, rec).Message)

	rec = e.do(t, http.MethodPost, base+"/start", map[string]string{"email": "a@b.co"})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.Snapshot](t, rec)
	assert.Equal(t, domain.StatusInProgress, snap.Status)
	require.Len(t, snap.Questions, quiz.BatchSize)
	assert.Empty(t, snap.Questions[0].CorrectChoice, "correct choices stay hidden while in progress")

	rec = e.do(t, http.MethodPost, base+"/answer", map[string]string{"choice": "Paris"})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[domain.Snapshot](t, rec)
	require.NotNil(t, snap.CurrentAnswer)
	assert.Equal(t, "Paris", snap.CurrentAnswer.SelectedChoice)
	assert.False(t, snap.CurrentAnswer.IsCorrect, "correctness stays hidden while in progress")

	rec = e.do(t, http.MethodPost, base+"/goto", map[string]int{"index": 99})
	require.Equal(t, http.StatusOK, rec.Code, "out of range navigation is a no-op")
	assert.Equal(t, 0, decode[domain.Snapshot](t, rec).CurrentIndex)

	rec = e.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.Snapshot](t, rec).CurrentIndex)

	e.do(t, http.MethodPost, base+"/answer", map[string]string{"choice": "Lyon"})

	rec = e.do(t, http.MethodPost, base+"/previous", nil)
	assert.Equal(t, 0, decode[domain.Snapshot](t, rec).CurrentIndex)

	rec = e.do(t, http.MethodGet, base+"/results", nil)
	require.Equal(t, http.StatusConflict, rec.Code, "no results before completion")

	rec = e.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[domain.Snapshot](t, rec)
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	require.NotNil(t, snap.Results)
	assert.Equal(t, 7, snap.Results.Score)

	rec = e.do(t, http.MethodGet, base+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.ResultsResponse](t, rec)
	assert.Equal(t, 1, res.Results.CorrectAnswers)
	assert.Equal(t, "needs_practice", res.Grade)
	assert.Equal(t, "Keep practicing! You'll get better!", res.Feedback)
	require.Len(t, res.Review, quiz.BatchSize)
	assert.Equal(t, "Paris", res.Review[0].Question.CorrectChoice)
	assert.True(t, res.Review[0].IsCorrect)
	assert.Equal(t, "Lyon", res.Review[1].SelectedChoice)
	assert.False(t, res.Review[2].Answered)

	rec = e.do(t, http.MethodGet, base, nil)
	snap = decode[domain.Snapshot](t, rec)
	assert.Equal(t, "Paris", snap.Questions[0].CorrectChoice, "revealed once completed")

	rec = e.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[domain.Snapshot](t, rec)
	assert.Equal(t, domain.StatusNotStarted, snap.Status)
	assert.Empty(t, snap.Visited)

	rec = e.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Errors(t *testing.T) {
	tests := map[string]struct {
		arrange  func(t *testing.T, e *env) (method, path string, body any)
		wantCode int
		wantMsg  string
	}{
		"unknown session": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				return http.MethodGet, "/v1/sessions/missing", nil
			},
			wantCode: http.StatusNotFound,
		},

		"fetch failure": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				e.source.fail.Store(true)
				return http.MethodPost, "/v1/sessions/" + e.createSession(t) + "/start", map[string]string{"email": "a@b.co"}
			},
			wantCode: http.StatusBadGateway,
			wantMsg:  "Unable to load quiz questions. Please try again.",
		},

		"start twice": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				id := e.createSession(t)
				require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/sessions/"+id+"/start", map[string]string{"email": "a@b.co"}).Code)
				return http.MethodPost, "/v1/sessions/" + id + "/start", map[string]string{"email": "a@b.co"}
			},
			wantCode: http.StatusConflict,
		},

		"goto without index": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				return http.MethodPost, "/v1/sessions/" + e.createSession(t) + "/goto", map[string]string{}
			},
			wantCode: http.StatusBadRequest,
		},

		"leaderboard disabled": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				return http.MethodGet, "/v1/leaderboard", nil
			},
			wantCode: http.StatusNotFound,
		},

		"results archive disabled": {
			arrange: func(t *testing.T, e *env) (string, string, any) {
				return http.MethodGet, "/v1/sessions/" + e.createSession(t) + "/history", nil
			},
			wantCode: http.StatusNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := makeEnv(t)
			method, path, body := tc.arrange(t, e)

			rec := e.do(t, method, path, body)
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())

			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, decode[errorBody](t, rec).Message)
			}
		})
	}
}

func TestAPI_TextToSpeech(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"audios":["UklGRg=="]}`))
	}))
	defer provider.Close()

	tests := map[string]struct {
		key      string
		text     string
		wantCode int
		wantBody map[string]string
	}{
		"success": {
			key:      "secret",
			text:     "What is the capital of France?",
			wantCode: http.StatusOK,
			wantBody: map[string]string{"audio": "UklGRg=="},
		},
		"provider failure": {
			key:      "secret",
			text:     "fail",
			wantCode: http.StatusInternalServerError,
			wantBody: map[string]string{"error": "Text-to-speech conversion failed"},
		},
		"missing credential": {
			text:     "hello",
			wantCode: http.StatusInternalServerError,
			wantBody: map[string]string{"error": "Text-to-speech conversion failed"},
		},
		"empty text": {
			key:      "secret",
			wantCode: http.StatusBadRequest,
			wantBody: map[string]string{"error": "text is required"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := makeEnv(t, withTTS(provider.URL, tc.key))

			rec := e.do(t, http.MethodPost, "/api/text-to-speech", map[string]string{"text": tc.text})
			require.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantBody, decode[map[string]string](t, rec))
		})
	}
}

func TestAPI_PublishesNotifications(t *testing.T) {
	e := makeEnv(t, withRedis(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc := redis.NewClient(&redis.Options{Addr: e.redis.Addr()})
	sub := rc.Subscribe(ctx, "tquiz:user:a@b.co")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	id := e.createSession(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/sessions/"+id+"/start", map[string]string{"email": "a@b.co"}).Code)
	e.do(t, http.MethodPost, "/v1/sessions/"+id+"/answer", map[string]string{"choice": "Paris"})
	e.do(t, http.MethodPost, "/v1/sessions/"+id+"/complete", nil)

	seen := map[string]bool{}
	for len(seen) < 2 {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)

		var n struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		seen[n.Event] = true

		if n.Event == domain.EventNameQuizCompleted {
			var data api.QuizCompleted
			require.NoError(t, json.Unmarshal(n.Data, &data))
			assert.Equal(t, id, data.SessionID)
			assert.Equal(t, 7, data.Score)
		}
	}
	assert.True(t, seen[domain.EventNameLeaderboardUpdated])

	rec := e.do(t, http.MethodGet, "/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Leaderboard{
		Entries: []domain.LeaderboardEntry{{UserEmail: "a***@b.co", Score: 7}},
	}, decode[domain.Leaderboard](t, rec))
}

func TestAPI_PublishLeaderboardUpdated_MasksOtherUsers(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	a := api.New(api.Config{
		Router:       gin.New(),
		EventBus:     eb,
		Redis:        rc,
		PubsubPrefix: "tquiz",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rc.Subscribe(ctx, "tquiz:user:bob@example.com")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, a.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{Entries: []domain.LeaderboardEntry{
			{UserEmail: "alice@example.com", Score: 93},
			{UserEmail: "bob@example.com", Score: 80},
		}},
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n struct {
		Event string          `json:"event"`
		Data  api.Leaderboard `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))

	assert.Equal(t, domain.EventNameLeaderboardUpdated, n.Event)
	assert.Equal(t, []api.LeaderboardEntry{
		{Email: "a***@example.com", Score: "93"},
		{Email: "bob@example.com", Score: "80"},
	}, n.Data.Entries)
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]struct {
		email string
		want  string
	}{
		"regular":     {email: "alice@example.com", want: "a***@example.com"},
		"single char": {email: "a@b.co", want: "a***@b.co"},
		"multi-byte":  {email: "élodie@example.fr", want: "é***@example.fr"},
		"no at sign":  {email: "alice", want: "***"},
		"empty local": {email: "@example.com", want: "***"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, api.MaskEmail(tc.email))
		})
	}
}

func TestAPI_Stream_CheckOrigin(t *testing.T) {
	tests := map[string]struct {
		allowed []string
		origin  string
		wantOK  bool
	}{
		"same origin by default": {
			origin: "",
			wantOK: true,
		},
		"cross origin rejected by default": {
			origin: "http://elsewhere.example",
		},
		"allowed origin": {
			allowed: []string{"http://quiz.example"},
			origin:  "http://quiz.example",
			wantOK:  true,
		},
		"origin not in list": {
			allowed: []string{"http://quiz.example"},
			origin:  "http://elsewhere.example",
		},
		"wildcard": {
			allowed: []string{"*"},
			origin:  "http://elsewhere.example",
			wantOK:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := makeEnv(t, func(c *api.Config, _ *env) { c.AllowedOrigins = tc.allowed })
			srv := httptest.NewServer(e.engine)
			defer srv.Close()

			h := http.Header{}
			if tc.origin != "" {
				h.Set("Origin", tc.origin)
			}

			u := "ws" + srv.URL[len("http"):] + "/v1/sessions/" + e.createSession(t) + "/stream"
			conn, resp, err := websocket.DefaultDialer.Dial(u, h)
			if tc.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}

			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestAPI_Stream(t *testing.T) {
	e := makeEnv(t)
	srv := httptest.NewServer(e.engine)
	defer srv.Close()

	id := e.createSession(t)

	u := "ws" + srv.URL[len("http"):] + "/v1/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() domain.Snapshot {
		var msg struct {
			Type    string          `json:"type"`
			Payload domain.Snapshot `json:"payload"`
		}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "snapshot", msg.Type)
		return msg.Payload
	}

	assert.Equal(t, domain.StatusNotStarted, next().Status)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/sessions/"+id+"/start", map[string]string{"email": "a@b.co"}).Code)

	var snap domain.Snapshot
	for snap.Status != domain.StatusInProgress {
		snap = next()
	}
	assert.Empty(t, snap.Questions[0].CorrectChoice)

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/sessions/"+id, nil).Code)

	// Deleting the session ends the stream.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
}
