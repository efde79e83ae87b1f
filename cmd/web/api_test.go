package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/alicebob/miniredis/v2"
	"github.com/myrjola/casefile/internal/e2etest"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/world"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const greeting = "Good evening, detective."

// fakeProvider answers chat, image and speech requests like an OpenAI-compatible API would.
type fakeProvider struct {
	chatCalls atomic.Int32
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	switch r.URL.Path {
	case "/chat/completions":
		f.chatCalls.Add(1)
		f.chat(w, body)
	case "/images/generations":
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))
		writeProviderJSON(w, map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(buf.Bytes())}},
		})
	case "/audio/speech":
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3 fake mp3"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) chat(w http.ResponseWriter, body []byte) {
	var request struct {
		ResponseFormat *struct {
			JSONSchema struct {
				Name string `json:"name"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	_ = json.Unmarshal(body, &request)
	schema := ""
	if request.ResponseFormat != nil {
		schema = request.ResponseFormat.JSONSchema.Name
	}

	var content string
	switch schema {
	case generation.WorldSchemaName:
		content = string(worldtest.JSON())
	case game.MemorySchemaName:
		content = `{"memories":[{"origin_id":"maid-ellis","origin_type":"character","content":"Ellis heard an argument."}]}`
	case game.ClueSchemaName:
		content = `{"clueIds":["overheard-argument","no-such-clue"]}`
	case game.VerdictSchemaName:
		solved := bytes.Contains(body, []byte("Hughes poisoned"))
		content = fmt.Sprintf(`{"solved":%t,"response":"The judge has spoken."}`, solved)
	default:
		content = greeting
	}
	writeProviderJSON(w, map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func writeProviderJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func startTestServer(t *testing.T, provider *fakeProvider, redisURL string) *e2etest.Server {
	t.Helper()
	providerServer := httptest.NewServer(provider)
	t.Cleanup(providerServer.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, io.Discard, e2etest.ServerConfig{
		ProviderURL: providerServer.URL,
		RedisURL:    redisURL,
		Env:         nil,
	}, run)
	require.NoError(t, err)
	return server
}

type gameStateResponse struct {
	ID      string      `json:"id"`
	WorldID string      `json:"worldId"`
	State   *game.State `json:"state"`
}

func TestAPI_playthrough(t *testing.T) {
	tests := []struct {
		name     string
		redisURL func(t *testing.T) string
	}{
		{
			name:     "in-process turn locks",
			redisURL: func(*testing.T) string { return "" },
		},
		{
			name: "redis turn locks",
			redisURL: func(t *testing.T) string {
				return "redis://" + miniredis.RunT(t).Addr()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testPlaythrough(t, tt.redisURL(t))
		})
	}
}

func testPlaythrough(t *testing.T, redisURL string) {
	t.Helper()
	var (
		ctx      = context.Background()
		provider = &fakeProvider{}
		server   = startTestServer(t, provider, redisURL)
		client   = server.Client()
	)

	err := client.DoJSON(ctx, http.MethodGet, "/api/worlds", nil, http.StatusUnauthorized, nil)
	require.NoError(t, err, "anonymous users must not see worlds")

	session, err := client.Register(ctx)
	require.NoError(t, err)
	require.True(t, session.Authenticated)

	var stored models.World
	err = client.DoJSON(ctx, http.MethodPost, "/api/worlds",
		map[string]any{"payload": worldtest.Payload()}, http.StatusCreated, &stored)
	require.NoError(t, err)
	require.Equal(t, "The Blackwood Manor Affair", stored.Title)
	require.Empty(t, stored.Payload.Solution.CulpritID, "solution must be redacted")

	invalid := worldtest.Payload()
	invalid.Solution.CulpritID = "nobody"
	err = client.DoJSON(ctx, http.MethodPost, "/api/worlds",
		map[string]any{"payload": invalid}, http.StatusBadRequest, nil)
	require.NoError(t, err)

	var gs gameStateResponse
	err = client.DoJSON(ctx, http.MethodPost, "/api/gamestates",
		map[string]string{"worldId": stored.ID}, http.StatusCreated, &gs)
	require.NoError(t, err)
	path := "/api/gamestates/" + gs.ID

	var state game.State
	err = client.DoJSON(ctx, http.MethodPost, path+"/move", map[string]string{"locationId": "foyer"},
		http.StatusOK, &state)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentLocation)
	require.Equal(t, world.LocationID("foyer"), *state.CurrentLocation)

	err = client.DoJSON(ctx, http.MethodPost, path+"/move", map[string]string{"locationId": "cellar"},
		http.StatusBadRequest, nil)
	require.NoError(t, err)

	t.Run("victim refuses without a model call", func(t *testing.T) {
		before := provider.chatCalls.Load()
		var reply dialogueResponse
		err = client.DoJSON(ctx, http.MethodPost, path+"/dialogue",
			map[string]any{"input": "Who did this?", "characterId": worldtest.Victim}, http.StatusOK, &reply)
		require.NoError(t, err)
		require.Equal(t, game.VictimRefusal, reply.Response)
		require.Equal(t, before, provider.chatCalls.Load())
		require.False(t, reply.State.IsInConversation)
	})

	t.Run("dialogue without a conversation", func(t *testing.T) {
		err = client.DoJSON(ctx, http.MethodPost, path+"/dialogue",
			map[string]any{"input": "Hello?"}, http.StatusBadRequest, nil)
		require.NoError(t, err)
	})

	t.Run("witness talks and reveals a clue", func(t *testing.T) {
		var reply dialogueResponse
		err = client.DoJSON(ctx, http.MethodPost, path+"/dialogue",
			map[string]any{"input": "What did you hear?", "characterId": worldtest.Witness}, http.StatusOK, &reply)
		require.NoError(t, err)
		require.Equal(t, greeting, reply.Response)
		require.True(t, reply.State.IsInConversation)
		require.Equal(t, []world.ClueID{"overheard-argument"}, reply.State.CluesFound)
		require.Len(t, reply.State.Memories, 1)
		require.Len(t, reply.State.DialogueHistory[worldtest.Witness], 2)

		// The conversation continues without naming the character again.
		err = client.DoJSON(ctx, http.MethodPost, path+"/dialogue",
			map[string]any{"input": "Anything else?"}, http.StatusOK, &reply)
		require.NoError(t, err)
		require.Len(t, reply.State.DialogueHistory[worldtest.Witness], 4)
		require.Equal(t, []world.ClueID{"overheard-argument"}, reply.State.CluesFound, "clues are not duplicated")
	})

	t.Run("judge", func(t *testing.T) {
		err = client.DoJSON(ctx, http.MethodPost, path+"/judge",
			map[string]string{"input": "The cook did it."}, http.StatusBadRequest, nil)
		require.NoError(t, err, "the judge only listens in solving mode")

		err = client.DoJSON(ctx, http.MethodPost, path+"/solve", nil, http.StatusOK, &state)
		require.NoError(t, err)
		require.True(t, state.IsSolving)
		require.False(t, state.IsInConversation)

		var verdict judgeResponse
		err = client.DoJSON(ctx, http.MethodPost, path+"/judge",
			map[string]string{"input": "The cook did it."}, http.StatusOK, &verdict)
		require.NoError(t, err)
		require.False(t, verdict.Solved)
		require.True(t, verdict.State.IsSolving, "a wrong accusation keeps solving mode")

		err = client.DoJSON(ctx, http.MethodPost, path+"/judge",
			map[string]string{"input": "Mr. Hughes poisoned the port."}, http.StatusOK, &verdict)
		require.NoError(t, err)
		require.True(t, verdict.Solved)
		require.True(t, verdict.State.Solved)
		require.False(t, verdict.State.IsSolving)
		require.Len(t, verdict.State.DialogueHistory[world.JudgeID], 4)
	})

	var reloaded gameStateResponse
	err = client.DoJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &reloaded)
	require.NoError(t, err)
	require.True(t, reloaded.State.Solved)

	loggedInToken := client.SessionToken()
	require.NotEmpty(t, loggedInToken)

	session, err = client.Logout(ctx)
	require.NoError(t, err)
	require.False(t, session.Authenticated)
	loggedOutToken := client.SessionToken()
	require.NotEqual(t, loggedInToken, loggedOutToken, "logout rotates the session token")
	err = client.DoJSON(ctx, http.MethodGet, path, nil, http.StatusUnauthorized, nil)
	require.NoError(t, err)

	session, err = client.Login(ctx)
	require.NoError(t, err)
	require.True(t, session.Authenticated)
	require.NotEqual(t, loggedOutToken, client.SessionToken(), "login rotates the session token")
	err = client.DoJSON(ctx, http.MethodGet, path, nil, http.StatusOK, nil)
	require.NoError(t, err)
}

func TestAPI_worldGeneration(t *testing.T) {
	var (
		ctx    = context.Background()
		server = startTestServer(t, &fakeProvider{}, "")
		client = server.Client()
	)
	_, err := client.Register(ctx)
	require.NoError(t, err)

	var started generateResponse
	err = client.DoJSON(ctx, http.MethodPost, "/api/worlds/generate",
		map[string]string{"theme": "gothic"}, http.StatusAccepted, &started)
	require.NoError(t, err)
	require.NotEmpty(t, started.JobID)
	path := "/api/worlds/generate/" + started.JobID

	var status job
	require.Eventually(t, func() bool {
		return client.DoJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &status) == nil &&
			status.Status == jobSucceeded
	}, 5*time.Second, 20*time.Millisecond)
	require.NotEmpty(t, status.WorldID)
	require.Equal(t, generation.EventAccepted, status.Events[len(status.Events)-1].Kind)

	// Persistence and painting run in the background.
	worldPath := "/api/worlds/" + status.WorldID
	require.Eventually(t, func() bool {
		return client.DoJSON(ctx, http.MethodGet, worldPath, nil, http.StatusOK, nil) == nil
	}, 5*time.Second, 20*time.Millisecond)
	portraitPath := worldPath + "/characters/" + string(worldtest.Witness) + "/portrait"
	require.Eventually(t, func() bool {
		resp, doErr := client.Do(ctx, http.MethodGet, portraitPath, nil)
		if doErr != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK && resp.Header.Get("Content-Type") == "image/png"
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("finished job replays its events", func(t *testing.T) {
		resp, doErr := client.Do(ctx, http.MethodGet, path+"/events", nil)
		require.NoError(t, doErr)
		defer func() {
			_ = resp.Body.Close()
		}()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		body, readErr := io.ReadAll(resp.Body)
		require.NoError(t, readErr)
		assert.Contains(t, string(body), "event: progress")
		assert.Contains(t, string(body), "event: done")
		assert.Contains(t, string(body), `"status":"succeeded"`)
	})

	t.Run("speech", func(t *testing.T) {
		resp, doErr := client.Do(ctx, http.MethodPost, worldPath+"/speech",
			map[string]any{"text": "Hello", "characterId": worldtest.Witness})
		require.NoError(t, doErr)
		defer func() {
			_ = resp.Body.Close()
		}()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		audio, readErr := io.ReadAll(resp.Body)
		require.NoError(t, readErr)
		require.True(t, strings.HasPrefix(string(audio), "ID3"))
	})

	t.Run("jobs are private", func(t *testing.T) {
		other, clientErr := server.NewClient()
		require.NoError(t, clientErr)
		_, err = other.Register(ctx)
		require.NoError(t, err)
		err = other.DoJSON(ctx, http.MethodGet, path, nil, http.StatusNotFound, nil)
		require.NoError(t, err)
	})
}

func TestAPI_csrf(t *testing.T) {
	server := startTestServer(t, &fakeProvider{}, "")
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		server.URL()+"/api/registration/start", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
