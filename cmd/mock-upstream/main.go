// Command mock-upstream runs deterministic fakes of every service the
// gateway talks to, for local development and smoke tests:
//
//	POST /verify-token, /verify-api-key  primary identity delegate
//	GET  /userinfo                       secondary token issuer
//	GET  /docs/functions.md              function platform docs
//	POST /functions/v1/{slug}            function platform
//	POST /v1/chat/completions            chat completion backend
//	GET  /healthz
//
// Known credentials: bearer "user-token" (alice, tenant org-1), bearer
// "partner-token" (accepted only by the secondary issuer), API key
// "sk_service" (svc). Any other credential is rejected with 401.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const functionsDoc = `# Platform functions

## Messaging

| Function | Path | Auth required |
|---|---|---|
| Send SMS | /functions/v1/send-sms | yes |
| Send email | /functions/v1/send-email | yes |

## Utilities

| Function | Path | Auth required |
|---|---|---|
| Status page | /functions/v1/status | no |
`

var (
	tokens = map[string]map[string]any{
		"user-token": {"id": "alice", "email": "alice@example.com", "tenant_id": "org-1", "service_tier": "premium"},
	}
	secondaryTokens = map[string]map[string]any{
		"partner-token": {"sub": "partner-1", "org_id": "org-2"},
	}
	apiKeys = map[string]map[string]any{
		"sk_service": {"id": "svc", "role": "service"},
	}
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify-token", verify("token", tokens))
	mux.HandleFunc("POST /verify-api-key", verify("api_key", apiKeys))
	mux.HandleFunc("GET /userinfo", handleUserInfo)
	mux.HandleFunc("GET /docs/functions.md", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Write([]byte(functionsDoc))
	})
	mux.HandleFunc("POST /functions/v1/{slug}", handleFunction)
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// verify answers a delegate call. The credential is read from the body
// field, falling back to the Authorization or X-API-Key header.
func verify(field string, known map[string]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		cred := body[field]
		if cred == "" {
			cred = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if cred == "" {
			cred = r.Header.Get("X-API-Key")
		}
		user, ok := known[cred]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func handleUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		return
	}
	user, ok := secondaryTokens[token]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func handleFunction(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var args map[string]any
	_ = json.NewDecoder(r.Body).Decode(&args)

	switch slug {
	case "status":
		writeJSON(w, http.StatusOK, map[string]any{"status": "operational"})
	case "send-sms", "send-email":
		if r.Header.Get("Authorization") == "" && r.Header.Get("X-API-Key") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "credentials required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"function": slug,
			"queued":   true,
			"id":       fmt.Sprintf("%s-%d", slug, time.Now().UnixNano()),
			"args":     args,
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown function"})
	}
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"messages"`
}

// handleChatCompletions echoes the last user message.
func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": "invalid JSON", "type": "invalid_request_error"},
		})
		return
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if s, ok := req.Messages[i].Content.(string); ok && req.Messages[i].Role == "user" {
			last = s
			break
		}
	}
	text := "You said: " + last

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		"object": "chat.completion",
		"model":  model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": text},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(strings.Fields(last)),
			"completion_tokens": len(strings.Fields(text)),
			"total_tokens":      len(strings.Fields(last)) + len(strings.Fields(text)),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
