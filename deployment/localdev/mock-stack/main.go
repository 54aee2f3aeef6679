// Mock generative backend for local development. It speaks just enough of the
// OpenAI chat-completions protocol for the triage engine's summarize and
// grouping calls: requests mentioning a Reference Story get a canned grouping
// decision, everything else gets a canned behavioral summary.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const mockSummary = "[Tactic: Execution (TA0002)] [Technique: PowerShell (T1059.001)]\n" +
	"Action: {User} launched powershell.exe from explorer.exe with an encoded command\n" +
	"Tool: PowerShell\n" +
	"Suspicious traits: executed from {Suspicious_Folder}, encoded command, outbound to {External_IP}"

const mockGrouping = `{"tickets": [{"ticket_title": "encoded powershell execution #1", "host": "HOST-01", "event_ids": [0, 1], "reason": "consecutive steps on one host within two minutes"}]}`

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		content := mockSummary
		for _, msg := range req.Messages {
			if strings.Contains(msg.Content, "Reference Story") {
				content = mockGrouping
				break
			}
		}

		writeJSON(w, chatResponse{
			ID:     "chatcmpl-mock",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []chatChoice{
				{
					Message:      chatMessage{Role: "assistant", Content: content},
					FinishReason: "stop",
				},
			},
		})
	})

	logger := log.New(log.Writer(), "stack-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
