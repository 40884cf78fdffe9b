package dispatch

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nanohit/nocturne/pkg/pool"
)

// Turn is one ordered conversation turn
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one inbound chat request: a new user message plus optional
// prior turns. Model falls back to the configured default when empty.
type Request struct {
	Message string
	Model   string
	History []Turn
}

// chatPayload mirrors the upstream inference contract
type chatPayload struct {
	ClientProcessingTime      int    `json:"clientProcessingTime"`
	ConversationType          string `json:"conversationType"`
	IncludeVeniceSystemPrompt bool   `json:"includeVeniceSystemPrompt"`
	IsCharacter               bool   `json:"isCharacter"`
	ModelID                   string `json:"modelId"`
	Prompt                    []Turn `json:"prompt"`
	Reasoning                 bool   `json:"reasoning"`
	RequestID                 string `json:"requestId"`
	SimpleMode                bool   `json:"simpleMode"`
	SystemPrompt              string `json:"systemPrompt"`
	UserID                    string `json:"userId"`
	WebEnabled                bool   `json:"webEnabled"`
	WebScrapeEnabled          bool   `json:"webScrapeEnabled"`
}

// buildPayload constructs the upstream request body for one attempt.
// The prompt is the prior history followed by the new user turn; the
// request id is a fresh short identifier per attempt.
func (d *Dispatcher) buildPayload(acct *pool.Account, req Request) chatPayload {
	model := req.Model
	if model == "" {
		model = d.defaultModel
	}

	prompt := make([]Turn, 0, len(req.History)+1)
	prompt = append(prompt, req.History...)
	prompt = append(prompt, Turn{Role: "user", Content: req.Message})

	requestID, err := gonanoid.New(7)
	if err != nil {
		requestID = "fallback"
	}

	return chatPayload{
		ClientProcessingTime: 1,
		ConversationType:     "text",
		ModelID:              model,
		Prompt:               prompt,
		RequestID:            requestID,
		SimpleMode:           true,
		SystemPrompt:         d.systemPrompt,
		UserID:               acct.UserID(),
		WebEnabled:           true,
	}
}
