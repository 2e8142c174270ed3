package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/coder/websocket"

	"github.com/harrowgate/llmgate/types"
)

// wireChunk is the JSON frame the loopback echo server exchanges with
// WebsocketTestAdapter — standing in for a vendor's wire protocol, which
// the spec explicitly excludes from this module's scope (§1 Non-goals).
type wireChunk struct {
	Delta   string `json:"delta"`
	IsFinal bool   `json:"is_final"`
}

// WebsocketTestAdapter exercises the streaming contract end to end over a
// real WebSocket connection against a loopback echo server, standing in
// for the out-of-scope vendor WebSocket transcoding while giving the
// Orchestrator's streaming path something concrete to drive in CI.
// Grounded on the teacher's agent/streaming/ws_adapter.go connection
// wrapper, re-pointed at github.com/coder/websocket (the module's actual
// go.mod dependency) and this package's Adapter contract.
type WebsocketTestAdapter struct {
	server *httptest.Server
	chunks []string
}

// NewWebsocketTestAdapter starts a loopback echo server that streams the
// given chunks back over a WebSocket connection for every Stream call.
func NewWebsocketTestAdapter(chunks []string) *WebsocketTestAdapter {
	a := &WebsocketTestAdapter{chunks: chunks}
	a.server = httptest.NewServer(http.HandlerFunc(a.handle))
	return a
}

func (a *WebsocketTestAdapter) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()
	for i, c := range a.chunks {
		frame, _ := json.Marshal(wireChunk{Delta: c, IsFinal: i == len(a.chunks)-1})
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return
		}
	}
}

func (a *WebsocketTestAdapter) Name() string { return "websocket-test" }

func (a *WebsocketTestAdapter) wsURL() string {
	return "ws" + a.server.URL[len("http"):]
}

func (a *WebsocketTestAdapter) Invoke(ctx context.Context, req types.Request, deadline time.Time) (types.GenerationResponse, error) {
	ch, err := a.Stream(ctx, req, deadline)
	if err != nil {
		return types.GenerationResponse{}, err
	}
	var content string
	var usage types.TokenUsage
	for evt := range ch {
		content += evt.Delta
		if evt.Usage != nil {
			usage.Add(*evt.Usage)
		}
		if evt.Error != "" {
			return types.GenerationResponse{}, types.NewError(evt.Error, "adapter stream error")
		}
	}
	return types.GenerationResponse{
		Content:      content,
		Provider:     a.Name(),
		Model:        req.Model.Alias,
		Usage:        usage,
		FinishReason: types.FinishStop,
		TraceID:      req.TraceID,
	}, nil
}

// Stream dials the loopback echo server and re-yields each frame as a
// StreamEvent; abandoning ctx before the terminal frame closes the
// connection (spec §4.7: "adapter releases the transport").
func (a *WebsocketTestAdapter) Stream(ctx context.Context, req types.Request, deadline time.Time) (<-chan types.StreamEvent, error) {
	conn, _, err := websocket.Dial(ctx, a.wsURL(), nil)
	if err != nil {
		return nil, types.NewError(types.ErrProvider, "websocket dial failed").WithCause(err).WithRetryable(true)
	}

	out := make(chan types.StreamEvent, 1)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "client done")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var frame wireChunk
			if err := json.Unmarshal(data, &frame); err != nil {
				return
			}
			evt := types.StreamEvent{Delta: frame.Delta, IsFinal: frame.IsFinal}
			select {
			case <-ctx.Done():
				return
			case out <- evt:
			}
			if frame.IsFinal {
				return
			}
		}
	}()
	return out, nil
}

func (a *WebsocketTestAdapter) EstimateTokens(req types.Request) int {
	total := 0
	for _, p := range req.Parts {
		total += estimateTextTokens(p.Text)
	}
	return total
}

// Close shuts down the loopback server.
func (a *WebsocketTestAdapter) Close() {
	a.server.Close()
}
