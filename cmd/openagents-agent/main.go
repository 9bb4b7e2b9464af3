// ABOUTME: Minimal demo agent — registers over HTTP, subscribes, echoes messages.
// ABOUTME: Usage: openagents-agent [-addr localhost:8700] [-id echo-agent]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/openagents/openagents/internal/event"
)

func main() {
	addr := flag.String("addr", "localhost:8700", "network HTTP address")
	agentID := flag.String("id", "echo-agent", "agent ID")
	sendTo := flag.String("send", "", "send one direct message to this agent and exit")
	text := flag.String("text", "hello from openagents-agent", "message text for -send")
	flag.Parse()

	if err := run(*addr, *agentID, *sendTo, *text); err != nil {
		log.Fatal(err)
	}
}

type apiClient struct {
	base       string
	agentID    string
	credential string
	http       *http.Client
}

func (c *apiClient) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	} else {
		req.Header.Set("X-Agent-ID", c.agentID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}

func run(addr, agentID, sendTo, text string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c := &apiClient{
		base:    "http://" + addr,
		agentID: agentID,
		http:    &http.Client{Timeout: 45 * time.Second},
	}

	var reg struct {
		NetworkName string `json:"network_name"`
		Credential  string `json:"credential"`
	}
	err := c.post(ctx, "/api/agents/register", map[string]any{
		"agent_id":        agentID,
		"metadata":        map[string]any{"kind": "demo", "capabilities": []string{"chat", "echo"}},
		"force_reconnect": true,
	}, &reg)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	c.credential = reg.Credential
	log.Printf("registered as %s on network %q", agentID, reg.NetworkName)

	if sendTo != "" {
		return sendOnce(ctx, c, sendTo, text)
	}

	err = c.post(ctx, "/api/subscriptions", map[string]any{
		"patterns": []string{"agent.direct_message.*", "channel.message.*"},
	}, nil)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	log.Printf("subscribed; polling for events (ctrl-c to exit)")

	for ctx.Err() == nil {
		var result struct {
			Events []*event.Event `json:"events"`
		}
		if err := c.get(ctx, "/api/events/poll?max=32&timeout=25s", &result); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("poll failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, ev := range result.Events {
			handleEvent(ctx, c, ev)
		}
	}
	return nil
}

func handleEvent(ctx context.Context, c *apiClient, ev *event.Event) {
	log.Printf("event %s from %s: %s", ev.Name, ev.SourceID, ev.Text)

	// Echo direct messages back to their sender.
	if ev.Name == "agent.direct_message.sent" && ev.SourceID != c.agentID {
		reply := map[string]any{
			"event_name":          "agent.direct_message.sent",
			"destination_id":      ev.SourceID,
			"response_to":         ev.ID,
			"payload":             map[string]any{"text": "echo: " + ev.Text},
			"text_representation": "echo: " + ev.Text,
		}
		if err := c.post(ctx, "/api/events", reply, nil); err != nil {
			log.Printf("echo failed: %v", err)
		}
	}
}

func sendOnce(ctx context.Context, c *apiClient, destination, text string) error {
	var result struct {
		EventID  string          `json:"event_id"`
		Response *event.Response `json:"response"`
	}
	err := c.post(ctx, "/api/events", map[string]any{
		"event_name":          "agent.direct_message.sent",
		"destination_id":      destination,
		"payload":             map[string]any{"text": text},
		"text_representation": text,
	}, &result)
	if err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	log.Printf("sent %s to %s", result.EventID, destination)
	return nil
}
