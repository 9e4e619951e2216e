// Package push talks to the Expo push service.
package push

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxChunkSize is the largest batch Expo accepts in a single request.
	MaxChunkSize = 100

	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4
)

var uuidToken = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

// Message is a single push notification addressed to one device token.
type Message struct {
	To       string                 `json:"to"`
	Title    string                 `json:"title,omitempty"`
	Body     string                 `json:"body,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Sound    string                 `json:"sound,omitempty"`
	Priority string                 `json:"priority,omitempty"`
}

// Ticket is Expo's per-message receipt for an accepted request.
type Ticket struct {
	Status  string                 `json:"status"`
	ID      string                 `json:"id,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewMessage builds a message with the default sound and high priority.
func NewMessage(to, title, body string, data map[string]interface{}) Message {
	return Message{
		To:       to,
		Title:    title,
		Body:     body,
		Data:     data,
		Sound:    "default",
		Priority: expo.HighPriority,
	}
}

// IsValidToken reports whether token looks like an Expo push token.
func IsValidToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return uuidToken.MatchString(token)
}

// Chunk splits msgs into consecutive batches of at most size messages.
func Chunk(msgs []Message, size int) [][]Message {
	if size <= 0 {
		size = MaxChunkSize
	}
	var chunks [][]Message
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		chunks = append(chunks, msgs[start:end])
	}
	return chunks
}

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	// Host is the Expo host, for example https://exp.host.
	Host        string
	AccessToken string
	// Timeout bounds each chunk request.
	Timeout     time.Duration
	Concurrency int
	Transport   http.RoundTripper
}

// Client sends messages to the Expo push service.
// It is safe for concurrent use and meant to be created once per process.
type Client struct {
	host        string
	accessToken string
	timeout     time.Duration
	concurrency int
	transport   http.RoundTripper
}

func NewClient(cfg Config) *Client {
	c := &Client{
		host:        cfg.Host,
		accessToken: cfg.AccessToken,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		transport:   cfg.Transport,
	}
	if c.host == "" {
		c.host = expo.DefaultHost
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.concurrency <= 0 {
		c.concurrency = defaultConcurrency
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	return c
}

// contextTransport binds every request of one SendBatch call to its context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func toExpo(msg Message) expo.PushMessage {
	var data map[string]string
	if len(msg.Data) > 0 {
		data = make(map[string]string, len(msg.Data))
		for k, v := range msg.Data {
			data[k] = fmt.Sprint(v)
		}
	}
	return expo.PushMessage{
		To:       []expo.ExponentPushToken{expo.ExponentPushToken(msg.To)},
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     data,
		Sound:    msg.Sound,
		Priority: msg.Priority,
	}
}

// SendBatch posts msgs in a single request and returns Expo's tickets.
// Callers are responsible for keeping the batch within MaxChunkSize.
func (c *Client) SendBatch(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pushClient := expo.NewPushClient(&expo.ClientConfig{
		Host:        c.host,
		AccessToken: c.accessToken,
		HTTPClient: &http.Client{
			Transport: contextTransport{ctx: ctx, base: c.transport},
			Timeout:   c.timeout,
		},
	})

	batch := make([]expo.PushMessage, 0, len(msgs))
	for _, msg := range msgs {
		batch = append(batch, toExpo(msg))
	}

	responses, err := pushClient.PublishMultiple(batch)
	if err != nil {
		return nil, fmt.Errorf("push service request failed: %w", err)
	}

	tickets := make([]Ticket, 0, len(responses))
	for _, resp := range responses {
		ticket := Ticket{Status: resp.Status, ID: resp.ID, Message: resp.Message}
		if len(resp.Details) > 0 {
			ticket.Details = make(map[string]interface{}, len(resp.Details))
			for k, v := range resp.Details {
				ticket.Details[k] = v
			}
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

// Send delivers msgs. Messages with malformed tokens are dropped and logged,
// the rest are chunked and the chunks sent concurrently. A failing chunk does
// not stop the others; if any chunk failed the first failure is returned after
// all chunks have been attempted.
func (c *Client) Send(ctx context.Context, msgs []Message) error {
	_, err := c.SendAll(ctx, msgs)
	return err
}

// SendAll is Send that also returns the tickets of the chunks that went through.
func (c *Client) SendAll(ctx context.Context, msgs []Message) ([]Ticket, error) {
	valid := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if !IsValidToken(msg.To) {
			log.Printf("dropping push message with invalid token %q", msg.To)
			continue
		}
		valid = append(valid, msg)
	}

	chunks := Chunk(valid, MaxChunkSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		tickets  []Ticket
		failed   int
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			got, err := c.SendBatch(gctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("error sending push chunk of %d: %v", len(chunk), err)
				failed++
				if firstErr == nil {
					firstErr = err
				}
				// Returning nil keeps the other chunks running.
				return nil
			}
			tickets = append(tickets, got...)
			return nil
		})
	}
	_ = g.Wait()

	for _, ticket := range tickets {
		if ticket.Status == "error" {
			log.Printf("push ticket error: %s %v", ticket.Message, ticket.Details)
		}
	}

	if firstErr != nil {
		return tickets, fmt.Errorf("%d of %d push chunks failed: %w", failed, len(chunks), firstErr)
	}
	return tickets, nil
}
