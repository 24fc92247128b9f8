// Package alerts pushes operator alerts to a Slack incoming webhook.
package alerts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// Alert kinds
const (
	KindUnprotectedEntry = "unprotected_entry"
	KindTargetFailed     = "target_failed"
)

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Fields []SlackField `json:"fields"`
}

type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// AlertRequest describes one operator-facing event
type AlertRequest struct {
	Kind      string    `json:"kind"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  int       `json:"quantity"`
	Detail    string    `json:"detail"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier accepts alerts without blocking the caller
type Notifier interface {
	Notify(req AlertRequest)
}

type queuedAlert struct {
	req       AlertRequest
	attempts  int
	nextRetry time.Time
}

// SlackClient delivers alerts from a bounded queue on a single worker,
// retrying failed posts with backoff and suppressing duplicates for a minute.
type SlackClient struct {
	webhookURL  string
	channel     string
	httpClient  *http.Client
	queue       chan queuedAlert
	dedupeCache map[string]time.Time
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewSlackClient(webhookURL, channel string) *SlackClient {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SlackClient{
		webhookURL:  webhookURL,
		channel:     channel,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		queue:       make(chan queuedAlert, 100),
		dedupeCache: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.worker()
	return s
}

// Notify enqueues req. A full queue drops the alert.
func (s *SlackClient) Notify(req AlertRequest) {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	hash := generateHash(req)
	s.mu.Lock()
	if last, ok := s.dedupeCache[hash]; ok && time.Since(last) < 60*time.Second {
		s.mu.Unlock()
		return
	}
	s.dedupeCache[hash] = time.Now()
	s.mu.Unlock()

	select {
	case s.queue <- queuedAlert{req: req, nextRetry: time.Now()}:
		observ.SetGauge("alert_queue_depth", float64(len(s.queue)), nil)
	default:
		observ.IncCounter("alerts_dropped_total", map[string]string{"kind": req.Kind})
	}
}

func generateHash(req AlertRequest) string {
	data := fmt.Sprintf("%s:%s:%s:%d", req.Kind, req.Symbol, req.Side, req.Quantity)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)[:16]
}

func (s *SlackClient) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case alert := <-s.queue:
			if wait := time.Until(alert.nextRetry); wait > 0 {
				select {
				case <-time.After(wait):
				case <-s.ctx.Done():
					return
				}
			}

			err := s.sendWebhook(s.ctx, alert.req)
			if err == nil {
				observ.IncCounter("alerts_sent_total", map[string]string{"kind": alert.req.Kind})
				continue
			}
			observ.Warn("slack_webhook_failed", map[string]any{"kind": alert.req.Kind, "attempt": alert.attempts + 1, "error": err.Error()})

			alert.attempts++
			if alert.attempts >= 3 {
				observ.IncCounter("alert_webhook_errors_total", nil)
				continue
			}
			// Exponential backoff with jitter
			backoff := time.Duration(math.Pow(2, float64(alert.attempts))) * time.Second
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			alert.nextRetry = time.Now().Add(backoff + jitter)
			select {
			case s.queue <- alert:
			default:
				observ.IncCounter("alerts_dropped_total", map[string]string{"kind": alert.req.Kind})
			}
		}
	}
}

func (s *SlackClient) sendWebhook(ctx context.Context, req AlertRequest) error {
	payload, err := json.Marshal(s.formatMessage(req))
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackClient) formatMessage(req AlertRequest) SlackMessage {
	emoji, color := "⚠️", "warning"
	if req.Kind == KindUnprotectedEntry {
		emoji, color = "🚨", "danger"
	}

	return SlackMessage{
		Channel: s.channel,
		Text:    fmt.Sprintf("%s %s: %s", emoji, req.Kind, req.Symbol),
		Attachments: []SlackAttachment{{
			Color: color,
			Fields: []SlackField{
				{Title: "Side", Value: req.Side, Short: true},
				{Title: "Quantity", Value: fmt.Sprintf("%d", req.Quantity), Short: true},
				{Title: "Mode", Value: req.Mode, Short: true},
				{Title: "Time", Value: req.Timestamp.Format("15:04:05 MST"), Short: true},
				{Title: "Detail", Value: req.Detail, Short: false},
			},
		}},
	}
}

// Close stops the worker. Queued alerts are discarded.
func (s *SlackClient) Close() {
	s.cancel()
	<-s.done
}
