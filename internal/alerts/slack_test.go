package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu   sync.Mutex
	msgs []SlackMessage
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m SlackMessage
		if err := json.NewDecoder(r.Body).Decode(&m); err == nil {
			c.mu.Lock()
			c.msgs = append(c.msgs, m)
			c.mu.Unlock()
		}
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestSlackClient_DeliversAlert(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	s := NewSlackClient(srv.URL, "#trading")
	defer s.Close()

	s.Notify(AlertRequest{Kind: KindUnprotectedEntry, Symbol: "NIFTY26FEB22000CE", Side: "BUY", Quantity: 50, Detail: "stop loss rejected", Mode: "live"})

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "#trading", c.msgs[0].Channel)
	assert.Contains(t, c.msgs[0].Text, "unprotected_entry")
	assert.Equal(t, "danger", c.msgs[0].Attachments[0].Color)
}

func TestSlackClient_SuppressesDuplicates(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	s := NewSlackClient(srv.URL, "")
	defer s.Close()

	req := AlertRequest{Kind: KindTargetFailed, Symbol: "X", Side: "SELL", Quantity: 50}
	s.Notify(req)
	s.Notify(req)
	s.Notify(AlertRequest{Kind: KindTargetFailed, Symbol: "Y", Side: "SELL", Quantity: 50})

	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, c.count())
}
