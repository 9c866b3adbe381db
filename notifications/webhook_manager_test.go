package notifications

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmpulse/database"
)

type fakeWebhookStore struct {
	hooks []database.AlertWebhook
	logs  []database.AlertWebhookLog
}

func (f *fakeWebhookStore) GetActiveWebhooks() ([]database.AlertWebhook, error) {
	return f.hooks, nil
}

func (f *fakeWebhookStore) SaveWebhookLog(logEntry *database.AlertWebhookLog) error {
	f.logs = append(f.logs, *logEntry)
	return nil
}

type recordedBody struct {
	io.Reader
	closed bool
}

func (b *recordedBody) Close() error {
	b.closed = true
	return nil
}

// scriptedTransport answers each request with the next scripted status and
// remembers every body it handed out
type scriptedTransport struct {
	statuses []int
	calls    int
	bodies   []*recordedBody
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	status := t.statuses[t.calls]
	t.calls++
	body := &recordedBody{Reader: strings.NewReader("{}")}
	t.bodies = append(t.bodies, body)
	return &http.Response{
		StatusCode: status,
		Body:       body,
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestDeliverWebhookRetriesAndClosesEveryResponse(t *testing.T) {
	store := &fakeWebhookStore{}
	wm := NewWebhookManager(store, nil)
	transport := &scriptedTransport{statuses: []int{500, 502, 200}}
	wm.client = &http.Client{Transport: transport}

	hook := database.AlertWebhook{ID: 1, Name: "ops", URL: "https://hooks.example.com/farm", Method: "POST", RetryCount: 3}
	wm.deliverWebhook(hook, 42, []byte(`{"AlertID":42}`))

	assert.Equal(t, 3, transport.calls)
	for i, body := range transport.bodies {
		assert.True(t, body.closed, "attempt %d left its response open", i+1)
	}

	require.Len(t, store.logs, 1)
	assert.Equal(t, "SUCCESS", store.logs[0].Status)
	assert.Equal(t, 3, store.logs[0].RetryAttempt)
}

func TestDeliverWebhookClosesResponsesWhenEveryAttemptFails(t *testing.T) {
	store := &fakeWebhookStore{}
	wm := NewWebhookManager(store, nil)
	transport := &scriptedTransport{statuses: []int{500, 503}}
	wm.client = &http.Client{Transport: transport}

	hook := database.AlertWebhook{ID: 1, Name: "ops", URL: "https://hooks.example.com/farm", Method: "POST", RetryCount: 2}
	wm.deliverWebhook(hook, 7, []byte(`{"AlertID":7}`))

	assert.Equal(t, 2, transport.calls)
	for i, body := range transport.bodies {
		assert.True(t, body.closed, "attempt %d left its response open", i+1)
	}

	require.Len(t, store.logs, 1)
	assert.Equal(t, "FAILED", store.logs[0].Status)
	require.NotNil(t, store.logs[0].HTTPStatusCode)
	assert.Equal(t, 503, *store.logs[0].HTTPStatusCode)
}
