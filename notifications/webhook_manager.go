package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmpulse/cache"
	"farmpulse/database"
	"farmpulse/helpers"
)

// webhookStore is the slice of the repository the manager needs.
// *database.StatRepository satisfies it.
type webhookStore interface {
	GetActiveWebhooks() ([]database.AlertWebhook, error)
	SaveWebhookLog(logEntry *database.AlertWebhookLog) error
}

// WebhookManager handles webhook notifications for alerts
type WebhookManager struct {
	repo   webhookStore
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	AlertID      int64                  `json:"AlertID"`
	AlertType    string                 `json:"AlertType"`
	DetectedAt   time.Time              `json:"DetectedAt"`
	CustomerKey  string                 `json:"CustomerKey,omitempty"`
	CropKey      string                 `json:"CropKey,omitempty"`
	Quantity     float64                `json:"Quantity"`
	ExpectedLow  float64                `json:"ExpectedLow"`
	ExpectedHigh float64                `json:"ExpectedHigh"`
	ZScore       float64                `json:"ZScore"`
	Method       string                 `json:"Method"`
	Confidence   string                 `json:"Confidence"`
	Message      string                 `json:"Message"`
	Metadata     map[string]interface{} `json:"Metadata,omitempty"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo webhookStore, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendAlert processes and sends the alert to matching webhooks
func (wm *WebhookManager) SendAlert(alert *database.Alert) {
	// 1. Get all active webhooks
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	if len(webhooks) == 0 {
		return
	}

	// 2. Prepare payload
	payload := wm.CreatePayload(alert)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	// 3. Process each webhook (async)
	for _, hook := range webhooks {
		if wm.shouldSend(hook, alert) {
			go wm.deliverWebhook(hook, alert.ID, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.AlertWebhook, error) {
	// Try cache first
	cacheKey := "active_webhooks"
	if wm.redis != nil {
		var cached []database.AlertWebhook
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	// Fetch from DB
	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	// Update cache (expire 1 hour)
	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), cacheKey, webhooks, 1*time.Hour)
	}

	return webhooks, err
}

// CreatePayload generates the webhook payload from an alert
func (wm *WebhookManager) CreatePayload(alert *database.Alert) WebhookPayload {
	var message string
	switch alert.Type {
	case "yield_outlier":
		// Example: "🌱 YIELD OUTLIER! basil | 42.0 oz/tray outside 10.2-18.6 | Z-Score: 8.21"
		message = fmt.Sprintf("🌱 YIELD OUTLIER! %s | %s/tray outside %s-%s | Z-Score: %.2f",
			alert.CropKey,
			helpers.FormatOz(alert.Quantity),
			helpers.FormatOz(alert.ExpectedLow),
			helpers.FormatOz(alert.ExpectedHigh),
			alert.ZScore,
		)
	default:
		// Example: "📦 ORDER ANOMALY! chef@bistro.com sunflower | Qty: 50.0 expected 8.0-12.0 | z_score (high)"
		message = fmt.Sprintf("📦 ORDER ANOMALY! %s %s | Qty: %.1f expected %.1f-%.1f | %s (%s)",
			alert.CustomerKey,
			alert.CropKey,
			alert.Quantity,
			alert.ExpectedLow,
			alert.ExpectedHigh,
			alert.Method,
			alert.Confidence,
		)
	}

	return WebhookPayload{
		AlertID:      alert.ID,
		AlertType:    alert.Type,
		DetectedAt:   alert.CreatedAt,
		CustomerKey:  alert.CustomerKey,
		CropKey:      alert.CropKey,
		Quantity:     alert.Quantity,
		ExpectedLow:  alert.ExpectedLow,
		ExpectedHigh: alert.ExpectedHigh,
		ZScore:       alert.ZScore,
		Method:       alert.Method,
		Confidence:   alert.Confidence,
		Message:      message,
		Metadata: map[string]interface{}{
			"stat_key":          alert.StatKey,
			"source_order_id":   alert.SourceOrderID,
			"source_harvest_id": alert.SourceHarvestID,
		},
	}
}

// confidenceRank orders alert confidence for threshold filtering
func confidenceRank(confidence string) int {
	switch confidence {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

func (wm *WebhookManager) shouldSend(hook database.AlertWebhook, alert *database.Alert) bool {
	// Check Alert Type filter
	if hook.AlertTypes != "" && hook.AlertTypes != "null" {
		// Lenient check: matches if the type is present in the string (JSON or CSV)
		if !strings.Contains(hook.AlertTypes, alert.Type) {
			return false
		}
	}

	// Check Crop filter
	if hook.CropKeys != "" && hook.CropKeys != "null" {
		if !strings.Contains(hook.CropKeys, alert.CropKey) {
			return false
		}
	}

	// Check confidence threshold
	if hook.MinConfidence != "" {
		if confidenceRank(alert.Confidence) < confidenceRank(hook.MinConfidence) {
			return false
		}
	}

	return true
}

func (wm *WebhookManager) deliverWebhook(hook database.AlertWebhook, alertID int64, payload []byte) {
	deliveryID := uuid.New().String()

	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, _ := http.NewRequest(hook.Method, hook.URL, bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "FarmPulse-Alert/1.0")
		req.Header.Set("X-Delivery-ID", deliveryID)

		log.Printf("🔹 Sending webhook to %s (Attempt %d/%d)", hook.URL, attempt, maxRetries)

		// Auth headers
		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		resp, err = wm.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			// Success
			wm.logDelivery(hook.ID, alertID, deliveryID, "SUCCESS", resp.StatusCode, "", attempt)
			if resp.Body != nil {
				resp.Body.Close()
			}
			return
		}

		// Drain the failed attempt before retrying; the last response stays
		// open so the failure tail can read its status code
		if attempt < maxRetries {
			if err == nil && resp.Body != nil {
				resp.Body.Close()
			}
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	// Failed
	status := "FAILED"
	errMsg := ""
	statusCode := 0
	if err != nil {
		errMsg = err.Error()
	} else if resp != nil {
		statusCode = resp.StatusCode
		resp.Body.Close()
	}

	wm.logDelivery(hook.ID, alertID, deliveryID, status, statusCode, errMsg, maxRetries)
}

func (wm *WebhookManager) logDelivery(webhookID int, alertID int64, deliveryID, status string, code int, err string, attempt int) {
	logEntry := &database.AlertWebhookLog{
		WebhookID:    webhookID,
		AlertID:      &alertID,
		DeliveryID:   deliveryID,
		TriggeredAt:  time.Now(),
		Status:       status,
		RetryAttempt: attempt,
	}

	if code != 0 {
		logEntry.HTTPStatusCode = &code
	}
	if err != "" {
		logEntry.ErrorMessage = err
	}

	if dbErr := wm.repo.SaveWebhookLog(logEntry); dbErr != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", dbErr)
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), "active_webhooks")
		log.Println("🔄 Webhook cache invalidated")
	}
}
