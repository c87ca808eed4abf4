// Package notify holds the best-effort channels informed after an order is
// granted.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
)

const (
	defaultAnalyticsURL = "https://www.google-analytics.com/batch"
	maxHitsPerBatch     = 20
)

// HitPublisher delivers the analytics hits of one order.
type HitPublisher interface {
	Publish(ctx context.Context, orderNumber string, hits []payments.AnalyticsHit) error
}

// Analytics forwards the transaction and item hits stored on the order.
type Analytics struct {
	sink HitPublisher
}

func NewAnalytics(sink HitPublisher) *Analytics {
	return &Analytics{sink: sink}
}

// NewAnalyticsFromEnv picks the sink named by ANALYTICS_SINK.
func NewAnalyticsFromEnv() (*Analytics, error) {
	switch strings.ToLower(env.GetEnv("ANALYTICS_SINK", "http")) {
	case "kafka":
		brokers := env.GetEnvList("KAFKA_BROKERS")
		if len(brokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when ANALYTICS_SINK=kafka")
		}
		topic := env.GetEnv("KAFKA_ANALYTICS_TOPIC", "payment-analytics")
		log.Infof("[Analytics] Publishing hits to kafka topic %s", topic)
		return NewAnalytics(NewKafkaAnalytics(brokers, topic)), nil
	default:
		return NewAnalytics(NewHTTPAnalyticsFromEnv()), nil
	}
}

func (a *Analytics) Name() string { return "analytics" }

func (a *Analytics) Notify(ctx context.Context, c *payments.Confirmation) error {
	if len(c.Analytics) == 0 {
		return nil
	}
	return a.sink.Publish(ctx, c.OrderNumber, c.Analytics)
}

// Close releases the sink.
func (a *Analytics) Close() error {
	if closer, ok := a.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// HTTPAnalytics posts hits to a measurement-protocol batch endpoint.
type HTTPAnalytics struct {
	URL        string
	TrackingID string

	HTTPClient *http.Client
}

func NewHTTPAnalyticsFromEnv() *HTTPAnalytics {
	return &HTTPAnalytics{
		URL:        strings.TrimSpace(env.GetEnv("ANALYTICS_URL", defaultAnalyticsURL)),
		TrackingID: strings.TrimSpace(env.GetEnv("ANALYTICS_TRACKING_ID", "")),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("ANALYTICS_TIMEOUT", 10*time.Second),
		},
	}
}

func (a *HTTPAnalytics) Publish(ctx context.Context, orderNumber string, hits []payments.AnalyticsHit) error {
	if a.TrackingID == "" {
		return errors.New("ANALYTICS_TRACKING_ID is not configured")
	}
	for start := 0; start < len(hits); start += maxHitsPerBatch {
		end := start + maxHitsPerBatch
		if end > len(hits) {
			end = len(hits)
		}
		if err := a.post(ctx, orderNumber, hits[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (a *HTTPAnalytics) post(ctx context.Context, orderNumber string, hits []payments.AnalyticsHit) error {
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, a.encode(orderNumber, h))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics batch failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (a *HTTPAnalytics) encode(orderNumber string, h payments.AnalyticsHit) string {
	v := url.Values{}
	for k, val := range h {
		v.Set(k, val)
	}
	v.Set("v", "1")
	v.Set("tid", a.TrackingID)
	if v.Get("cid") == "" {
		cid := v.Get("uid")
		if cid == "" {
			cid = orderNumber
		}
		v.Set("cid", cid)
	}
	return v.Encode()
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAnalytics publishes the hits of each order as one message keyed by
// the order number.
type KafkaAnalytics struct {
	writer messageWriter
}

type analyticsMessage struct {
	OrderNumber string                  `json:"order_number"`
	Hits        []payments.AnalyticsHit `json:"hits"`
}

func NewKafkaAnalytics(brokers []string, topic string) *KafkaAnalytics {
	return &KafkaAnalytics{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (k *KafkaAnalytics) Publish(ctx context.Context, orderNumber string, hits []payments.AnalyticsHit) error {
	value, err := json.Marshal(analyticsMessage{OrderNumber: orderNumber, Hits: hits})
	if err != nil {
		return fmt.Errorf("failed to marshal analytics message: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderNumber),
		Value: value,
	})
}

func (k *KafkaAnalytics) Close() error {
	return k.writer.Close()
}
