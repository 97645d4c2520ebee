package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/uptime-sentinel/internal/db"
)

// ErrCodeTransport marks an Ack built locally because the webhook could not
// be reached or answered with something unreadable.
const ErrCodeTransport = -1

// Ack is the webhook's reply, or a locally built failure.
type Ack struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (a *Ack) OK() bool {
	return a != nil && a.ErrCode == 0
}

type DingTalkConfig struct {
	WebhookURL  string
	AccessToken string
	Secret      string
	Location    *time.Location
	Timeout     time.Duration
}

// DingTalk posts signed text messages to a DingTalk-style robot webhook.
type DingTalk struct {
	cfg     DingTalkConfig
	client  *http.Client
	logger  *zap.Logger
	now     func() time.Time
	metrics Recorder
}

// Recorder receives delivery outcomes. metrics.Collector implements it.
type Recorder interface {
	RecordNotificationSent(channel string, success bool, latencySeconds float64)
}

func NewDingTalk(cfg DingTalkConfig, logger *zap.Logger, metrics Recorder) *DingTalk {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &DingTalk{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "dingtalk")),
		now:     time.Now,
		metrics: metrics,
	}
}

type textPayload struct {
	MsgType string      `json:"msgtype"`
	Text    textContent `json:"text"`
}

type textContent struct {
	Content string `json:"content"`
}

// Sign returns the percent-encoded Base64 HMAC-SHA256 of
// "timestamp\nsecret", keyed by secret.
func Sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// SignedURL appends access_token, timestamp and sign to the webhook URL.
func (d *DingTalk) SignedURL(timestamp string) string {
	return fmt.Sprintf("%s?access_token=%s&timestamp=%s&sign=%s",
		d.cfg.WebhookURL,
		url.QueryEscape(d.cfg.AccessToken),
		timestamp,
		Sign(d.cfg.Secret, timestamp),
	)
}

// FormatMessage renders the text body for monitor and message at sentAt.
func (d *DingTalk) FormatMessage(monitor *db.Monitor, message string, sentAt time.Time) string {
	return fmt.Sprintf("[Uptime Sentinel]\nMonitor: %s\nURL: %s\nTime: %s\nDetail: %s",
		monitor.Name,
		monitor.URL,
		sentAt.In(d.cfg.Location).Format("2006-01-02 15:04:05 MST"),
		message,
	)
}

// Notify delivers message for monitor. It never returns an error: failures
// come back as an Ack with a non-zero ErrCode.
func (d *DingTalk) Notify(ctx context.Context, monitor *db.Monitor, message string) *Ack {
	start := time.Now()
	ack := d.send(ctx, monitor, message)

	if d.metrics != nil {
		d.metrics.RecordNotificationSent("dingtalk", ack.OK(), time.Since(start).Seconds())
	}

	if !ack.OK() {
		d.logger.Error("Alert delivery failed",
			zap.String("monitor_id", monitor.ID),
			zap.String("monitor_name", monitor.Name),
			zap.Int("errcode", ack.ErrCode),
			zap.String("errmsg", ack.ErrMsg),
		)
		return ack
	}

	d.logger.Info("Alert delivered",
		zap.String("monitor_id", monitor.ID),
		zap.String("monitor_name", monitor.Name),
	)
	return ack
}

func (d *DingTalk) send(ctx context.Context, monitor *db.Monitor, message string) *Ack {
	if d.cfg.AccessToken == "" || d.cfg.Secret == "" {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: "webhook credentials not configured"}
	}

	now := d.now()
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)

	body, err := json.Marshal(textPayload{
		MsgType: "text",
		Text:    textContent{Content: d.FormatMessage(monitor, message, now)},
	})
	if err != nil {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.SignedURL(timestamp), bytes.NewReader(body))
	if err != nil {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	resp, err := d.client.Do(req)
	if err != nil {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: err.Error()}
	}

	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		return &Ack{ErrCode: ErrCodeTransport, ErrMsg: fmt.Sprintf("unreadable webhook response (HTTP %d)", resp.StatusCode)}
	}
	return &ack
}
