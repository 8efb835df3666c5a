package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dealwatch/backend/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// probeTTL is how long a successful getMe result stays valid. Readiness
// endpoints get polled aggressively; there is no need to re-authenticate
// on every poll.
const probeTTL = 30 * time.Second

// Client sends formatted deal alerts to a Telegram channel via the bot
// API. It implements domain.ChannelSender.
type Client struct {
	httpClient  *http.Client
	botToken    string
	chatID      string
	baseURL     string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	debug       bool

	probeMu     sync.Mutex
	lastProbeOK time.Time
}

var _ domain.ChannelSender = (*Client)(nil)

// NewClient creates a Telegram client. baseURL may be empty for
// production; tests point it at a local server.
func NewClient(botToken, chatID, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Telegram caps bots at roughly 30 messages per second overall; the
	// pipeline's own window limiter handles per-channel pacing.
	limiter := rate.NewLimiter(rate.Limit(30), 5)

	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		botToken:    botToken,
		chatID:      chatID,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		rateLimiter: limiter,
		logger:      logger,
	}
}

// SetDebug enables request/response logging.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// apiResponse is the Telegram Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// sentMessage is the subset of the sendMessage result we need.
type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// Send posts one message to the configured channel and returns the
// provider message id. Provider failures come back as *domain.SendError;
// network-level failures as plain wrapped errors.
func (c *Client) Send(ctx context.Context, msg domain.Message) (string, error) {
	if c.botToken == "" || c.chatID == "" {
		return "", fmt.Errorf("telegram client misconfigured: missing bot token or chat id")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", msg.Text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", strconv.FormatBool(msg.DisablePreview))

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if c.debug {
		c.logger.Debug("telegram sendMessage response",
			"status", resp.StatusCode, "body", string(body))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		// A non-JSON body from a proxy or gateway still classifies by
		// HTTP status.
		if resp.StatusCode != http.StatusOK {
			return "", &domain.SendError{StatusCode: resp.StatusCode}
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if !out.OK {
		sendErr := &domain.SendError{
			StatusCode:  resp.StatusCode,
			Description: out.Description,
		}
		if out.ErrorCode != 0 {
			sendErr.StatusCode = out.ErrorCode
		}
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			sendErr.RetryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return "", sendErr
	}

	var sent sentMessage
	if err := json.Unmarshal(out.Result, &sent); err != nil {
		return "", fmt.Errorf("failed to decode sendMessage result: %w", err)
	}

	return strconv.FormatInt(sent.MessageID, 10), nil
}

// CheckReachable probes the bot API with getMe, the cheapest authenticated
// call. Successful probes are cached for probeTTL; failures are never
// cached. Used by the readiness endpoint.
func (c *Client) CheckReachable(ctx context.Context) error {
	c.probeMu.Lock()
	if !c.lastProbeOK.IsZero() && time.Since(c.lastProbeOK) < probeTTL {
		c.probeMu.Unlock()
		return nil
	}
	c.probeMu.Unlock()

	endpoint := fmt.Sprintf("%s/bot%s/getMe", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnreachable, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode getMe: %v", domain.ErrChannelUnreachable, err)
	}
	if !out.OK {
		return fmt.Errorf("%w: %s", domain.ErrChannelUnreachable, out.Description)
	}

	c.probeMu.Lock()
	c.lastProbeOK = time.Now()
	c.probeMu.Unlock()
	return nil
}
