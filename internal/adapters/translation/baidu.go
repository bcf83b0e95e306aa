// Package translation provides remote translation backends.
package translation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	"github.com/jbctechsolutions/tokenpad/internal/domain/errors"
)

// DefaultBaiduURL is the Baidu general translation endpoint.
const DefaultBaiduURL = "https://fanyi-api.baidu.com/api/trans/vip/translate"

// BaiduConfig holds credentials and limits for the Baidu client.
type BaiduConfig struct {
	AppID     string
	SecretKey string
	URL       string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
}

// BaiduClient calls the Baidu Translate API.
type BaiduClient struct {
	httpClient *http.Client
	config     BaiduConfig
	limiter    *rate.Limiter
	now        func() time.Time
}

// Ensure BaiduClient implements ports.Translator.
var _ ports.Translator = (*BaiduClient)(nil)

// BaiduOption is a functional option for configuring the BaiduClient.
type BaiduOption func(*BaiduClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) BaiduOption {
	return func(c *BaiduClient) {
		c.httpClient = httpClient
	}
}

// WithClock sets the time source used for salts.
func WithClock(now func() time.Time) BaiduOption {
	return func(c *BaiduClient) {
		c.now = now
	}
}

// NewBaiduClient creates a client. An empty URL selects DefaultBaiduURL.
func NewBaiduClient(cfg BaiduConfig, opts ...BaiduOption) *BaiduClient {
	if cfg.URL == "" {
		cfg.URL = DefaultBaiduURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &BaiduClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		now:        time.Now,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements ports.Translator.
func (c *BaiduClient) Name() string { return "baidu" }

// Sign returns md5(appid + query + salt + secret) as lowercase hex.
func Sign(appID, query, salt, secret string) string {
	sum := md5.Sum([]byte(appID + query + salt + secret))
	return hex.EncodeToString(sum[:])
}

type baiduResponse struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	ErrorCode   errorCode `json:"error_code"`
	ErrorMsg    string    `json:"error_msg"`
	TransResult []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"trans_result"`
}

// errorCode accepts both string and numeric error codes.
type errorCode string

func (e *errorCode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = errorCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*e = errorCode(n.String())
	return nil
}

// Translate implements ports.Translator. API errors, HTTP failures and empty
// results are returned as errors so the caller can fall back.
func (c *BaiduClient) Translate(ctx context.Context, text, from, to string) (string, error) {
	if c.config.AppID == "" || c.config.SecretKey == "" {
		return "", errors.NewError(errors.CodeConfiguration, "baidu credentials missing", errors.ErrBackendNotConfigured)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.NewError(errors.CodeTranslation, "rate limiter", err)
		}
	}

	salt := strconv.FormatInt(c.now().Unix(), 10)
	params := url.Values{}
	params.Set("q", text)
	params.Set("from", from)
	params.Set("to", to)
	params.Set("appid", c.config.AppID)
	params.Set("salt", salt)
	params.Set("sign", Sign(c.config.AppID, text, salt, c.config.SecretKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"?"+params.Encode(), nil)
	if err != nil {
		return "", errors.NewError(errors.CodeTranslation, "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewError(errors.CodeTranslation, "request failed",
			fmt.Errorf("%w: %v", errors.ErrTranslationFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewError(errors.CodeTranslation, fmt.Sprintf("HTTP %d", resp.StatusCode),
			errors.ErrTranslationFailed)
	}

	var result baiduResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.NewError(errors.CodeTranslation, "failed to decode response", err)
	}

	if result.ErrorCode != "" && result.ErrorCode != "52000" {
		return "", errors.WithContext(errors.NewError(errors.CodeTranslation,
			fmt.Sprintf("api error %s: %s", result.ErrorCode, result.ErrorMsg),
			errors.ErrTranslationFailed), "error_code", string(result.ErrorCode))
	}

	if len(result.TransResult) == 0 {
		return "", errors.NewError(errors.CodeTranslation, "empty result", errors.ErrTranslationFailed)
	}

	return result.TransResult[0].Dst, nil
}
