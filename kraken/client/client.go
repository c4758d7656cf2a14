package client

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradegate/kraken/signing"
	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/clock"
	"github.com/betbot/tradegate/pkg/ratelimit"
)

// Config 客户端配置
type Config struct {
	BaseURL    string
	Creds      types.ApiKeyCreds
	Timeout    time.Duration     // 单次请求超时，默认 15s
	AssetCodes map[string]string // 覆盖/补充默认资产代码映射
	RateLimits *ratelimit.RateLimitManager
	Clock      clock.Clock
	Transport  http.RoundTripper // 可选，测试或代理
}

// Client Kraken 私有 REST 客户端。每次调用恰好发出一个请求，不做重试：
// 下单是否重试由上层决定。
type Client struct {
	http   *resty.Client
	creds  types.ApiKeyCreds
	signer *signing.Signer
	nonces *signing.NonceSource
	assets map[string]string
	limits  *ratelimit.RateLimitManager
	timeout time.Duration
	log     *logrus.Entry
}

// NewClient 创建客户端；API secret 不是合法 base64 时返回 *signing.ConfigurationError
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Creds.Key) == "" {
		return nil, &signing.ConfigurationError{Err: fmt.Errorf("api key is empty")}
	}
	signer, err := signing.NewSigner(cfg.Creds.Secret)
	if err != nil {
		return nil, err
	}

	host := strings.TrimSuffix(cfg.BaseURL, "/")
	if host == "" {
		host = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	hc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "tradegate/1.0")
	if cfg.Transport != nil {
		hc.SetTransport(cfg.Transport)
	}

	assets := make(map[string]string, len(defaultAssetCodes)+len(cfg.AssetCodes))
	for k, v := range defaultAssetCodes {
		assets[k] = v
	}
	for k, v := range cfg.AssetCodes {
		assets[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	return &Client{
		http:   hc,
		creds:  cfg.Creds,
		signer: signer,
		nonces: signing.NewNonceSource(cfg.Clock),
		assets: assets,
		limits:  cfg.RateLimits,
		timeout: timeout,
		log:     logrus.WithField("component", "kraken"),
	}, nil
}

// MaxCallDuration 单次调用的最长耗时：限流等待与请求各不超过 Timeout
func (c *Client) MaxCallDuration() time.Duration {
	return 2 * c.timeout
}

// AssetCode 返回币种在 Balance 结果中的 key
func (c *Client) AssetCode(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if code, ok := c.assets[symbol]; ok {
		return code
	}
	return symbol
}

// Close 清理内存中的密钥
func (c *Client) Close() {
	c.signer.Wipe()
}
