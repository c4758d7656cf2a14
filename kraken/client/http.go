package client

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/betbot/tradegate/kraken/types"
)

// privatePost 签名并发送一个私有 POST 请求，返回已确认无交易所错误的响应外壳。
//
// 错误分类：
//   - *types.ExchangeError：响应 error 字段非空（无论 HTTP 状态）
//   - *types.TransportError：网络失败，或响应体无法解析
//   - types.ErrRequestNotSent：未发出
func (c *Client) privatePost(ctx context.Context, path, limitKey string, params *types.Params) (*types.Envelope, error) {
	// 上层可能传入不可取消的 ctx，限流等待同样受 timeout 约束
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.limits.Wait(waitCtx, limitKey)
	cancel()
	if err != nil {
		return nil, errors.Wrapf(types.ErrRequestNotSent, "rate limit wait for %s: %v", path, err)
	}

	// nonce 必须在请求体第一位
	nonce := c.nonces.Next()
	body := types.NewParams().Set("nonce", strconv.FormatInt(nonce, 10))
	for _, k := range params.Keys() {
		if k == "nonce" {
			continue
		}
		body.Set(k, params.Get(k))
	}
	signed := c.signer.SignRequest(path, body, nonce)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("API-Key", c.creds.Key).
		SetHeader("API-Sign", signed.Signature).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Accept", "application/json").
		SetBody(body.Encode()).
		Post(path)
	if err != nil {
		return nil, &types.TransportError{Path: path, Err: err}
	}

	var env types.Envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &types.TransportError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Err:        errors.Wrapf(err, "decode response (%s)", resp.Status()),
		}
	}
	if env.Failed() {
		return nil, &types.ExchangeError{Path: path, StatusCode: resp.StatusCode(), Messages: env.Error}
	}
	if !resp.IsSuccess() {
		return nil, &types.TransportError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Err:        errors.Errorf("http non-2xx without error payload: %s", resp.Status()),
		}
	}

	c.log.Debugf("%s ok nonce=%d status=%d", path, nonce, resp.StatusCode())
	return &env, nil
}
