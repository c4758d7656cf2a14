package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/ratelimit"
)

// PlaceMarketOrder 下市价单。
//
// 请求体顺序：nonce, pair, type, ordertype, volume[, cl_ord_id]。
// 返回 *types.TransportError 时订单状态未知，调用方不能把它当作明确失败处理。
func (c *Client) PlaceMarketOrder(ctx context.Context, order types.MarketOrder) (*types.OrderResult, error) {
	if order.Side != types.SideBuy && order.Side != types.SideSell {
		return nil, errors.Wrapf(types.ErrRequestNotSent, "invalid side %q", order.Side)
	}
	if !order.Volume.IsPositive() {
		return nil, errors.Wrapf(types.ErrRequestNotSent, "volume must be positive, got %s", order.Volume)
	}

	params := types.NewParams().
		Set("pair", strings.ToUpper(order.Pair)).
		Set("type", string(order.Side)).
		Set("ordertype", string(types.OrderTypeMarket)).
		Set("volume", order.Volume.String())
	if order.ClientOrderID != "" {
		params.Set("cl_ord_id", order.ClientOrderID)
	}

	env, err := c.privatePost(ctx, EndpointAddOrder, ratelimit.KrakenAddOrder, params)
	if err != nil {
		return nil, err
	}

	result := &types.OrderResult{}
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			// 交易所已确认受理，只是结果结构不认识；按成功处理并记录原文
			c.log.Warnf("AddOrder 结果无法解析: %v raw=%s", err, string(env.Result))
		}
	}
	return result, nil
}
