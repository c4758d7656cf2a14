package client

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/ratelimit"
)

// GetBalances 查询全部资产余额
func (c *Client) GetBalances(ctx context.Context) (types.Balances, error) {
	env, err := c.privatePost(ctx, EndpointBalance, ratelimit.KrakenBalance, types.NewParams())
	if err != nil {
		return nil, err
	}
	var balances types.Balances
	if len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, &balances); err != nil {
			return nil, &types.TransportError{Path: EndpointBalance, Err: errors.Wrap(err, "decode balances")}
		}
	}
	return balances, nil
}

// GetBalance 查询单个资产的实时余额；账户中没有该资产时返回 0
func (c *Client) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	code := c.AssetCode(asset)
	raw, ok := balances[code]
	if !ok {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &types.TransportError{
			Path: EndpointBalance,
			Err:  errors.Wrapf(err, "parse balance %s=%q", code, raw),
		}
	}
	return v, nil
}
