package client

// API 端点常量
const (
	DefaultBaseURL = "https://api.kraken.com"

	EndpointBalance  = "/0/private/Balance"
	EndpointAddOrder = "/0/private/AddOrder"
)

// defaultAssetCodes 常用币种到 Kraken 资产代码的映射（Balance 返回的 key）
var defaultAssetCodes = map[string]string{
	"XRP":  "XXRP",
	"BTC":  "XXBT",
	"XBT":  "XXBT",
	"ETH":  "XETH",
	"LTC":  "XLTC",
	"XLM":  "XXLM",
	"DOGE": "XXDG",
	"USD":  "ZUSD",
	"EUR":  "ZEUR",
}
