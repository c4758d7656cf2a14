package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/betbot/tradegate/kraken/types"
)

// ConfigurationError API secret 无法解码。属于启动期错误，不应出现在请求路径上。
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid api secret: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// BuildKrakenSignature 构建 Kraken 私有 API 签名（API-Sign 头）：
//
//	base64(HMAC-SHA512(base64decode(secret), path + SHA256(nonce + urlencoded(body))))
func BuildKrakenSignature(path string, body *types.Params, secret string, nonce int64) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return sign(key, path, body, nonce), nil
}

func decodeSecret(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if len(key) == 0 {
		return nil, &ConfigurationError{Err: fmt.Errorf("secret is empty")}
	}
	return key, nil
}

func sign(key []byte, path string, body *types.Params, nonce int64) string {
	sha := sha256.New()
	sha.Write([]byte(strconv.FormatInt(nonce, 10) + body.Encode()))
	digest := sha.Sum(nil)

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(digest)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Signer 持有解码后的 secret，启动时构造一次
type Signer struct {
	key []byte
}

// NewSigner 解码 base64 secret，格式错误返回 *ConfigurationError
func NewSigner(secret string) (*Signer, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// Sign 对请求签名，纯函数，无内部时间状态
func (s *Signer) Sign(path string, body *types.Params, nonce int64) string {
	return sign(s.key, path, body, nonce)
}

// SignRequest 签名并组装 SignedRequest
func (s *Signer) SignRequest(path string, body *types.Params, nonce int64) *types.SignedRequest {
	return &types.SignedRequest{
		Path:      path,
		Body:      body,
		Nonce:     nonce,
		Signature: s.Sign(path, body, nonce),
	}
}

// Wipe 清零内存中的 key
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
}
