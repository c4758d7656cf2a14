package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/betbot/tradegate/kraken/types"
	"github.com/stretchr/testify/require"
)

// Kraken 官方文档中的 AddOrder 签名示例
func TestBuildKrakenSignature_DocumentedVector(t *testing.T) {
	secret := "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
	body := types.NewParams().
		Set("nonce", "1616492376594").
		Set("ordertype", "limit").
		Set("pair", "XBTUSD").
		Set("price", "37500").
		Set("type", "buy").
		Set("volume", "1.25")
	require.Equal(t, "nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25", body.Encode())

	sig, err := BuildKrakenSignature("/0/private/AddOrder", body, secret, 1616492376594)
	require.NoError(t, err)
	require.Equal(t, "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==", sig)
}

func TestBuildKrakenSignature_MatchesManualComputation(t *testing.T) {
	key := []byte("super-secret-key-bytes")
	secret := base64.StdEncoding.EncodeToString(key)
	body := types.NewParams().
		Set("nonce", "1760875200000000").
		Set("pair", "XRP/USD").
		Set("type", "buy").
		Set("ordertype", "market").
		Set("volume", "100")

	sha := sha256.Sum256([]byte("1760875200000000" + "nonce=1760875200000000&pair=XRP%2FUSD&type=buy&ordertype=market&volume=100"))
	mac := hmac.New(sha512.New, key)
	mac.Write(append([]byte("/0/private/AddOrder"), sha[:]...))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got, err := BuildKrakenSignature("/0/private/AddOrder", body, secret, 1760875200000000)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSigner_Deterministic(t *testing.T) {
	s, err := NewSigner(base64.StdEncoding.EncodeToString([]byte("k")))
	require.NoError(t, err)

	body := types.NewParams().Set("nonce", "42")
	first := s.Sign("/0/private/Balance", body, 42)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, s.Sign("/0/private/Balance", body, 42))
	}
	require.NotEqual(t, first, s.Sign("/0/private/Balance", body, 43))

	req := s.SignRequest("/0/private/Balance", body, 42)
	require.Equal(t, first, req.Signature)
	require.Equal(t, int64(42), req.Nonce)
}

func TestNewSigner_MalformedSecret(t *testing.T) {
	for _, secret := range []string{"", "not base64 !!"} {
		_, err := NewSigner(secret)
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "secret %q", secret)
	}

	_, err := BuildKrakenSignature("/p", types.NewParams(), "%%%", 1)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSigner_Wipe(t *testing.T) {
	s, err := NewSigner(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	s.Wipe()
	require.Equal(t, []byte{0, 0, 0}, s.key)
}
