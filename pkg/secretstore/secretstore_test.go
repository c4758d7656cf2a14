package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{name: "empty", in: "  ", want: nil},
		{name: "hex", in: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f", want: raw},
		{name: "hex with 0x", in: "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f", want: raw},
		{name: "base64", in: base64.StdEncoding.EncodeToString(raw), want: raw},
		{name: "short hex", in: "0011", wantErr: true},
		{name: "garbage", in: "not a key!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStore_GetenvRoundTrip(t *testing.T) {
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	dir := t.TempDir()
	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)

	require.Equal(t, "", s.Getenv("KRAKEN_API_SECRET"))
	require.NoError(t, s.SetString(EnvPrefix+"KRAKEN_API_SECRET", " c2VjcmV0 "))
	require.NoError(t, s.Close())

	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key, ReadOnly: true})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, "c2VjcmV0", s.Getenv("KRAKEN_API_SECRET"))

	v, ok, err := s.GetString(EnvPrefix + "MISSING")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, v)
}

func TestStore_EmptyValueIsFound(t *testing.T) {
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString("k", ""))
	_, ok, err := s.GetString("k")
	require.NoError(t, err)
	require.True(t, ok)
}
