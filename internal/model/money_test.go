package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount("0")
	assert.True(t, ok)
	assert.Equal(t, Amount(0), v)

	v, ok = ParseAmount("-20")
	assert.True(t, ok)
	assert.Equal(t, Amount(-2000), v)

	v, ok = ParseAmount("100.5")
	assert.True(t, ok)
	assert.Equal(t, Amount(10050), v)

	for _, bad := range []string{"", "1.005", "abc", "1e30", `"100"`} {
		_, ok = ParseAmount(bad)
		assert.False(t, ok, bad)
	}
}

func TestAmount_JSONInNaira(t *testing.T) {
	assert.Equal(t, "25430", Naira(25430).String())
	assert.Equal(t, "750.5", Amount(75050).String())
	assert.Equal(t, "0.01", Amount(1).String())

	wallet := WalletAccount{UserID: "u1", Balance: 1050}
	data, err := json.Marshal(wallet)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"balance":10.5`)

	var decoded WalletAccount
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Amount(1050), decoded.Balance)

	assert.Error(t, json.Unmarshal([]byte(`{"balance":"10"}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"balance":0.001}`), &decoded))
}
