package crypto_test

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestWallet_SignMessageRecovers(t *testing.T) {
	w, err := crypto.NewWallet("0x" + testKey)
	require.NoError(t, err)

	msg := []byte(`{"marketId":7,"nonce":"n1"}`)
	sig, err := w.SignMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+130)

	last := sig[len(sig)-2:]
	assert.Contains(t, []string{"1b", "1c"}, last, "recovery byte is 27 or 28")

	addr, err := crypto.RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), addr)

	other, err := crypto.RecoverMessageSigner([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, w.Address(), other)
}

func TestWallet_SignMessageCancelled(t *testing.T) {
	w, err := crypto.NewWallet(testKey)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.SignMessage(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWallet_SignTx(t *testing.T) {
	w, err := crypto.NewWallet(testKey)
	require.NoError(t, err)

	to := common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	tx := types.NewTransaction(1, to, big.NewInt(0), 80_000, big.NewInt(30_000_000_000), []byte{0x09})
	chainID := big.NewInt(137)

	signed, err := w.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
}

func TestNewWallet_Invalid(t *testing.T) {
	_, err := crypto.NewWallet("zz")
	assert.Error(t, err)
}

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, crypto.WriteEncryptedKey(path, testKey, "hunter2"))

	w, err := crypto.LoadWallet(crypto.KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)

	direct, err := crypto.NewWallet(testKey)
	require.NoError(t, err)
	assert.Equal(t, direct.Address(), w.Address())

	_, err = crypto.LoadWallet(crypto.KeySource{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.ErrorContains(t, err, "wrong password")
}

func TestLoadWallet_NoSource(t *testing.T) {
	_, err := crypto.LoadWallet(crypto.KeySource{})
	assert.ErrorIs(t, err, crypto.ErrNoKeySource)
}

func TestEncryptKey_EmptyPassword(t *testing.T) {
	_, err := crypto.EncryptKey(testKey, "")
	assert.Error(t, err)
}
