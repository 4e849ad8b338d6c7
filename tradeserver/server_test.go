package tradeserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerbook/trade-engine/internal/domain/trade/memory"
)

func memoryConfig() Config {
	cfg := Config{
		Auth:  AuthConfig{JWTSecret: "secret", Issuer: "stickerbook"},
		Trade: TradeConfig{Store: StoreMemory},
	}
	cfg.applyDefaults()
	return cfg
}

func TestServer_SetupWithMemoryStore(t *testing.T) {
	s := New(memoryConfig(), "test", "abc")
	require.NoError(t, s.Setup(context.Background()))
	defer s.Close()

	assert.Nil(t, s.DB)
	assert.Nil(t, s.Bridge)
	assert.IsType(t, &memory.Store{}, s.Store)
	require.NotNil(t, s.Engine)

	waiting, err := s.Engine.RequestMatch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", waiting.InitiatorID)
}

func TestServer_SignerUsesAuthConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.TokenTTL.Duration = time.Minute
	s := New(cfg, "test", "abc")

	token, err := s.Signer.Issue("bob")
	require.NoError(t, err)
	userID, err := s.Signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}

func TestServer_SetupFailsWithoutRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := New(cfg, "test", "abc")
	err := s.Setup(ctx)
	require.Error(t, err)
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.Engine)
}
