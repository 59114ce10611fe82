package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildledger/backend/internal/config"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "cli-secret")
	t.Setenv("LOG_OUTPUT", "stderr")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "284102384756293632", "--expiry", "10m"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "284102384756293632", claims["user_id"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp.Time, time.Minute)
}

func TestActivityConfigOverlay(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{Economy: config.EconomyConfig{
		DailyBase:     250,
		CrimeCooldown: 30 * time.Minute,
	}}
	ac := activityConfig()
	assert.Equal(t, int64(250), ac.DailyBase)
	assert.Equal(t, 30*time.Minute, ac.CrimeCooldown)
	// unset values keep the defaults
	assert.Equal(t, int64(25), ac.DailyLevelBonus)
	assert.Equal(t, 24*time.Hour, ac.DailyCooldown)
}
