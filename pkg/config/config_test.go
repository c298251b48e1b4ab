package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := fromViper(newTestViper())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "identity-service", cfg.JWT.Issuer)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, 15*time.Minute, cfg.JWT.ResetExpiration)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.OTPExpiration)
	assert.Equal(t, time.Minute, cfg.Recovery.RequestCooldown)
	assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
	assert.Equal(t, RecoveryStoreMemory, cfg.Recovery.Store)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	v := newTestViper()
	v.Set("OTP_EXPIRATION", "soon")
	cfg := fromViper(v)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.OTPExpiration)
}

func TestValidateRejectsShortProductionSecret(t *testing.T) {
	v := newTestViper()
	v.Set("ENV", EnvProduction)
	v.Set("JWT_SECRET", "short")
	err := fromViper(v).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateRejectsUnknownRecoveryStore(t *testing.T) {
	v := newTestViper()
	v.Set("RECOVERY_STORE", "memcached")
	require.Error(t, fromViper(v).Validate())
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	v := newTestViper()
	v.Set("RESET_TOKEN_EXPIRATION", "-1m")
	require.Error(t, fromViper(v).Validate())
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example , ,https://b.example"))
	assert.Nil(t, splitAndTrim(""))
}
