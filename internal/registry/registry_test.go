package registry_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
)

func TestDefault_IsValid(t *testing.T) {
	reg := registry.Default()
	require.NoError(t, reg.Validate())
	assert.Equal(t, "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", reg.MsolMint)
	assert.NotEmpty(t, reg.SaberPools)
	assert.NotEmpty(t, reg.LifinityVaults)
}

func TestValidate_RejectsBadAddresses(t *testing.T) {
	reg := registry.Default()
	reg.MsolMint = ""
	assert.Error(t, reg.Validate())

	reg = registry.Default()
	reg.PortProgram = "not-base58-0OIl"
	assert.Error(t, reg.Validate())

	reg = registry.Default()
	reg.StaticVaults = append(reg.StaticVaults, "abc")
	assert.Error(t, reg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("registry.tulip_mint", "So11111111111111111111111111111111111111112")

	reg, err := registry.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "So11111111111111111111111111111111111111112", reg.TulipMint)
	// untouched fields keep their defaults
	assert.Equal(t, registry.Default().MsolMint, reg.MsolMint)
}

func TestLoad_NilViperUsesDefaults(t *testing.T) {
	reg, err := registry.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, registry.Default().MsolMint, reg.MsolMint)
}

func TestLoad_RejectsInvalidOverride(t *testing.T) {
	v := viper.New()
	v.Set("registry.msol_mint", "bogus")
	_, err := registry.Load(v)
	assert.Error(t, err)
}

func TestOnCurveVaults(t *testing.T) {
	reg := registry.Default()
	// the system program key is the canonical on-curve address
	reg.StaticVaults = []string{"11111111111111111111111111111111"}
	assert.Equal(t, []string{"11111111111111111111111111111111"}, reg.OnCurveVaults())
}
