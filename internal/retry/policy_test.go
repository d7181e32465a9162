package retry

import (
	"testing"
	"time"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDelayLinear(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, time.Second, 5)
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(50)) // capped
}

func TestDelayFixed(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 250*time.Millisecond, time.Second, 3)
	assert.Equal(t, 250*time.Millisecond, p.Delay(1))
	assert.Equal(t, 250*time.Millisecond, p.Delay(10))
}

func TestDelayExponential(t *testing.T) {
	p := NewPolicy(config.RetryBackoffExponential, 100*time.Millisecond, time.Second, 5)
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(8)) // capped
}

func TestNewPolicyFallbacks(t *testing.T) {
	p := NewPolicy("bogus", 0, 0, -1)
	def := DefaultPolicy()
	assert.Equal(t, def.Mode, p.Mode)
	assert.Equal(t, def.Initial, p.Initial)
	assert.Equal(t, def.Max, p.Max)
	assert.Equal(t, def.MaxRetries, p.MaxRetries)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxRetries: 4, Backoff: "exponential", InitialDelay: "200ms", MaxDelay: "5s"})
	assert.Equal(t, config.RetryBackoffExponential, p.Mode)
	assert.Equal(t, 200*time.Millisecond, p.Initial)
	assert.Equal(t, 5*time.Second, p.Max)
	assert.Equal(t, 4, p.MaxRetries)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}
