package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		level   zapcore.Level
	}{
		{name: "production", cfg: DefaultConfig(), level: zapcore.InfoLevel},
		{name: "development", cfg: DevelopmentConfig(), level: zapcore.DebugLevel},
		{name: "warn without outputs", cfg: Config{Level: "warn"}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestComponent(t *testing.T) {
	var nilLogger *Logger
	assert.NotNil(t, nilLogger.Component("locator"))
	assert.NotNil(t, Nop().Component("binder"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
