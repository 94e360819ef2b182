package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range [...]struct {
		in   string
		want logiface.Level
	}{
		{`info`, logiface.LevelInformational},
		{`INFO`, logiface.LevelInformational},
		{` debug `, logiface.LevelDebug},
		{`trace`, logiface.LevelTrace},
		{`err`, logiface.LevelError},
		{`error`, logiface.LevelError},
		{`warning`, logiface.LevelWarning},
		{`warn`, logiface.LevelWarning},
		{`crit`, logiface.LevelCritical},
		{`disabled`, logiface.LevelDisabled},
		{`off`, logiface.LevelDisabled},
	} {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := ParseLevel(`loud`)
	assert.ErrorContains(t, err, `unknown level "loud"`)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Writer:   &buf,
		Level:    logiface.LevelInformational,
		OmitTime: true,
	})
	logger.Info().Str(`thread`, `main#1`).Log(`hello`)
	logger.Debug().Log(`suppressed`)
	assert.Equal(t, `{"lvl":"info","thread":"main#1","msg":"hello"}`+"\n", buf.String())
}

func TestNew_disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Level: logiface.LevelDisabled})
	logger.Emerg().Log(`nothing`)
	assert.Empty(t, buf.String())
}

func TestNew_rateLimits(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Writer:     &buf,
		Level:      logiface.LevelInformational,
		RateLimits: map[time.Duration]int{time.Hour: 1},
		OmitTime:   true,
	})
	for range 3 {
		logger.Info().Limit().Log(`limited`)
	}
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"msg":"limited"`)))
}

func TestParseRateLimit(t *testing.T) {
	limits, err := ParseRateLimit(``)
	require.NoError(t, err)
	assert.Nil(t, limits)

	limits, err = ParseRateLimit(`1/1s, 10/1m`)
	require.NoError(t, err)
	assert.Equal(t, map[time.Duration]int{time.Second: 1, time.Minute: 10}, limits)

	for _, in := range [...]string{`5`, `x/1s`, `0/1s`, `1/forever`, `1/1s,2/1s`, `10/1s,5/1m`} {
		_, err := ParseRateLimit(in)
		assert.Error(t, err, in)
	}
}
