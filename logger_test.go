package tuncap

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLogger(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)

	// defaults
	require.NoError(t, configLogger(l, c))
	assert.Equal(t, logrus.InfoLevel, l.Level)
	if assert.IsType(t, &logrus.TextFormatter{}, l.Formatter) {
		assert.False(t, l.Formatter.(*logrus.TextFormatter).FullTimestamp)
	}

	require.NoError(t, c.LoadString("logging:\n  level: DEBUG\n  format: json\n  disable_timestamp: true\n"))
	require.NoError(t, configLogger(l, c))
	assert.Equal(t, logrus.DebugLevel, l.Level)
	if assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter) {
		assert.True(t, l.Formatter.(*logrus.JSONFormatter).DisableTimestamp)
	}

	require.NoError(t, c.LoadString("logging:\n  timestamp_format: 2006\n"))
	require.NoError(t, configLogger(l, c))
	if assert.IsType(t, &logrus.TextFormatter{}, l.Formatter) {
		f := l.Formatter.(*logrus.TextFormatter)
		assert.True(t, f.FullTimestamp)
		assert.Equal(t, "2006", f.TimestampFormat)
	}

	require.NoError(t, c.LoadString("logging:\n  level: loud\n"))
	assert.ErrorContains(t, configLogger(l, c), "possible levels")

	require.NoError(t, c.LoadString("logging:\n  format: xml\n"))
	assert.EqualError(t, configLogger(l, c), "unknown log format `xml`. possible formats: [text json]")
}

func TestConfigLogger_ReloadWhileLogging(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				l.WithField("bytes", 4).Info("read 4 bytes: [45 00 00 14]")
			}
		}
	}()

	for i := 0; i < 50; i++ {
		format := "text"
		if i%2 == 1 {
			format = "json"
		}
		require.NoError(t, c.ReloadConfigString("logging:\n  format: "+format+"\n"))
		require.NoError(t, configLogger(l, c))
	}

	close(stop)
	<-done
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}
