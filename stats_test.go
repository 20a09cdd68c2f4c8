package tuncap

import (
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStats(t *testing.T) {
	l := test.NewLogger()

	for _, tc := range []struct {
		name string
		raw  string
		err  string
	}{
		{"disabled", "stats:\n  type: none\n", ""},
		{"missing interval", "stats:\n  type: graphite\n", "stats.interval was an invalid duration: "},
		{"unknown type", "stats:\n  type: statsd\n  interval: 1s\n", "stats.type was not understood: statsd"},
		{"graphite no host", "stats:\n  type: graphite\n  interval: 1s\n", "stats.host can not be empty"},
		{"graphite", "stats:\n  type: graphite\n  interval: 1s\n  host: 127.0.0.1:2003\n", ""},
		{"prometheus no listen", "stats:\n  type: prometheus\n  interval: 1s\n", "stats.listen should not be empty"},
		{"prometheus no path", "stats:\n  type: prometheus\n  interval: 1s\n  listen: 127.0.0.1:0\n", "stats.path should not be empty"},
		{"prometheus", "stats:\n  type: prometheus\n  interval: 1s\n  listen: 127.0.0.1:0\n  path: /metrics\n", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := config.NewC(l)
			require.NoError(t, c.LoadString(tc.raw))

			start, err := startStats(l, c, metrics.NewRegistry(), "test", true)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}

			assert.NoError(t, err)
			// config test validates without returning a reporter
			assert.Nil(t, start)
		})
	}

	c := config.NewC(l)
	start, err := startStats(l, c, metrics.NewRegistry(), "test", false)
	assert.NoError(t, err)
	assert.Nil(t, start)
}
