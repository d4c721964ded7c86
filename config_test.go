package fedcoord_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runFile = `
[manager]
url = "http://manager:7070"
tls_verification = true

[run]
rounds = 5
fit_fraction = 0.5
min_fit_clients = 3
round_timeout = "90s"
selection_policy = "round_robin"
local_epochs = 2
batch_size = 64
learning_rate = 0.05
`

func baseConfig() manager.Config {
	return manager.Config{
		Rounds:              3,
		FitFraction:         1,
		EvaluateFraction:    1,
		MinFitClients:       2,
		MinEvaluateClients:  2,
		MinAvailableClients: 2,
		RoundTimeout:        time.Minute,
		RoundRetries:        2,
		RetryInterval:       time.Second,
		EvictionThreshold:   3,
		SelectionPolicy:     "random",
		Seed:                42,
		LocalEpochs:         1,
		BatchSize:           32,
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedcoord.toml")
	require.NoError(t, os.WriteFile(path, []byte(runFile), 0o644))

	cfg, err := fedcoord.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://manager:7070", cfg.Manager.URL)
	assert.True(t, cfg.Manager.TLSVerification)
	assert.Equal(t, uint64(5), cfg.Run.Rounds)
	assert.Equal(t, "90s", cfg.Run.RoundTimeout)

	_, err = fedcoord.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[run\nrounds = "), 0o644))
	_, err = fedcoord.LoadConfig(bad)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := fedcoord.Config{
		Manager: fedcoord.ManagerConfig{URL: fedcoord.DefManagerURL},
		Run:     fedcoord.RunConfig{Rounds: 4, LocalEpochs: 1, BatchSize: 16, SelectionPolicy: "random"},
	}
	require.NoError(t, cfg.Save(path))

	got, err := fedcoord.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)
}

func TestApply(t *testing.T) {
	cases := []struct {
		desc string
		run  fedcoord.RunConfig
		want func(c manager.Config) manager.Config
		err  bool
	}{
		{
			desc: "empty run file keeps everything",
			want: func(c manager.Config) manager.Config { return c },
		},
		{
			desc: "overrides set fields",
			run: fedcoord.RunConfig{
				Rounds:          5,
				FitFraction:     0.5,
				MinFitClients:   3,
				RoundTimeout:    "90s",
				SelectionPolicy: "round_robin",
				LocalEpochs:     2,
			},
			want: func(c manager.Config) manager.Config {
				c.Rounds = 5
				c.FitFraction = 0.5
				c.MinFitClients = 3
				c.RoundTimeout = 90 * time.Second
				c.SelectionPolicy = "round_robin"
				c.LocalEpochs = 2

				return c
			},
		},
		{
			desc: "invalid timeout",
			run:  fedcoord.RunConfig{RoundTimeout: "soon"},
			err:  true,
		},
		{
			desc: "invalid policy",
			run:  fedcoord.RunConfig{SelectionPolicy: "fastest"},
			err:  true,
		},
		{
			desc: "invalid schedule",
			run:  fedcoord.RunConfig{Schedule: "every so often"},
			err:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.run.Apply(baseConfig())
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want(baseConfig()), got)
		})
	}
}

func TestRequest(t *testing.T) {
	req := fedcoord.RunConfig{Rounds: 2, LocalEpochs: 3, BatchSize: 8, LearningRate: 0.01}.Request()
	assert.Equal(t, manager.RunRequest{
		Rounds:   2,
		Fit:      fl.RoundConfig{Epochs: 3, BatchSize: 8, Hyperparams: map[string]any{"learning_rate": 0.01}},
		Evaluate: fl.RoundConfig{BatchSize: 8},
	}, req)

	req = fedcoord.RunConfig{Rounds: 1}.Request()
	assert.Nil(t, req.Fit.Hyperparams)
}
