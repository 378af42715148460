package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/store"
)

// stubStore points openStore at st for the duration of the test and records
// the store configuration it was opened with.
func stubStore(t *testing.T, st store.Store) *config.StoreConfig {
	t.Helper()
	var seen config.StoreConfig
	openStore = func(_ context.Context, cfg config.StoreConfig, _ *zap.Logger) (store.Store, func(), error) {
		seen = cfg
		return st, func() {}, nil
	}
	t.Cleanup(func() {
		openStore = store.Open
		cfgFile = ""
	})
	return &seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Version(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "surfer version "+Version+"\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "surfer version "+Version+"\n", out)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	stubStore(t, mem)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "No active run.\n", out)

	require.NoError(t, mem.Create(ctx, schemas.RunRecord{WorkingContextID: "wc-7", UserIntent: "order socks"}))
	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"workingContextId": "wc-7"`)
	assert.Contains(t, out, `"userIntent": "order socks"`)
	assert.Contains(t, out, `"version": 1`)
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	stubStore(t, mem)

	out, err := execute(t, "abort")
	require.NoError(t, err)
	assert.Equal(t, "No active run.\n", out)

	require.NoError(t, mem.Create(ctx, schemas.RunRecord{UserIntent: "x"}))
	out, err = execute(t, "abort")
	require.NoError(t, err)
	assert.Equal(t, "Abort requested.\n", out)

	rec, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Abort)
}

func TestConfigPrecedence(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		seen := stubStore(t, store.NewMemory())
		_, err := execute(t, "status")
		require.NoError(t, err)
		assert.Equal(t, "default", seen.RunKey)
		assert.Equal(t, "memory", seen.Type)
	})

	t.Run("environment", func(t *testing.T) {
		seen := stubStore(t, store.NewMemory())
		t.Setenv("SURFER_STORE_RUN_KEY", "from-env")
		_, err := execute(t, "status")
		require.NoError(t, err)
		assert.Equal(t, "from-env", seen.RunKey)
	})

	t.Run("flag beats environment", func(t *testing.T) {
		seen := stubStore(t, store.NewMemory())
		t.Setenv("SURFER_STORE_RUN_KEY", "from-env")
		_, err := execute(t, "status", "--run-key", "from-flag")
		require.NoError(t, err)
		assert.Equal(t, "from-flag", seen.RunKey)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		stubStore(t, store.NewMemory())
		t.Setenv("SURFER_AGENT_MAX_STEPS", "0")
		_, err := execute(t, "status")
		assert.ErrorContains(t, err, "failed to load or validate config")
	})

	t.Run("missing config file", func(t *testing.T) {
		stubStore(t, store.NewMemory())
		_, err := execute(t, "status", "--config", "does-not-exist.yaml")
		assert.ErrorContains(t, err, "error reading config file")
	})
}

func TestRun_RequiresIntent(t *testing.T) {
	stubStore(t, store.NewMemory())
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestResume_NoActiveRun(t *testing.T) {
	stubStore(t, store.NewMemory())
	_, err := execute(t, "resume")
	assert.ErrorContains(t, err, `no active run for key "default"`)
}
