package variables

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dounotify/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticStore(t *testing.T) {
	t.Parallel()

	source := map[string]string{"termos_licitacao": "pregão\nconcorrência"}
	store := NewStaticStore(source)
	source["termos_licitacao"] = "mutated"

	value, err := store.Lookup(context.Background(), "termos_licitacao")
	require.NoError(t, err)
	assert.Equal(t, "pregão\nconcorrência", value)

	_, err = store.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"missing"`)
	assert.NoError(t, store.Close())
}

func TestSetRequiresWritableStore(t *testing.T) {
	t.Parallel()

	_, err := Set(context.Background(), NewStaticStore(nil), "a", "b")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	store, err := New(context.Background(), config.VariablesConfig{
		Backend: config.VariablesBackendStatic,
		Static:  map[string]string{"a": "b"},
	})
	require.NoError(t, err)
	assert.IsType(t, &StaticStore{}, store)

	_, err = New(context.Background(), config.VariablesConfig{Backend: "vault"})
	assert.Error(t, err)
}

func TestEnvStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "base.env")
	second := filepath.Join(dir, "override.env")
	require.NoError(t, os.WriteFile(first, []byte("termos=\"a\\nb\"\nAIRFLOW_VAR_ORGAOS='[\"MEC\",\"MS\"]'\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("termos=portaria\n"), 0o644))

	store, err := NewEnvStore(first, second)
	require.NoError(t, err)
	store.getenv = func(key string) (string, bool) {
		if key == "AIRFLOW_VAR_FROM_PROCESS" {
			return "decreto", true
		}
		return "", false
	}

	tests := []struct {
		name string
		want string
	}{
		{name: "termos", want: "portaria"},
		{name: "orgaos", want: `["MEC","MS"]`},
		{name: "from_process", want: "decreto"},
	}
	for _, tt := range tests {
		value, err := store.Lookup(context.Background(), tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, value, tt.name)
	}

	_, err = store.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvStoreMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewEnvStore(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

type fakeRedis struct {
	values map[string]string
	err    error
	keys   []string
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStore(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{values: map[string]string{"airflow:variable:termos": "a\nb"}}
	store := &RedisStore{client: client, prefix: "airflow:variable:"}

	value, err := store.Lookup(context.Background(), "termos")
	require.NoError(t, err)
	assert.Equal(t, "a\nb", value)

	_, err = store.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"airflow:variable:termos", "airflow:variable:missing"}, client.keys)
}

func TestRedisStoreWrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	store := &RedisStore{client: &fakeRedis{err: boom}}

	_, err := store.Lookup(context.Background(), "termos")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}
