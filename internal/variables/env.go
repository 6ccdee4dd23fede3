package variables

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envPrefix is the environment naming convention for scheduler variables.
const envPrefix = "AIRFLOW_VAR_"

// EnvStore resolves variables from dotenv files, then from the process environment.
// Names are tried verbatim first and then as AIRFLOW_VAR_<UPPER NAME>.
type EnvStore struct {
	values map[string]string
	getenv func(string) (string, bool)
}

// NewEnvStore reads dotenv files once.
// Params: dotenv file paths; later files override earlier ones.
// Returns: env-backed store or read error.
func NewEnvStore(files ...string) (*EnvStore, error) {
	values := make(map[string]string)
	for _, file := range files {
		parsed, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("read env file %q: %w", file, err)
		}
		for name, value := range parsed {
			values[name] = value
		}
	}
	return &EnvStore{values: values, getenv: os.LookupEnv}, nil
}

// Lookup returns one variable value.
func (s *EnvStore) Lookup(_ context.Context, name string) (string, error) {
	for _, key := range []string{name, envPrefix + strings.ToUpper(name)} {
		if value, ok := s.values[key]; ok {
			return value, nil
		}
	}
	if value, ok := s.getenv(envPrefix + strings.ToUpper(name)); ok {
		return value, nil
	}
	return "", notFound(name)
}

// Close is a no-op.
func (s *EnvStore) Close() error {
	return nil
}
