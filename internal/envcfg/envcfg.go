// Package envcfg resolves directory defaults shared by the arena tools from
// the process environment and an optional .env file in the working directory.
package envcfg

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvConfigs = "ARENA_CONFIGS"
	EnvData    = "ARENA_DATA"
)

type Env struct {
	ConfigDir string
	DataDir   string
}

// Load reads .env (a missing file is fine) and returns the resolved
// directories. Variables already set in the environment win over .env.
func Load() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, err
	}
	return Env{
		ConfigDir: Get(EnvConfigs, "./configs"),
		DataDir:   Get(EnvData, "./data"),
	}, nil
}

func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
