package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "PATENTVAE_"

// EnvKey returns the environment variable that overrides a params key,
// e.g. batch_size -> PATENTVAE_BATCH_SIZE.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

// loadDotEnv loads .env from the config file directory and the working
// directory. Variables already present in the environment win.
func (m *Manager) loadDotEnv() error {
	candidates := []string{".env"}
	if m.fromFile {
		if dir := filepath.Dir(m.configPath); dir != "." {
			candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if DebugLog != nil {
			DebugLog("loading environment from %s", path)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(p Params, lookup func(string) (string, bool)) (Params, error) {
	var o Overrides

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvKey(key)); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvKey(key))
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey(key), err)
		}
		if n <= 0 {
			return fmt.Errorf("%s: must be > 0 (got %d)", EnvKey(key), n)
		}
		*dst = n
		return nil
	}
	prob := func(key string, dst **float64) error {
		v, ok := lookup(EnvKey(key))
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey(key), err)
		}
		*dst = &f
		return nil
	}
	network := func(key string, dst *NetworkType) error {
		v, ok := lookup(EnvKey(key))
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		t, err := ParseNetworkType(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey(key), err)
		}
		*dst = t
		return nil
	}

	if err := network("enc_type", &o.EncType); err != nil {
		return p, err
	}
	if err := network("dec_type", &o.DecType); err != nil {
		return p, err
	}
	for key, dst := range map[string]*int{
		"nz":          &o.NZ,
		"ni":          &o.NI,
		"enc_nh":      &o.EncNH,
		"dec_nh":      &o.DecNH,
		"batch_size":  &o.BatchSize,
		"epochs":      &o.Epochs,
		"test_nepoch": &o.TestNEpoch,
	} {
		if err := num(key, dst); err != nil {
			return p, err
		}
	}
	if err := prob("dec_dropout_in", &o.DecDropoutIn); err != nil {
		return p, err
	}
	if err := prob("dec_dropout_out", &o.DecDropoutOut); err != nil {
		return p, err
	}
	str("train_data", &o.TrainData)
	str("val_data", &o.ValData)
	str("test_data", &o.TestData)

	return p.ApplyOverrides(o), nil
}
