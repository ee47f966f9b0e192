// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "CAPTP"
	configName = "captp"
	configType = "toml"

	keyListen   = "listen"
	keyConnect  = "connect"
	keyMetrics  = "metrics"
	keyTimeout  = "timeout"
	keyLogLevel = "log.level"
	keyLogFile  = "log.file"
)

// loadConfig layers flags over CAPTP_* environment variables over the
// config file over defaults.
func loadConfig(cfg *viper.Viper, path string) error {
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault(keyListen, "127.0.0.1:7600")
	cfg.SetDefault(keyConnect, "127.0.0.1:7600")
	cfg.SetDefault(keyMetrics, "")
	cfg.SetDefault(keyTimeout, "10s")
	cfg.SetDefault(keyLogLevel, "info")

	if path != "" {
		cfg.SetConfigFile(path)
	} else {
		cfg.SetConfigName(configName)
		cfg.SetConfigType(configType)
		cfg.AddConfigPath(".")
	}
	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

// newLogger fans records out to a text handler on w and, when file is set,
// a JSON handler appending to file.
func newLogger(w io.Writer, level, file string) (*slog.Logger, func() error, error) {
	lv := new(slog.LevelVar)
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lv}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	closeFn := func() error { return nil }
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closeFn = f.Close
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func loggerFromConfig(w io.Writer, cfg *viper.Viper) (*slog.Logger, func() error, error) {
	return newLogger(w, cfg.GetString(keyLogLevel), cfg.GetString(keyLogFile))
}
