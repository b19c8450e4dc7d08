package config

import (
	"errors"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		TTLSeconds int    `toml:"ttl_seconds"`
	} `toml:"redis"`

	Monitoring struct {
		HealthCheckIntervalSec int  `toml:"health_check_interval_sec"`
		StatusLogIntervalSec   int  `toml:"status_log_interval_sec"`
		AutoRestart            bool `toml:"auto_restart"`
		RestartDelaySec        int  `toml:"restart_delay_sec"`
		MaxRestartAttempts     int  `toml:"max_restart_attempts"` // 0 = unlimited
		UnhealthyGraceSec      int  `toml:"unhealthy_grace_sec"`
		StartStaggerMs         int  `toml:"start_stagger_ms"`
		ShutdownTimeoutSec     int  `toml:"shutdown_timeout_sec"`
	} `toml:"monitoring"`

	BybitSpot struct {
		Enabled               bool     `toml:"enabled"`
		WsURL                 string   `toml:"ws_url"`
		Symbols               []string `toml:"symbols"`
		KeyPrefix             string   `toml:"key_prefix"`
		ReconnectDelaySec     int      `toml:"reconnect_delay_sec"`
		WatchdogPeriodSec     int      `toml:"watchdog_period_sec"`
		DataTimeoutSec        int      `toml:"data_timeout_sec"`
		StalenessThresholdSec int      `toml:"staleness_threshold_sec"`
	} `toml:"bybit_spot"`

	CoindcxLtp struct {
		Enabled               bool     `toml:"enabled"`
		WsURL                 string   `toml:"ws_url"`
		Symbols               []string `toml:"symbols"`
		KeyPrefix             string   `toml:"key_prefix"`
		ReconnectDelaySec     int      `toml:"reconnect_delay_sec"`
		WatchdogPeriodSec     int      `toml:"watchdog_period_sec"`
		DataTimeoutSec        int      `toml:"data_timeout_sec"`
		StalenessThresholdSec int      `toml:"staleness_threshold_sec"`
	} `toml:"coindcx_ltp"`

	CoindcxFunding struct {
		Enabled               bool     `toml:"enabled"`
		URL                   string   `toml:"url"`
		Symbols               []string `toml:"symbols"`
		KeyPrefix             string   `toml:"key_prefix"`
		FetchIntervalSec      int      `toml:"fetch_interval_sec"`
		RetryAttempts         int      `toml:"retry_attempts"`
		APITimeoutSec         int      `toml:"api_timeout_sec"`
		StalenessThresholdSec int      `toml:"staleness_threshold_sec"`
	} `toml:"coindcx_funding"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.TTLSeconds <= 0 {
		cfg.Redis.TTLSeconds = 3600
	}

	m := &cfg.Monitoring
	if m.HealthCheckIntervalSec <= 0 {
		m.HealthCheckIntervalSec = 30
	}
	if m.StatusLogIntervalSec <= 0 {
		m.StatusLogIntervalSec = 60
	}
	if m.RestartDelaySec <= 0 {
		m.RestartDelaySec = 10
	}
	if m.UnhealthyGraceSec <= 0 {
		m.UnhealthyGraceSec = 60
	}
	if m.StartStaggerMs <= 0 {
		m.StartStaggerMs = 500
	}
	if m.ShutdownTimeoutSec <= 0 {
		m.ShutdownTimeoutSec = 15
	}

	b := &cfg.BybitSpot
	if b.WsURL == "" {
		b.WsURL = "wss://stream.bybit.com/v5/public/spot"
	}
	if b.KeyPrefix == "" {
		b.KeyPrefix = "bybit_spot"
	}
	if b.ReconnectDelaySec <= 0 {
		b.ReconnectDelaySec = 5
	}
	if b.WatchdogPeriodSec <= 0 {
		b.WatchdogPeriodSec = 30
	}
	if b.DataTimeoutSec <= 0 {
		b.DataTimeoutSec = 60
	}
	if b.StalenessThresholdSec <= 0 {
		b.StalenessThresholdSec = 60
	}

	l := &cfg.CoindcxLtp
	if l.WsURL == "" {
		l.WsURL = "wss://stream.coindcx.com"
	}
	if l.KeyPrefix == "" {
		l.KeyPrefix = "coindcx_futures"
	}
	if l.ReconnectDelaySec <= 0 {
		l.ReconnectDelaySec = 5
	}
	if l.WatchdogPeriodSec <= 0 {
		l.WatchdogPeriodSec = 10
	}
	if l.DataTimeoutSec <= 0 {
		l.DataTimeoutSec = 60
	}
	if l.StalenessThresholdSec <= 0 {
		l.StalenessThresholdSec = 60
	}

	f := &cfg.CoindcxFunding
	if f.URL == "" {
		f.URL = "https://api.coindcx.com/exchange/v1/derivatives/get_funding_rate"
	}
	if f.KeyPrefix == "" {
		f.KeyPrefix = "coindcx_futures"
	}
	if f.FetchIntervalSec <= 0 {
		f.FetchIntervalSec = 300
	}
	if f.RetryAttempts <= 0 {
		f.RetryAttempts = 3
	}
	if f.APITimeoutSec <= 0 {
		f.APITimeoutSec = 10
	}
	if f.StalenessThresholdSec <= 0 {
		f.StalenessThresholdSec = 2 * f.FetchIntervalSec
	}
}

func validate(cfg *Config) error {
	cfg.BybitSpot.Symbols = normalizeSymbols(cfg.BybitSpot.Symbols)
	cfg.CoindcxLtp.Symbols = normalizeSymbols(cfg.CoindcxLtp.Symbols)
	cfg.CoindcxFunding.Symbols = normalizeSymbols(cfg.CoindcxFunding.Symbols)

	if !cfg.BybitSpot.Enabled && !cfg.CoindcxLtp.Enabled && !cfg.CoindcxFunding.Enabled {
		return errors.New("no workers enabled")
	}
	if cfg.BybitSpot.Enabled && len(cfg.BybitSpot.Symbols) == 0 {
		return errors.New("bybit_spot.symbols is empty")
	}
	if cfg.CoindcxLtp.Enabled && len(cfg.CoindcxLtp.Symbols) == 0 {
		return errors.New("coindcx_ltp.symbols is empty")
	}
	if cfg.CoindcxFunding.Enabled && len(cfg.CoindcxFunding.Symbols) == 0 {
		return errors.New("coindcx_funding.symbols is empty")
	}
	if cfg.BybitSpot.Enabled && strings.TrimSpace(cfg.BybitSpot.WsURL) == "" {
		return errors.New("bybit_spot.ws_url empty but enabled")
	}
	if cfg.CoindcxLtp.Enabled && strings.TrimSpace(cfg.CoindcxLtp.WsURL) == "" {
		return errors.New("coindcx_ltp.ws_url empty but enabled")
	}
	if cfg.CoindcxFunding.Enabled && strings.TrimSpace(cfg.CoindcxFunding.URL) == "" {
		return errors.New("coindcx_funding.url empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
