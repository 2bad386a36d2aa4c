package config

// Config is the whole application configuration.
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
// Files may be JSON or YAML; both are decoded strictly (unknown fields
// are rejected).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Gateway   GatewayConfig   `json:"gateway,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRatePerSec throttles outbound deliveries (Telegram flood limits).
	// 0 keeps the default of 20/s.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Console is a pointer so "omitted" (default true) is distinguishable
	// from an explicit false.
	Console *bool         `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// Interval is the polling tick. Keep it well under one minute; the
	// matcher works at minute resolution. Default "5s".
	Interval string `json:"interval,omitempty"`
	// Timezone is an IANA name, e.g. "Asia/Shanghai". Empty means local.
	Timezone string `json:"timezone,omitempty"`
}

type DispatchConfig struct {
	Timeout   string `json:"timeout,omitempty"`    // bounded wait per fire; default "60s"
	RetryMax  int    `json:"retry_max,omitempty"`  // extra delivery attempts; default 2
	RetryBase string `json:"retry_base,omitempty"` // backoff unit; default "3s"
}

type GatewayConfig struct {
	DebounceWindow string `json:"debounce_window,omitempty"` // default "100ms"
}

// ConsoleEnabled resolves the Console pointer's default.
func (l LoggingConfig) ConsoleEnabled() bool {
	if l.Console == nil {
		return true
	}
	return *l.Console
}
