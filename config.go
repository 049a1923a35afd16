package main

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全域配置
type Config struct {
	Device    DeviceConfig    `json:"device" mapstructure:"device"`
	Decode    DecodeConfig    `json:"decode" mapstructure:"decode"`
	Simulator SimulatorConfig `json:"simulator" mapstructure:"simulator"`
	Network   NetworkConfig   `json:"network" mapstructure:"network"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// DeviceConfig 計數器連線配置
type DeviceConfig struct {
	Address        string        `json:"address" mapstructure:"address"`
	Port           int           `json:"port" mapstructure:"port"`
	DialTimeout    time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	ReconnectDelay time.Duration `json:"reconnect_delay" mapstructure:"reconnect_delay"`
	MaxReconnects  int           `json:"max_reconnects" mapstructure:"max_reconnects"`
}

// DecodeConfig 解碼輸出配置
type DecodeConfig struct {
	// DecimalSeparator 相位字串的小數分隔符，"." 或 ","
	DecimalSeparator string `json:"decimal_separator" mapstructure:"decimal_separator"`
	Debug            bool   `json:"debug" mapstructure:"debug"`
	OutputPath       string `json:"output_path" mapstructure:"output_path"`
}

// Separator 小數分隔符的位元組形式
func (d *DecodeConfig) Separator() byte {
	if d.DecimalSeparator == "," {
		return ','
	}
	return '.'
}

// SimulatorConfig 模擬器配置
type SimulatorConfig struct {
	Count          int                      `json:"count" mapstructure:"count"`
	Port           int                      `json:"port" mapstructure:"port"`
	Channels       int                      `json:"channels" mapstructure:"channels"`
	Mode           string                   `json:"mode" mapstructure:"mode"`
	IntervalMs     int                      `json:"interval_ms" mapstructure:"interval_ms"`
	FrequencyHz    float64                  `json:"frequency_hz" mapstructure:"frequency_hz"`
	DefaultProfile string                   `json:"default_profile" mapstructure:"default_profile"`
	Seed           int64                    `json:"seed" mapstructure:"seed"`
	Profiles       map[string]ProfileParams `json:"profiles" mapstructure:"profiles"`
}

// NetworkConfig 網路配置
type NetworkConfig struct {
	Interface string    `json:"interface" mapstructure:"interface"`
	IPRanges  []IPRange `json:"ip_ranges" mapstructure:"ip_ranges"`
}

// IPRange IP 範圍，以起迄位址或 CIDR 指定
type IPRange struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
	CIDR  string `json:"cidr" mapstructure:"cidr"`
}

// LoggingConfig 日誌配置
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// MetricsConfig 指標配置
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Port     int    `json:"port" mapstructure:"port"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Address:        "127.0.0.1",
			Port:           FXEDefaultPort,
			DialTimeout:    5 * time.Second,
			ReadTimeout:    30 * time.Second,
			ReconnectDelay: 2 * time.Second,
			MaxReconnects:  0, // 0 = 不限次數
		},
		Decode: DecodeConfig{
			DecimalSeparator: ".",
			Debug:            false,
			OutputPath:       "stdout",
		},
		Simulator: SimulatorConfig{
			Count:          1,
			Port:           FXEDefaultPort,
			Channels:       4,
			Mode:           "phase",
			IntervalMs:     1000,
			FrequencyHz:    10e6,
			DefaultProfile: "steady",
			Seed:           0, // 0 = 以時間播種
			Profiles: map[string]ProfileParams{
				"steady": {
					Enabled:  true,
					NoisePPB: 0.5,
				},
				"drift": {
					Enabled:         true,
					NoisePPB:        0.5,
					DriftPPBPerTick: 0.1,
				},
				"glitch": {
					Enabled:       true,
					NoisePPB:      0.5,
					ErrorRate:     0.02,
					MalformedRate: 0.01,
				},
				"chatter": {
					Enabled:      true,
					NoisePPB:     0.5,
					MessageEvery: 10,
				},
			},
		},
		Network: NetworkConfig{
			Interface: "eth0",
			IPRanges:  []IPRange{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
			Port:     9090,
		},
	}
}

// LoadConfig 載入配置檔
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/fxesim/")
		viper.AddConfigPath("$HOME/.fxesim/")
	}

	// 環境變數覆蓋
	viper.SetEnvPrefix("FXESIM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		// 配置檔不存在，使用預設值
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置驗證失敗: %w", err)
	}

	return cfg, nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("無效的設備埠號: %d", c.Device.Port)
	}

	if c.Decode.DecimalSeparator != "." && c.Decode.DecimalSeparator != "," {
		return fmt.Errorf("無效的小數分隔符: %q", c.Decode.DecimalSeparator)
	}

	if c.Simulator.Count < 1 {
		return fmt.Errorf("模擬器數量必須大於 0")
	}

	if c.Simulator.Count > 1024 {
		return fmt.Errorf("模擬器數量超過上限 (最大 1024)")
	}

	if c.Simulator.Channels < 1 || c.Simulator.Channels > MaxChannels {
		return fmt.Errorf("通道數必須介於 1 和 %d 之間", MaxChannels)
	}

	if c.Simulator.IntervalMs < 1 {
		return fmt.Errorf("測量間隔必須大於 0 ms")
	}

	if c.Simulator.FrequencyHz <= 0 {
		return fmt.Errorf("標稱頻率必須大於 0 Hz")
	}

	if ParseReportMode(c.Simulator.Mode) == ModeUnavailable {
		return fmt.Errorf("無效的測量模式: %s", c.Simulator.Mode)
	}

	for _, ipRange := range c.Network.IPRanges {
		if err := ipRange.Validate(); err != nil {
			return fmt.Errorf("IP 範圍驗證失敗: %w", err)
		}
	}

	return nil
}

// Validate 驗證 IP 範圍
func (r *IPRange) Validate() error {
	if r.CIDR != "" {
		if _, err := netip.ParsePrefix(r.CIDR); err != nil {
			return fmt.Errorf("無效的 CIDR: %s", r.CIDR)
		}
		return nil
	}

	if r.Start == "" || r.End == "" {
		return fmt.Errorf("必須指定 Start 和 End 或 CIDR")
	}

	start, err := netip.ParseAddr(r.Start)
	if err != nil {
		return fmt.Errorf("無效的起始 IP: %s", r.Start)
	}

	end, err := netip.ParseAddr(r.End)
	if err != nil {
		return fmt.Errorf("無效的結束 IP: %s", r.End)
	}

	if end.Less(start) {
		return fmt.Errorf("結束 IP 不可小於起始 IP: %s - %s", r.Start, r.End)
	}

	return nil
}

// SaveConfig 儲存配置到檔案
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失敗: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("寫入配置檔失敗: %w", err)
	}

	return nil
}

// ExpandIPRanges 展開所有 IP 範圍為位址列表
func (c *Config) ExpandIPRanges() ([]netip.Addr, error) {
	var addrs []netip.Addr

	for _, r := range c.Network.IPRanges {
		rangeAddrs, err := r.Expand()
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, rangeAddrs...)
	}

	return addrs, nil
}

// Expand 展開 IP 範圍
func (r *IPRange) Expand() ([]netip.Addr, error) {
	if r.CIDR != "" {
		return expandCIDR(r.CIDR)
	}
	return expandRange(r.Start, r.End)
}

func expandCIDR(cidr string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	prefix = prefix.Masked()

	var addrs []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	// 移除網路位址和廣播位址
	if len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}

	return addrs, nil
}

func expandRange(start, end string) ([]netip.Addr, error) {
	startAddr, err := netip.ParseAddr(start)
	if err != nil {
		return nil, fmt.Errorf("無效的 IP 範圍: %s - %s", start, end)
	}
	endAddr, err := netip.ParseAddr(end)
	if err != nil {
		return nil, fmt.Errorf("無效的 IP 範圍: %s - %s", start, end)
	}

	var addrs []netip.Addr
	for addr := startAddr; addr.IsValid() && addr.Compare(endAddr) <= 0; addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	return addrs, nil
}
