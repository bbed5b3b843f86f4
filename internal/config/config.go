package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/features"
	"github.com/life2you_mini/poolcore/internal/indicators"
	"github.com/life2you_mini/poolcore/internal/ingest"
	"github.com/life2you_mini/poolcore/internal/logger"
	"github.com/life2you_mini/poolcore/internal/optimizer"
	"github.com/life2you_mini/poolcore/internal/orchestrator"
	"github.com/life2you_mini/poolcore/internal/risk"
)

// EnvPrefix 环境变量前缀，如 POOLCORE_REDIS_HOST
const EnvPrefix = "POOLCORE"

// Config 应用配置结构
type Config struct {
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
	Detectors    DetectorsConfig    `mapstructure:"detectors"`
	Severity     SeverityConfig     `mapstructure:"severity"`
	Regime       RegimeConfig       `mapstructure:"regime"`
	Optimizer    OptimizerConfig    `mapstructure:"optimizer"`
	Features     FeaturesConfig     `mapstructure:"features"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Server       ServerConfig       `mapstructure:"server"`
	System       SystemConfig       `mapstructure:"system"`
}

// AnalyticsConfig 风险指标与特征的市场参数
type AnalyticsConfig struct {
	RiskFreeRate                float64 `mapstructure:"risk_free_rate"`
	MarketReturn                float64 `mapstructure:"market_return"`
	VaRConfidence               float64 `mapstructure:"var_confidence"`
	PeriodsPerYear              int     `mapstructure:"periods_per_year"`
	SyntheticBenchmarkReturn    float64 `mapstructure:"synthetic_benchmark_return"`
	MaxHistoryLength            int     `mapstructure:"max_history_length"`
	PlatformTVL                 float64 `mapstructure:"platform_tvl"`
	MarketEfficiencyCoefficient float64 `mapstructure:"market_efficiency_coefficient"`
}

// DetectorsConfig 异常检测窗口与阈值，按指标名配置
type DetectorsConfig struct {
	WindowSizes      map[string]int     `mapstructure:"window_sizes"`
	Thresholds       map[string]float64 `mapstructure:"thresholds"`
	HistorySize      int                `mapstructure:"history_size"`
	VolatilityWindow int                `mapstructure:"volatility_window"`
}

// SeverityConfig 告警级别阈值 (bps)
type SeverityConfig struct {
	WarningVolatilityBps int64 `mapstructure:"warning_volatility_bps"`
	CriticalChangeBps    int64 `mapstructure:"critical_change_bps"`
	EmergencyChangeBps   int64 `mapstructure:"emergency_change_bps"`
}

// RegimeConfig 波动率分档阈值
type RegimeConfig struct {
	Low    float64 `mapstructure:"low"`
	Medium float64 `mapstructure:"medium"`
	High   float64 `mapstructure:"high"`
}

// OptimizerConfig 优化器配置
type OptimizerConfig struct {
	MaxStrategies          int     `mapstructure:"max_strategies"`
	MinWeightBps           int64   `mapstructure:"min_weight_bps"`
	MaxWeightBps           int64   `mapstructure:"max_weight_bps"`
	RebalanceDriftBps      int64   `mapstructure:"rebalance_drift_bps"`
	EntryMomentumThreshold float64 `mapstructure:"entry_momentum_threshold"`
	ExitMomentumThreshold  float64 `mapstructure:"exit_momentum_threshold"`
	HighILRiskScore        int     `mapstructure:"high_il_risk_score"`
}

// FeaturesConfig 特征词表与导出配置
type FeaturesConfig struct {
	VocabularyVersion string   `mapstructure:"vocabulary_version"`
	StrictVocabulary  bool     `mapstructure:"strict_vocabulary"`
	Platforms         []string `mapstructure:"platforms"` // 为空时使用内置词表
	Chains            []string `mapstructure:"chains"`    // 为空时使用内置词表
	ExportDir         string   `mapstructure:"export_dir"`
}

// OrchestratorConfig 编排并发与阶段时限
type OrchestratorConfig struct {
	Workers          int           `mapstructure:"workers"`
	StatsTimeout     time.Duration `mapstructure:"stats_timeout"`
	FeaturesTimeout  time.Duration `mapstructure:"features_timeout"`
	OptimizerTimeout time.Duration `mapstructure:"optimizer_timeout"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ServerConfig HTTP 指标与健康检查服务
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogDir           string        `mapstructure:"log_dir"`
	LogMaxSizeMB     int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups    int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays    int           `mapstructure:"log_max_age_days"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analytics.risk_free_rate", 0.02)
	v.SetDefault("analytics.market_return", 0.08)
	v.SetDefault("analytics.var_confidence", 0.95)
	v.SetDefault("analytics.periods_per_year", 365)
	v.SetDefault("analytics.synthetic_benchmark_return", 0.0001)
	v.SetDefault("analytics.max_history_length", ingest.DefaultMaxHistoryLength)
	v.SetDefault("analytics.platform_tvl", 1e9)
	v.SetDefault("analytics.market_efficiency_coefficient", 1.0)

	v.SetDefault("detectors.window_sizes", map[string]int{alert.MetricTVL: 24, alert.MetricAPY: 168, alert.MetricGas: 100})
	v.SetDefault("detectors.thresholds", map[string]float64{alert.MetricTVL: 3.0, alert.MetricAPY: 2.5, alert.MetricGas: 4.0})
	v.SetDefault("detectors.history_size", 24)
	v.SetDefault("detectors.volatility_window", 12)

	v.SetDefault("severity.warning_volatility_bps", 500)
	v.SetDefault("severity.critical_change_bps", 1000)
	v.SetDefault("severity.emergency_change_bps", 2000)

	v.SetDefault("regime.low", 0.01)
	v.SetDefault("regime.medium", 0.03)
	v.SetDefault("regime.high", 0.06)

	v.SetDefault("optimizer.max_strategies", 10)
	v.SetDefault("optimizer.min_weight_bps", 1000)
	v.SetDefault("optimizer.max_weight_bps", 4000)
	v.SetDefault("optimizer.rebalance_drift_bps", 1000)
	v.SetDefault("optimizer.entry_momentum_threshold", 0.05)
	v.SetDefault("optimizer.exit_momentum_threshold", 0.05)
	v.SetDefault("optimizer.high_il_risk_score", 80)

	v.SetDefault("features.vocabulary_version", features.DefaultVocabularyVersion)
	v.SetDefault("features.strict_vocabulary", false)
	v.SetDefault("features.platforms", []string{})
	v.SetDefault("features.chains", []string{})
	v.SetDefault("features.export_dir", "")

	v.SetDefault("orchestrator.workers", 0)
	v.SetDefault("orchestrator.stats_timeout", orchestrator.DefaultStatsTimeout)
	v.SetDefault("orchestrator.features_timeout", orchestrator.DefaultFeaturesTimeout)
	v.SetDefault("orchestrator.optimizer_timeout", orchestrator.DefaultOptimizerTimeout)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "poolcore:")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen_addr", ":9464")

	v.SetDefault("system.log_level", "info")
	v.SetDefault("system.log_dir", "")
	v.SetDefault("system.log_max_size_mb", 100)
	v.SetDefault("system.log_max_backups", 5)
	v.SetDefault("system.log_max_age_days", 30)
	v.SetDefault("system.snapshot_interval", 5*time.Minute)
}

// LoadConfig 加载配置：默认值 < 配置文件 < POOLCORE_ 环境变量
// filePath 为空时只使用默认值与环境变量
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// validateConfig 验证配置有效性，任何问题都是 Misconfiguration
func validateConfig(config *Config) error {
	fail := func(format string, args ...interface{}) error {
		return errs.New(errs.Misconfiguration, "config.validate", format, args...)
	}

	a := config.Analytics
	if a.VaRConfidence <= 0 || a.VaRConfidence >= 1 {
		return fail("VaR 置信度必须在 (0,1) 之间: %v", a.VaRConfidence)
	}
	if a.PeriodsPerYear <= 0 {
		return fail("每年期数必须大于0")
	}
	if a.MaxHistoryLength <= 0 {
		return fail("最大历史长度必须大于0")
	}
	if a.PlatformTVL <= 0 {
		return fail("平台 TVL 必须大于0")
	}
	if a.MarketEfficiencyCoefficient < 0 {
		return fail("市场效率系数不能为负")
	}

	r := config.Regime
	if !(r.Low > 0 && r.Low < r.Medium && r.Medium < r.High) {
		return fail("波动率分档必须满足 0 < low < medium < high: %v/%v/%v", r.Low, r.Medium, r.High)
	}

	o := config.Optimizer
	if o.MaxStrategies < 1 {
		return fail("最大策略数必须大于0")
	}
	if o.MinWeightBps < 0 || o.MinWeightBps > o.MaxWeightBps {
		return fail("策略权重下限 %d 不能大于上限 %d", o.MinWeightBps, o.MaxWeightBps)
	}
	if o.MaxWeightBps > optimizer.TotalBudgetBps {
		return fail("策略权重上限不能超过 %d", optimizer.TotalBudgetBps)
	}
	if o.RebalanceDriftBps <= 0 {
		return fail("再平衡漂移阈值必须大于0")
	}
	if o.EntryMomentumThreshold <= 0 || o.ExitMomentumThreshold <= 0 {
		return fail("动量阈值必须大于0")
	}

	if config.Features.StrictVocabulary && config.Features.VocabularyVersion == "" {
		return fail("严格模式下词表版本不能为空")
	}

	oc := config.Orchestrator
	if oc.StatsTimeout <= 0 || oc.FeaturesTimeout <= 0 || oc.OptimizerTimeout <= 0 {
		return fail("阶段时限必须大于0")
	}

	if config.Redis.Enabled && (config.Redis.Port <= 0 || config.Redis.Port > 65535) {
		return fail("无效的Redis端口: %d", config.Redis.Port)
	}
	if config.Server.Enabled && config.Server.ListenAddr == "" {
		return fail("HTTP 监听地址不能为空")
	}

	// 检测器与级别阈值交给告警引擎自己的校验
	return config.AlertConfig().Validate()
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("默认配置无法解析: %v", err))
	}
	return &config
}

// SaveConfigToFile 将配置保存为 YAML 文件，不写入 Redis 密码
func SaveConfigToFile(config *Config, filePath string) error {
	configMap := map[string]interface{}{
		"analytics": map[string]interface{}{
			"risk_free_rate":                config.Analytics.RiskFreeRate,
			"market_return":                 config.Analytics.MarketReturn,
			"var_confidence":                config.Analytics.VaRConfidence,
			"periods_per_year":              config.Analytics.PeriodsPerYear,
			"synthetic_benchmark_return":    config.Analytics.SyntheticBenchmarkReturn,
			"max_history_length":            config.Analytics.MaxHistoryLength,
			"platform_tvl":                  config.Analytics.PlatformTVL,
			"market_efficiency_coefficient": config.Analytics.MarketEfficiencyCoefficient,
		},
		"detectors": map[string]interface{}{
			"window_sizes":      config.Detectors.WindowSizes,
			"thresholds":        config.Detectors.Thresholds,
			"history_size":      config.Detectors.HistorySize,
			"volatility_window": config.Detectors.VolatilityWindow,
		},
		"severity": map[string]interface{}{
			"warning_volatility_bps": config.Severity.WarningVolatilityBps,
			"critical_change_bps":    config.Severity.CriticalChangeBps,
			"emergency_change_bps":   config.Severity.EmergencyChangeBps,
		},
		"regime": map[string]interface{}{
			"low":    config.Regime.Low,
			"medium": config.Regime.Medium,
			"high":   config.Regime.High,
		},
		"optimizer": map[string]interface{}{
			"max_strategies":           config.Optimizer.MaxStrategies,
			"min_weight_bps":           config.Optimizer.MinWeightBps,
			"max_weight_bps":           config.Optimizer.MaxWeightBps,
			"rebalance_drift_bps":      config.Optimizer.RebalanceDriftBps,
			"entry_momentum_threshold": config.Optimizer.EntryMomentumThreshold,
			"exit_momentum_threshold":  config.Optimizer.ExitMomentumThreshold,
			"high_il_risk_score":       config.Optimizer.HighILRiskScore,
		},
		"features": map[string]interface{}{
			"vocabulary_version": config.Features.VocabularyVersion,
			"strict_vocabulary":  config.Features.StrictVocabulary,
			"platforms":          config.Features.Platforms,
			"chains":             config.Features.Chains,
			"export_dir":         config.Features.ExportDir,
		},
		"orchestrator": map[string]interface{}{
			"workers":           config.Orchestrator.Workers,
			"stats_timeout":     config.Orchestrator.StatsTimeout.String(),
			"features_timeout":  config.Orchestrator.FeaturesTimeout.String(),
			"optimizer_timeout": config.Orchestrator.OptimizerTimeout.String(),
		},
		"redis": map[string]interface{}{
			"enabled":    config.Redis.Enabled,
			"host":       config.Redis.Host,
			"port":       config.Redis.Port,
			"db":         config.Redis.DB,
			"key_prefix": config.Redis.KeyPrefix,
		},
		"server": map[string]interface{}{
			"enabled":     config.Server.Enabled,
			"listen_addr": config.Server.ListenAddr,
		},
		"system": map[string]interface{}{
			"log_level":         config.System.LogLevel,
			"log_dir":           config.System.LogDir,
			"log_max_size_mb":   config.System.LogMaxSizeMB,
			"log_max_backups":   config.System.LogMaxBackups,
			"log_max_age_days":  config.System.LogMaxAgeDays,
			"snapshot_interval": config.System.SnapshotInterval.String(),
		},
	}

	data, err := yaml.Marshal(configMap)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// RiskParams 风险指标参数
func (c *Config) RiskParams() risk.Params {
	return risk.Params{
		RiskFreeRate:             dec(c.Analytics.RiskFreeRate),
		MarketReturn:             dec(c.Analytics.MarketReturn),
		VaRConfidence:            dec(c.Analytics.VaRConfidence),
		SyntheticBenchmarkReturn: dec(c.Analytics.SyntheticBenchmarkReturn),
		PeriodsPerYear:           c.Analytics.PeriodsPerYear,
	}
}

func (c *Config) regimeCutoffs() indicators.RegimeCutoffs {
	return indicators.RegimeCutoffs{
		Low:    dec(c.Regime.Low),
		Medium: dec(c.Regime.Medium),
		High:   dec(c.Regime.High),
	}
}

// IndicatorsConfig 技术指标参数，周期使用内置默认值
func (c *Config) IndicatorsConfig() indicators.Config {
	cfg := indicators.DefaultConfig()
	cfg.Regime = c.regimeCutoffs()
	return cfg
}

// OptimizerConfig 优化器参数
func (c *Config) OptimizerConfig() optimizer.Config {
	cfg := optimizer.DefaultConfig()
	cfg.MaxStrategies = c.Optimizer.MaxStrategies
	cfg.MinWeightBps = c.Optimizer.MinWeightBps
	cfg.MaxWeightBps = c.Optimizer.MaxWeightBps
	cfg.RebalanceDriftBps = c.Optimizer.RebalanceDriftBps
	cfg.EntryMomentumThreshold = dec(c.Optimizer.EntryMomentumThreshold)
	cfg.ExitMomentumThreshold = dec(c.Optimizer.ExitMomentumThreshold)
	cfg.HighILRiskScore = c.Optimizer.HighILRiskScore
	cfg.RiskFreeRate = dec(c.Analytics.RiskFreeRate)
	cfg.PeriodsPerYear = c.Analytics.PeriodsPerYear
	return cfg
}

// AlertConfig 告警引擎参数，窗口与阈值都配置了的指标才会注册
func (c *Config) AlertConfig() alert.Config {
	metrics := make(map[string]alert.MetricConfig, len(c.Detectors.WindowSizes))
	for name, window := range c.Detectors.WindowSizes {
		threshold, ok := c.Detectors.Thresholds[name]
		if !ok {
			continue
		}
		metrics[name] = alert.MetricConfig{Window: window, Threshold: dec(threshold)}
	}
	return alert.Config{
		Metrics:              metrics,
		HistorySize:          c.Detectors.HistorySize,
		VolatilityWindow:     c.Detectors.VolatilityWindow,
		WarningVolatilityBps: decimal.NewFromInt(c.Severity.WarningVolatilityBps),
		CriticalChangeBps:    decimal.NewFromInt(c.Severity.CriticalChangeBps),
		EmergencyChangeBps:   decimal.NewFromInt(c.Severity.EmergencyChangeBps),
	}
}

// FeatureOptions 特征合成参数
func (c *Config) FeatureOptions() features.Options {
	return features.Options{
		PlatformTVL:           dec(c.Analytics.PlatformTVL),
		EfficiencyCoefficient: dec(c.Analytics.MarketEfficiencyCoefficient),
		Regime:                c.regimeCutoffs(),
	}
}

// Vocabulary 特征词表，未配置的列表使用内置值
func (c *Config) Vocabulary() *features.Vocabulary {
	v := features.DefaultVocabulary()
	v.Version = c.Features.VocabularyVersion
	if len(c.Features.Platforms) > 0 {
		v.Platforms = append([]string(nil), c.Features.Platforms...)
	}
	if len(c.Features.Chains) > 0 {
		v.Chains = append([]string(nil), c.Features.Chains...)
	}
	return v
}

// OrchestratorConfig 编排器参数
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Ingest: ingest.Options{
			MaxHistoryLength: c.Analytics.MaxHistoryLength,
			WeightTolerance:  ingest.DefaultWeightTolerance,
		},
		Risk:             c.RiskParams(),
		RiskLevels:       risk.DefaultLevelThresholds,
		Indicators:       c.IndicatorsConfig(),
		Optimizer:        c.OptimizerConfig(),
		StatsTimeout:     c.Orchestrator.StatsTimeout,
		FeaturesTimeout:  c.Orchestrator.FeaturesTimeout,
		OptimizerTimeout: c.Orchestrator.OptimizerTimeout,
		Workers:          c.Orchestrator.Workers,
	}
}

// LogConfig 日志参数
func (c *Config) LogConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.System.LogLevel,
		Dir:        c.System.LogDir,
		MaxSizeMB:  c.System.LogMaxSizeMB,
		MaxBackups: c.System.LogMaxBackups,
		MaxAgeDays: c.System.LogMaxAgeDays,
	}
}
