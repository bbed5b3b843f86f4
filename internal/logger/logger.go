package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志文件名
const (
	LogFileName      = "poolcore.log"
	ErrorLogFileName = "poolcore_error.log"
)

// LogConfig 日志配置，Dir 为空时只输出到控制台
type LogConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger 封装zap日志器
type Logger struct {
	*zap.Logger
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ParseLevel 解析日志级别，无法识别时为 info
func ParseLevel(level string) zapcore.Level {
	var logLevel zapcore.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return logLevel
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.Dir, name),
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
}

// NewLogger 创建新的日志记录器：控制台 + JSON 文件 + 仅错误的 JSON 文件，文件按大小轮转
func NewLogger(cfg LogConfig) (*Logger, error) {
	if cfg.Dir == "" {
		return NewDevelopment(cfg.Level)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}

	logLevel := ParseLevel(cfg.Level)
	enc := encoderConfig()

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(os.Stdout),
		logLevel,
	)
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.AddSync(cfg.rotating(LogFileName)),
		logLevel,
	)
	errorFileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.AddSync(cfg.rotating(ErrorLogFileName)),
		zapcore.ErrorLevel,
	)

	core := zapcore.NewTee(consoleCore, fileCore, errorFileCore)
	return &Logger{zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}, nil
}

// NewDevelopment 开发环境配置，输出更易读的格式
func NewDevelopment(level string) (*Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{l}, nil
}

// With 添加固定字段到logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

// Named 添加子logger名称
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}
