package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"ragcore/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	InitLogger(config.GetConfig().LogConfig.LogPath)
}

var (
	logger *zap.Logger
	once   sync.Once
)

// InitLogger 初始化全局日志器。logPath 为空时仅输出到控制台。
// 文件输出使用 lumberjack 滚动切割，避免日志无限增长。
func InitLogger(logPath string) {
	once.Do(func() {
		logger = newLogger(logPath)
	})
}

func newLogger(logPath string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		zapcore.DebugLevel,
	)

	if logPath == "" {
		return zap.New(consoleCore, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logPath, "ragcore.log"),
		MaxSize:    100, // MB
		MaxBackups: 7,
		MaxAge:     30, // days
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(fileWriter),
		zapcore.InfoLevel,
	)
	return zap.New(zapcore.NewTee(consoleCore, fileCore), zap.AddCaller(), zap.AddCallerSkip(1))
}

func get() *zap.Logger {
	if logger == nil {
		InitLogger("")
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { get().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { get().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { get().Fatal(msg, fields...) }

// Sync 刷新缓冲日志，进程退出前调用
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
