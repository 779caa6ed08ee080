package logger

import (
	"os"

	"github.com/SergeiKhy/fileshare/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New собирает zap логгер: JSON в stdout и, если задан LOG_FILE, ротируемый файл.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zap.New(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer(cfg.File), level),
		zap.AddCaller(),
	), nil
}

// writer возвращает stdout либо stdout вместе с файлом через lumberjack
func writer(file string) zapcore.WriteSyncer {
	stdout := zapcore.AddSync(os.Stdout)
	if file == "" {
		return stdout
	}

	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // дней
	}
	return zapcore.NewMultiWriteSyncer(stdout, zapcore.AddSync(rotated))
}
