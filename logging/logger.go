package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 是全局可用的 SugaredLogger；Init 之前为 Nop，保证库代码随时可用
var Log = zap.NewNop().Sugar()

// encoderConfig 控制台风格，便于肉眼排查
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
}

// Init 初始化 zap 日志到本地文件（支持滚动）
// filePath: 日志文件路径，如 "lanarena.log"；终端被 tcell 占用时只能写文件
func Init(filePath string, level zapcore.Level) error {
	// 文件滚动策略：10MB 每文件，保留3个备份
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   false,
	}
	install(zapcore.AddSync(lj), level)
	return nil
}

// InitConsole 输出到 stderr，discover/serve 这类不占用终端的命令使用
func InitConsole(level zapcore.Level) {
	install(zapcore.Lock(os.Stderr), level)
}

func install(ws zapcore.WriteSyncer, level zapcore.Level) {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, level)
	Log = zap.New(core, zap.AddCaller()).Sugar()
}

// Named 返回带组件名的子 logger
func Named(name string) *zap.SugaredLogger {
	return Log.Named(name)
}

// Sync 清理和同步缓冲
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
