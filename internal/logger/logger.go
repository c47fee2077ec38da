package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// zapLevel はzapのレベルに変換する
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel は文字列からログレベルを取得する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger はzapをバックエンドとするスレッドセーフなロガー
type Logger struct {
	level zap.AtomicLevel
	base  *zap.Logger
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	level := zap.NewAtomicLevelAt(minLevel.zapLevel())
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(out)),
		level,
	)
	return &Logger{
		level: level,
		base:  zap.New(core),
	}
}

// encoderConfig は "[時刻] [LEVEL] [stage] message" 形式のエンコーダ設定を返す
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		MessageKey:       "M",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format("2006-01-02 15:04:05.000") + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Zap は内部のzap.Loggerを返す
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Sync はバッファをフラッシュする
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// log は指定されたレベルでログを出力する
func (l *Logger) log(level Level, stageID string, format string, args ...any) {
	lvl := level.zapLevel()
	if !l.level.Enabled(lvl) {
		return
	}

	z := l.base
	if stageID != "" {
		z = z.Named(stageID)
	}
	if ce := z.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(stageID string, format string, args ...any) {
	l.log(LevelDebug, stageID, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(stageID string, format string, args ...any) {
	l.log(LevelInfo, stageID, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(stageID string, format string, args ...any) {
	l.log(LevelWarn, stageID, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(stageID string, format string, args ...any) {
	l.log(LevelError, stageID, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(stageID string, format string, args ...any) {
	Default.Debug(stageID, format, args...)
}

// Info は情報ログを出力する
func Info(stageID string, format string, args ...any) {
	Default.Info(stageID, format, args...)
}

// Warn は警告ログを出力する
func Warn(stageID string, format string, args ...any) {
	Default.Warn(stageID, format, args...)
}

// Error はエラーログを出力する
func Error(stageID string, format string, args ...any) {
	Default.Error(stageID, format, args...)
}
