// internal/logger/logger.go
// Zerolog setup shared by the CLI and the messaging layer, with optional
// lumberjack file rotation.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls where and how much the client logs.
type LogConfig struct {
	Level      string `json:"level"` // debug, info, warn, error, fatal
	LogToFile  bool   `json:"log_to_file"`
	LogToJSON  bool   `json:"log_to_json"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`    // megabytes
	MaxBackups int    `json:"max_backups"` // number of backups
	MaxAge     int    `json:"max_age"`     // days
	Compress   bool   `json:"compress"`    // compress old log files
}

// DefaultLogConfig returns console-only logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogToFile:  false,
		LogToJSON:  false,
		FilePath:   "troubleflipper.log",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

// InitLogger replaces the global zerolog logger according to config.
func InitLogger(config LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if config.LogToJSON {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, newConsoleWriter(os.Stderr))
	}
	if config.LogToFile && config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	var output io.Writer = writers[0]
	if len(writers) > 1 {
		output = io.MultiWriter(writers...)
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"component",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"component"},
		FormatLevel: func(i interface{}) string {
			level := strings.ToUpper(fmt.Sprintf("%s", i))
			color := "37"
			switch level {
			case "DEBUG":
				color = "36"
			case "INFO":
				color = "32"
			case "WARN":
				color = "33"
			case "ERROR":
				color = "31"
			case "FATAL":
				color = "35"
			}
			return fmt.Sprintf("\033[%sm[ %-5s ]\033[0m", color, level)
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[34m%s\033[0m: ", i)
		},
		FormatErrFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[31m%s\033[0m: ", i)
		},
		FormatErrFieldValue: func(i interface{}) string {
			return fmt.Sprintf("\033[31m%s\033[0m", i)
		},
	}
}

// Logger is a component-tagged wrapper around zerolog.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger derives a logger for component from the global logger.
func NewLogger(component string) *Logger {
	return &Logger{
		logger: log.With().Str("component", component).Logger(),
	}
}

// New builds a JSON logger writing to w. Tests use it to inspect diagnostics.
func New(w io.Writer, component string) *Logger {
	return &Logger{
		logger: zerolog.New(w).With().Str("component", component).Logger(),
	}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

func (l *Logger) Debug(msg string)                       { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *Logger) Info(msg string)                        { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logger.Info().Msgf(format, v...) }
func (l *Logger) Warn(msg string)                        { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *Logger) Error(msg string)                       { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l *Logger) Fatal(msg string)                       { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger.Fatal().Msgf(format, v...) }
