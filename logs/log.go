package logs

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var logLevel int32 = LevelInfo // 全局日志级别

// 全局 Logger 实例
var logger *Logger

// NodeTag 出现在每行日志前面，一般是节点的程序 ID 前缀
var nodeTag atomic.Value

// Logger 结构体
type Logger struct {
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

// 初始化全局 Logger 实例
func init() {
	logger = newLogger(os.Stdout, os.Stderr)
	nodeTag.Store("-------")
}

func newLogger(out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	return &Logger{
		traceLogger:   log.New(out, "[TRACE]   ", flags),
		debugLogger:   log.New(out, "[DEBUG]   ", flags),
		verboseLogger: log.New(out, "[VERBOSE] ", flags),
		infoLogger:    log.New(out, "[INFO]    ", flags),
		warnLogger:    log.New(out, "[WARN]    ", flags),
		errorLogger:   log.New(errOut, "[ERROR]   ", flags),
	}
}

// SetOutput 重定向所有级别的输出（测试里用）
func SetOutput(w io.Writer) {
	logger = newLogger(w, w)
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	atomic.StoreInt32(&logLevel, int32(level))
}

// ParseLevel 把配置里的字符串转成级别，未知的按 info 处理
func ParseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "verbose":
		return LevelVerbose
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetNodeTag 设置日志前缀，最多保留 7 个字符
func SetNodeTag(tag string) {
	if len(tag) > 7 {
		tag = tag[:7]
	}
	nodeTag.Store(tag)
}

func enabled(level int) bool {
	return int(atomic.LoadInt32(&logLevel)) <= level
}

func output(l *log.Logger, format string, v ...interface{}) {
	// calldepth 3: output -> Info/Warn/... -> 调用方
	_ = l.Output(3, nodeTag.Load().(string)+" "+fmt.Sprintf(format, v...))
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	if enabled(LevelTrace) {
		output(logger.traceLogger, format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		output(logger.debugLogger, format, v...)
	}
}

func Verbose(format string, v ...interface{}) {
	if enabled(LevelVerbose) {
		output(logger.verboseLogger, format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		output(logger.infoLogger, format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if enabled(LevelWarning) {
		output(logger.warnLogger, format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		output(logger.errorLogger, format, v...)
	}
}
