package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the process-wide logrus logger. When file is non-empty,
// output also goes to a size-rotated log file.
func Setup(level, file string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if file == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // MB
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, rotated))
}
