package log

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/conf"
)

var (
	Engine  logrus.FieldLogger
	Quality logrus.FieldLogger

	Worker logrus.FieldLogger
)

func init() {
	Engine = Logger(logrus.New(), conf.GetEnv("OPPSCAN_ENGINE_LOG"),
		"engine", conf.GetEnv("ENVIRONMENT"))
	Quality = Logger(logrus.New(), conf.GetEnv("OPPSCAN_QUALITY_LOG"),
		"quality", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("OPPSCAN_WORKER_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
