package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/conf"
	"github.com/switchrx/oppscan-app/oppscan/oppscancli"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetReportCaller(true)
	filePath := conf.GetEnv("OPPSCAN_ERROR_LOG")

	/* #nosec -- 0640 permissions required for log ingestion */
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err == nil {
		log.SetOutput(file)
	} else {
		log.Info("Failed to open error log file; using default stderr")
	}
}

func main() {
	if err := oppscancli.GetApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
