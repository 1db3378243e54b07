package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/conf"
	"github.com/switchrx/oppscan-app/oppscan/utils"
	"github.com/switchrx/oppscan-app/oppscanworker/queueing"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetReportCaller(true)
	filePath := conf.GetEnv("OPPSCAN_WORKER_ERROR_LOG")

	/* #nosec -- 0640 permissions required for log ingestion */
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err == nil {
		log.SetOutput(file)
	} else {
		log.Info("Failed to open worker error log file; using default stderr")
	}
}

func main() {
	numWorkers := utils.GetEnvInt("OPPSCAN_WORKER_POOL_SIZE", 3)

	q := queueing.StartQue(conf.GetEnv("QUEUE_DATABASE_URL"), numWorkers)
	defer q.StopQue()
	log.Infof("Worker started with pool size %d", numWorkers)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Worker shutting down")
}
