package main

import (
	"log"
	"syscall"

	"RentalInsight/src/config"
	"RentalInsight/src/utils"
)

// 向正在运行的 rentalinsight 进程发送 SIGHUP：
// 重新打开日志文件，serve 模式下同时重新加载清洗结果
func main() {
	cfg, _, err := config.LoadConfig("./config", "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	pid, err := utils.ReadPidFile(cfg.PidFile)
	if err != nil {
		log.Fatal("Failed to read pid file:", err)
	}

	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		log.Fatal("Failed to send SIGHUP:", err)
	}
	log.Printf("SIGHUP sent to %d", pid)
}
