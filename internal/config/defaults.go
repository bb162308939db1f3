package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	threads             = 4
	connectionRetries   = 2
	workerRetries       = 1
	retryDelay          = 1 * time.Second
	updateInterval      = 100 * time.Millisecond
	mergeUpdateInterval = 100 * time.Millisecond
	timeout             = 30 * time.Second
	bufferSize          = "8KiB"
	historyEnabled      = true
	historyFileName     = "history.db"
)

var downloadDir = xdg.UserDirs.Download

func historyPath() string {
	return filepath.Join(xdg.DataHome, configFileName, historyFileName)
}
