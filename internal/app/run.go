package app

import (
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/data/binding"

	"yashubustudio/reviewlens/internal/client"
)

// Run loads the dashboard settings and starts the desktop UI.
func Run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logBind := binding.NewString()
	logger := newUILogger(newLogCapture(logBind, cfg.LogLines))
	defer logger.Sync()

	c := client.New(cfg.ClientConfig(), logger)

	a := fyneapp.NewWithID(fyneAppID)
	u := buildUI(a, configPath, cfg, c, logBind, logger)
	logger.Info("dashboard started")
	u.checkHealth()
	u.w.ShowAndRun()
	return nil
}
