package main

import (
	"flag"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/tduarte/mailmind/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default ~/.mailmind/config.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		home, _ := os.UserHomeDir()
		configPath = filepath.Join(home, ".mailmind", "config.toml")
	}

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: configPath}),
	)

	app.Run()
}
