// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the geofix service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/i18n"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	once := flag.Bool("once", false, "acquire the location once, print it as JSON and exit")
	flag.Parse()

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}

	log = logger.New(conf.LogLevel)
	lang, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	serv, err := service.New(conf, log, lang)
	if err != nil {
		log.Error("failed to initialize geofix service", logger.Err(err))
		os.Exit(1)
	}

	if *once {
		if _, err = serv.Once(ctx); err != nil {
			if !errors.Is(err, service.ErrAcquisitionFailed) {
				log.Error("failed to acquire location", logger.Err(err))
			}
			cancel()
			os.Exit(2)
		}
		return
	}

	log.Info("starting geofix service", slog.String("version", version), slog.String("commit", commit),
		slog.String("date", date), slog.String("source", conf.Source))
	if err = serv.Run(ctx); err != nil {
		log.Error("failed to run geofix service", logger.Err(err))
	}
	log.Info("shutting down geofix service")
}

// loadConfig reads the given config file, the default config file in the user's config
// directory or, if neither exists, the defaults and environment.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	for _, ext := range []string{"toml", "yaml", "yml", "json"} {
		path := filepath.Join(homedir, ".config", "geofix", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
