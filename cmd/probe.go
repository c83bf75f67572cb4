// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/mavprobe/pkg/probe"
	"github.com/Thermoquad/mavprobe/pkg/vehicle"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runProbe(cmd *cobra.Command, args []string) error {
	configureLogging()

	cfg, err := buildConfig()
	if err != nil {
		logrus.WithError(err).Error("Invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = probe.New(cfg, connectVehicle, os.Stdout).Run(ctx)
	return err
}

func configureLogging() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

// buildConfig lifts the flags into a probe configuration
func buildConfig() (probe.Config, error) {
	cfg := probe.DefaultConfig()
	cfg.Address = portName
	cfg.BaudRate = baudRate
	cfg.ReadyTimeout = readyTimeout
	cfg.HeartbeatDelay = heartbeatDelay
	cfg.Parameter = paramName

	if wsURL != "" {
		cfg.Address = wsURL
		cfg.Username = wsUsername
		cfg.SkipTLSVerify = wsNoSSLVerify
		if wsUsername != "" {
			password, err := GetPassword(wsUsername, wsURL)
			if err != nil {
				return cfg, err
			}
			cfg.Password = password
		}
	}

	return cfg, cfg.Validate()
}

// connectVehicle opens the transport and waits for the autopilot to be ready
func connectVehicle(ctx context.Context, cfg probe.Config) (probe.Vehicle, error) {
	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("connection", connInfo)
	log.Debug("Transport open")

	v, err := vehicle.Connect(ctx, conn, vehicle.Options{
		WaitReady:    true,
		ReadyTimeout: cfg.ReadyTimeout,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
