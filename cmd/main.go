/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jerry-enebeli/bankrec"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/database"
	"github.com/jerry-enebeli/bankrec/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// BankRecCLI is the command-line interface, wrapping the root cobra command.
type BankRecCLI struct {
	cmd *cobra.Command
}

// bankrecInstance holds the service and configuration shared by every command.
type bankrecInstance struct {
	bankrec *bankrec.BankRec
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *bankrecInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		svc, err := setupBankRec(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.bankrec = svc
		app.cnf = cnf
		return nil
	}
}

func setupBankRec(cfg *config.Configuration) (*bankrec.BankRec, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	svc, err := bankrec.NewBankRec(db)
	if err != nil {
		return nil, fmt.Errorf("error creating bankrec: %v", err)
	}
	return svc, nil
}

func NewCLI() *BankRecCLI {
	var configFile string
	b := &bankrecInstance{}

	var rootCmd = &cobra.Command{
		Use:   "bankrec",
		Short: "Bank statement reconciliation service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./bankrec.json", "Configuration file for bankrec")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(modelCommands(b))
	rootCmd.AddCommand(configCommands())

	return &BankRecCLI{cmd: rootCmd}
}

func (w BankRecCLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
