/*
Copyright 2025 YANDEX LLC.

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

// Package cmd holds the command line surface of the reaper.
package cmd

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wal-g/reaper/internal/config"
	"github.com/wal-g/reaper/internal/supervisor"
	"github.com/wal-g/reaper/pkg/version"
)

var ErrConflictingWaitPolicies = errors.New("conflicting wait policy flags")

const longDescription = `reaper makes itself reaper for all child processes and leader of a new
process group. It then starts <command> as a sub process.

While <command> is running, it adopts any orphaned child processes and reaps
them when they terminate. Once <command> has finished, it optionally
terminates remaining orphans, optionally waits for them, then exits with the
exit code of <command>.

If reaper receives SIGTERM, SIGINT or SIGQUIT, it sends SIGTERM to its whole
process group and exits once the children are gone. Children that are still
alive after the shutdown timeout (5s) are abandoned and reaper exits with a
failure status.`

// runFunc is replaced in tests to observe the resolved configuration.
var runFunc = supervisor.Start

// NewRootCmd returns the reaper command. Flag parsing stops at the first
// positional argument, so options of the supervised command pass through.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reaper [options] <command> [<command arguments> ...]",
		Short:         "Subreaper and process group supervisor for a single command",
		Long:          longDescription,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("version") {
				_, err := fmt.Fprint(cmd.OutOrStdout(), version.Summary())
				return err
			}
			cfg, err := configFromViper(args)
			if err != nil {
				if errors.Is(err, config.ErrMissingCommand) {
					_ = cmd.Usage()
				}
				return err
			}
			return runFunc(cmd.Context(), cfg)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		_ = c.Usage()
		return err
	})

	cmd.Flags().BoolP("verbose", "v", false, "verbose mode")
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	_ = viper.BindEnv("verbose", "REAPER_VERBOSE")

	cmd.Flags().BoolP("fault-tolerant", "f", false,
		"continue in degraded mode if registering as child subreaper fails")
	_ = viper.BindPFlag("fault-tolerant", cmd.Flags().Lookup("fault-tolerant"))
	_ = viper.BindEnv("fault-tolerant", "REAPER_FAULT_TOLERANT")

	cmd.Flags().BoolP("wait-all", "w", false, "wait for all children to terminate before exiting")
	_ = viper.BindPFlag("wait-all", cmd.Flags().Lookup("wait-all"))
	_ = viper.BindEnv("wait-all", "REAPER_WAIT_ALL")

	cmd.Flags().BoolP("forever", "F", false, "never exit on command termination, only on a shutdown request")
	_ = viper.BindPFlag("forever", cmd.Flags().Lookup("forever"))
	_ = viper.BindEnv("forever", "REAPER_FOREVER")

	cmd.Flags().String("wait-policy", string(config.CommandOnly),
		fmt.Sprintf("wait policy, one of %v", config.AllowedWaitPolicies))
	_ = viper.BindPFlag("wait-policy", cmd.Flags().Lookup("wait-policy"))
	_ = viper.BindEnv("wait-policy", "REAPER_WAIT_POLICY")

	cmd.Flags().BoolP("terminate-after-command", "t", false,
		"terminate remaining child processes after <command> terminates")
	_ = viper.BindPFlag("terminate-after-command", cmd.Flags().Lookup("terminate-after-command"))
	_ = viper.BindEnv("terminate-after-command", "REAPER_TERMINATE_AFTER_COMMAND")

	cmd.Flags().BoolP("no-reap", "n", false, "do not reap children (diagnostic mode)")
	_ = viper.BindPFlag("no-reap", cmd.Flags().Lookup("no-reap"))
	_ = viper.BindEnv("no-reap", "REAPER_NO_REAP")

	cmd.Flags().StringToStringP("env", "e", map[string]string{},
		"extra environment for <command> as KEY=VALUE, may be repeated")
	_ = viper.BindPFlag("env", cmd.Flags().Lookup("env"))

	cmd.Flags().BoolP("version", "V", false, "print version and exit")
	_ = viper.BindPFlag("version", cmd.Flags().Lookup("version"))

	viper.SetDefault("shutdown-timeout", config.DefaultShutdownTimeout)
	_ = viper.BindEnv("shutdown-timeout", "REAPER_SHUTDOWN_TIMEOUT")

	return cmd
}

// configFromViper resolves flags and environment into a validated Config.
func configFromViper(args []string) (config.Config, error) {
	cfg := config.Default()
	cfg.Verbose = viper.GetBool("verbose")
	cfg.FaultTolerant = viper.GetBool("fault-tolerant")
	cfg.ReapEnabled = !viper.GetBool("no-reap")
	cfg.TerminateAfterCommand = viper.GetBool("terminate-after-command")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	cfg.Env = viper.GetStringMapString("env")
	cfg.Command = args

	policy, err := resolveWaitPolicy()
	if err != nil {
		return cfg, err
	}
	cfg.WaitPolicy = policy

	return cfg, cfg.Validate()
}

func resolveWaitPolicy() (config.WaitPolicy, error) {
	named, err := config.ParseWaitPolicy(viper.GetString("wait-policy"))
	if err != nil {
		return "", err
	}

	shorthands := lo.PickBy(map[string]config.WaitPolicy{
		"wait-all": config.AllDescendants,
		"forever":  config.Forever,
	}, func(key string, _ config.WaitPolicy) bool {
		return viper.GetBool(key)
	})
	if len(shorthands) > 1 {
		return "", fmt.Errorf("%w: --wait-all and --forever are mutually exclusive", ErrConflictingWaitPolicies)
	}
	for flag, policy := range shorthands {
		if named != config.CommandOnly && named != policy {
			return "", fmt.Errorf("%w: --%s contradicts --wait-policy=%s", ErrConflictingWaitPolicies, flag, named)
		}
		return policy, nil
	}
	return named, nil
}
