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

// Package config holds the resolved, validated reaper configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// WaitPolicy decides when the reaper exits relative to the command and its descendants.
type WaitPolicy string

const (
	// CommandOnly exits as soon as the command terminates.
	CommandOnly WaitPolicy = "command"
	// AllDescendants exits once the command and every adopted descendant are gone.
	AllDescendants WaitPolicy = "all"
	// Forever never exits on its own; only a shutdown request ends it.
	Forever WaitPolicy = "forever"
)

var AllowedWaitPolicies = []WaitPolicy{CommandOnly, AllDescendants, Forever}

// DefaultShutdownTimeout is how long children get to terminate before the reaper terminates itself.
const DefaultShutdownTimeout = 5 * time.Second

var (
	ErrMissingCommand    = errors.New("missing command")
	ErrUnknownWaitPolicy = errors.New("unknown wait policy")
)

// Config is immutable once built by the command line layer.
type Config struct {
	Verbose               bool
	FaultTolerant         bool
	ReapEnabled           bool
	WaitPolicy            WaitPolicy
	TerminateAfterCommand bool
	ShutdownTimeout       time.Duration
	// Env holds extra variables for the command; they override inherited ones.
	Env     map[string]string
	Command []string
}

// Default returns a configuration with every option at its default and no command.
func Default() Config {
	return Config{
		ReapEnabled:     true,
		WaitPolicy:      CommandOnly,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// ParseWaitPolicy converts a policy name to a WaitPolicy. The empty string means CommandOnly.
func ParseWaitPolicy(name string) (WaitPolicy, error) {
	if name == "" {
		return CommandOnly, nil
	}
	policy := WaitPolicy(name)
	if !lo.Contains(AllowedWaitPolicies, policy) {
		return "", fmt.Errorf("%w %q, should be one of %v", ErrUnknownWaitPolicy, name, AllowedWaitPolicies)
	}
	return policy, nil
}

func (c Config) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return ErrMissingCommand
	}
	if !lo.Contains(AllowedWaitPolicies, c.WaitPolicy) {
		return fmt.Errorf("%w %q", ErrUnknownWaitPolicy, c.WaitPolicy)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
