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

package supervisor

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// handledSignals are routed to the shutdown state machine.
var handledSignals = []os.Signal{unix.SIGTERM, unix.SIGINT, unix.SIGQUIT, timeoutSignal}

// EchoFilter recognises signals the supervisor delivered to itself.
type EchoFilter interface {
	PID() int
	ConsumeEcho(sig unix.Signal) bool
}

// SignalPump turns delivered signals into state machine requests. Go delivers
// signals over a channel, so the state machine runs on an ordinary goroutine
// instead of inside an asynchronous handler.
type SignalPump struct {
	Machine *ShutdownMachine
	Echoes  EchoFilter

	sigCh chan os.Signal
}

// Notify subscribes to the handled signals. It must be called before the
// command is spawned so no termination request falls back to the default
// disposition.
func (p *SignalPump) Notify() {
	p.sigCh = make(chan os.Signal, 8)
	signal.Notify(p.sigCh, handledSignals...)
}

// Start dispatches signals until ctx is done. Notify must have been called.
func (p *SignalPump) Start(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("SignalPump")
	defer signal.Stop(p.sigCh)

	logger.V(1).Info("Starting signal pump")
	for {
		select {
		case sig := <-p.sigCh:
			p.dispatch(sig)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *SignalPump) dispatch(sig os.Signal) {
	sysSig, ok := sig.(unix.Signal)
	if !ok {
		return
	}
	req := Request{Signal: sysSig}
	// The kernel does not tell os/signal who sent the signal. A signal for
	// which a broadcast echo is outstanding is attributed to ourselves.
	if p.Echoes != nil && p.Echoes.ConsumeEcho(sysSig) {
		req.SenderPID = p.Echoes.PID()
	}
	p.Machine.HandleSignal(req)
}
