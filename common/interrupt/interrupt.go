// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package interrupt

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Fantom-foundation/lptree/common"
)

const ErrCanceled = common.ConstError("interrupted")

// Check returns ErrCanceled once the given context is done, nil otherwise.
// Long running loops call it between steps, leaving stores in a consistent
// state when they stop.
func Check(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	return nil
}

// Register derives a context canceled on SIGTERM or SIGINT. The returned stop
// function releases the signal handler and should be deferred by the caller.
func Register(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case sig := <-signals:
			log.Printf("received %v, stopping at the next consistent point", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
