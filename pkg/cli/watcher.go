/*
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

package cli

import (
	"context"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/awslabs/aws-pause/pkg/cancellation"
	"github.com/awslabs/aws-pause/pkg/log"
)

const (
	keyESC  = 27
	keyCtrl = 3
)

// StartESCWatcher puts the terminal into raw mode and requests
// cancellation when ESC (or ctrl-c, which raw mode swallows) is
// pressed. The returned stop function restores the terminal and is
// safe to call more than once. When stdin is not a terminal the
// watcher is a no-op.
func StartESCWatcher(ctx context.Context, flag *cancellation.Flag) (stop func()) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		log.FromContext(ctx).Debugf("esc watcher unavailable, %s", err)
		return func() {}
	}
	log.FromContext(ctx).Infof("press ESC to cancel; in-flight operations finish, no new ones start")

	var once sync.Once
	restore := func() {
		once.Do(func() {
			_ = term.Restore(fd, state)
		})
	}
	go func() {
		defer restore()
		buf := make([]byte, 1)
		for {
			// Blocks until a key arrives; the goroutine ends with the
			// process if the operation finishes without input.
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n > 0 && (buf[0] == keyESC || buf[0] == keyCtrl) {
				log.FromContext(ctx).Warnf("cancellation requested")
				flag.Request()
				return
			}
		}
	}()
	return restore
}
