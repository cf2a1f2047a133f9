// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cspcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CLI satisfies the Caller interface by invoking the capricoinplus-cli
// binary against a running daemon.  Each call is a blocking subprocess
// invocation; the cli binary waits for the daemon's response.
type CLI struct {
	binDir  string
	cliBin  string
	dataDir string
	chain   string
}

// NewCLI returns a Caller that shells out to cliBin in binDir.  chain selects
// the network flag passed on every call and must be empty for mainnet.
func NewCLI(binDir, cliBin, dataDir, chain string) *CLI {
	return &CLI{
		binDir:  binDir,
		cliBin:  cliBin,
		dataDir: dataDir,
		chain:   chain,
	}
}

// Call runs the cli binary with the method and positional args, scoped to
// wallet when non-empty, and unmarshals the response into res.  The cli
// prints bare (non-JSON) output for scalar results, which is assigned
// directly when res is a *string.
func (c *CLI) Call(ctx context.Context, wallet, method string, res interface{}, args ...string) error {
	argv := make([]string, 0, len(args)+4)
	argv = append(argv, "-datadir="+c.dataDir)
	if c.chain != "" {
		argv = append(argv, "-"+c.chain)
	}
	if wallet != "" {
		argv = append(argv, "-rpcwallet="+wallet)
	}
	argv = append(argv, method)
	argv = append(argv, args...)

	log.Tracef("%s %s", c.cliBin, strings.Join(argv, " "))
	cmd := exec.CommandContext(ctx, filepath.Join(c.binDir, c.cliBin), argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %s", c.cliBin, method, msg)
		}
		return fmt.Errorf("%s %s: %w", c.cliBin, method, err)
	}
	if res == nil {
		return nil
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if err := json.Unmarshal(out, res); err != nil {
		if s, ok := res.(*string); ok {
			*s = string(out)
			return nil
		}
		return fmt.Errorf("%s %s: unable to parse response: %w",
			c.cliBin, method, err)
	}
	return nil
}
