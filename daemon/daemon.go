// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package daemon manages a provisioning capricoinplusd instance: its
// configuration file, startup in an isolated non-networked mode, and the
// readiness wait after launch.
package daemon

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/capricoinofficial/coldstakepool/rpc/client/cspcli"
)

// ConfFilename is the daemon configuration file name within the data
// directory.
const ConfFilename = "capricoinplus.conf"

const (
	// readyAttempts and readyInterval bound the post-start readiness
	// poll.  The wait is best effort: a daemon that never answers is not
	// an error here, later RPC calls will fail loudly instead.
	readyAttempts = 10
	readyInterval = 500 * time.Millisecond
)

// ConfOptions describes the capricoinplus.conf written for a new pool node.
type ConfOptions struct {
	// Chain is the network name; anything but mainnet is written as a
	// chain selector line.
	Chain string

	// WalletPrefix is prepended to wallet= keys for non-mainnet chains.
	WalletPrefix string

	// ZMQPort is the local port block notifications are published on.
	ZMQPort int

	// Wallets are loaded by the daemon at startup, in order.
	Wallets []string
}

// WriteConf writes the daemon configuration file into dataDir.  The file is
// write-once: a pre-existing file is never overwritten and aborts the run.
func WriteConf(dataDir string, opts *ConfOptions) error {
	confPath := filepath.Join(dataDir, ConfFilename)
	if fileExists(confPath) {
		return fmt.Errorf("%s exists, refusing to overwrite", confPath)
	}

	var b strings.Builder
	if opts.Chain != "mainnet" {
		fmt.Fprintf(&b, "%s=1\n\n", opts.Chain)
	}
	fmt.Fprintf(&b, "zmqpubhashblock=tcp://127.0.0.1:%d\n", opts.ZMQPort)
	for _, wallet := range opts.Wallets {
		fmt.Fprintf(&b, "%swallet=%s\n", opts.WalletPrefix, wallet)
	}
	b.WriteString("csindex=1\n")
	b.WriteString("addressindex=1\n")

	log.Infof("Writing %s", confPath)
	return ioutil.WriteFile(confPath, []byte(b.String()), 0600)
}

// Start launches capricoinplusd from binDir against dataDir in daemonized
// mode with peer connections, DNS seeding and staking disabled.  Any output
// on the daemon's error stream is treated as a failed start.
func Start(ctx context.Context, binDir, daemonBin, dataDir string) error {
	daemonPath := filepath.Join(binDir, daemonBin)
	args := []string{"-daemon", "-noconnect", "-nostaking", "-nodnsseed",
		"-datadir=" + dataDir}

	log.Infof("Starting %s", daemonBin)
	cmd := exec.CommandContext(ctx, daemonPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if stderr.Len() > 0 {
		return fmt.Errorf("%s: %s", daemonBin,
			strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		return fmt.Errorf("unable to start %s: %w", daemonBin, err)
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.Debugf("%s: %s", daemonBin, out)
	}
	return nil
}

// WaitReady polls the daemon's status RPC until it responds, up to a fixed
// number of attempts with a fixed delay.  Exhausting the attempts is not an
// error; the caller proceeds and the next RPC call reports the failure.
func WaitReady(ctx context.Context, rpc *cspcli.RPC) {
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if _, err := rpc.GetBlockchainInfo(ctx); err == nil {
			log.Debugf("Daemon responding after %d attempt(s)", attempt)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(readyInterval):
		}
	}
	log.Warnf("Daemon not responding after %d attempts, continuing",
		readyAttempts)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
