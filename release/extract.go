// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package release

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks the daemon, cli and tx executables from the verified
// release archive into BinDir.  The archive's internal capricoinplus-VERSION/bin
// nesting is stripped so the executables land directly in BinDir.
func (c *Config) Extract() error {
	binPrefix := fmt.Sprintf("capricoinplus-%s/bin", c.Version)
	wanted := map[string]string{
		path.Join(binPrefix, c.DaemonBin): c.DaemonBin,
		path.Join(binPrefix, c.CLIBin):    c.CLIBin,
		path.Join(binPrefix, c.TxBin):     c.TxBin,
	}

	fi, err := os.Open(c.ArchivePath())
	if err != nil {
		return fmt.Errorf("unable to open release archive: %w", err)
	}
	defer fi.Close()
	gz, err := gzip.NewReader(fi)
	if err != nil {
		return fmt.Errorf("unable to decompress release archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("unable to read release archive: %w", err)
		}
		name, ok := wanted[path.Clean(hdr.Name)]
		if !ok {
			continue
		}
		dest := filepath.Join(c.BinDir, name)
		if err := writeExecutable(dest, tr); err != nil {
			return err
		}
		log.Debugf("Extracted %s", name)
		delete(wanted, path.Clean(hdr.Name))
	}

	if len(wanted) != 0 {
		missing := make([]string, 0, len(wanted))
		for name := range wanted {
			missing = append(missing, name)
		}
		return fmt.Errorf("release archive is missing %s",
			strings.Join(missing, ", "))
	}
	return nil
}

// CheckVersion runs the extracted daemon with its version switch and requires
// the configured release version to appear in the first line of output.  A
// mismatch means the wrong archive was unpacked and is fatal.
func (c *Config) CheckVersion(ctx context.Context) error {
	daemonPath := filepath.Join(c.BinDir, c.DaemonBin)
	out, err := exec.CommandContext(ctx, daemonPath, "--version").Output()
	if err != nil {
		return fmt.Errorf("%s --version: %w", c.DaemonBin, err)
	}
	firstLine := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]
	log.Infof("%s --version: %s", c.DaemonBin, firstLine)
	if !strings.Contains(firstLine, c.Version) {
		return fmt.Errorf("%s reports version %q, expected %s",
			c.DaemonBin, firstLine, c.Version)
	}
	return nil
}

// writeExecutable writes the contents of r to dest with the execute bit set.
func writeExecutable(dest string, r io.Reader) error {
	fi, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	_, err = io.Copy(fi, r)
	if cerr := fi.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("unable to extract %s: %w", filepath.Base(dest), err)
	}
	return nil
}
