// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package release downloads, verifies and unpacks capricoinplus-core release
// binaries.
//
// A release is only trusted after two independent checks pass: the sha256
// digest of the downloaded archive must appear in the signed gitian assert
// file, and the detached signature over the assert file must verify against
// the known release signing key.  Either check failing is terminal, there is
// no fallback.
package release

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/openpgp"
)

// Defaults for a release fetch.  Each one can be overridden through the
// corresponding CAPRICOINPLUS_* environment variable read at startup.
const (
	DefaultVersion    = "0.18.1.7"
	DefaultVersionTag = ""
	DefaultArch       = "x86_64-linux-gnu.tar.gz"
	DefaultRepo       = "Capricoinofficial"

	// DefaultSigningKeyFingerprint is the fingerprint of the key the
	// gitian assert files are signed with.
	DefaultSigningKeyFingerprint = "8BE6C158D381E7AA68095502B48A2245CFE7C482"

	// signingKeyName is the gitian signer directory name within the
	// gitian.sigs repository.
	signingKeyName = "CapricoinPlus"

	// signingKeyFilename is the file the armored signing key is cached
	// under within BinDir once it has been fetched from a keyserver.
	signingKeyFilename = "capricoinplus-signingkey.asc"
)

// DefaultKeyServers is the ordered list of HKP keyservers tried when the
// release signing key is not already cached locally.
var DefaultKeyServers = []string{
	"https://keyserver.ubuntu.com",
	"https://keys.openpgp.org",
}

// Config describes a capricoinplus-core release to fetch and where to unpack
// it.  It is built once at startup from defaults and environment overrides
// and treated as read-only afterwards.
type Config struct {
	// BinDir is the directory downloads land in and binaries are
	// extracted to.
	BinDir string

	// DaemonBin, CLIBin and TxBin are the basenames of the three
	// executables extracted from the release archive.
	DaemonBin string
	CLIBin    string
	TxBin     string

	// Version, VersionTag, Arch and Repo identify the release artifact.
	// Arch is the full release filename suffix, e.g.
	// "x86_64-linux-gnu.tar.gz".
	Version    string
	VersionTag string
	Arch       string
	Repo       string

	// SigningKeyFingerprint is the hex fingerprint the assert file
	// signature must verify against.
	SigningKeyFingerprint string

	// KeyServers are tried in order when the signing key is not cached.
	KeyServers []string
}

// osNames maps the configured arch suffix to the gitian directory name and
// the OS name used in assert filenames.
func (c *Config) osNames() (dirName, osName string) {
	switch {
	case strings.Contains(c.Arch, "osx"):
		return "osx-unsigned", "osx"
	case strings.Contains(c.Arch, "win32-setup"),
		strings.Contains(c.Arch, "win64-setup"):
		return "win-signed", "win-signer"
	case strings.Contains(c.Arch, "win32"),
		strings.Contains(c.Arch, "win64"):
		return "win-unsigned", "win"
	default:
		return "linux", "linux"
	}
}

// AssertFilename returns the basename of the gitian assert file for the
// configured release.  Signed windows builds use an unversioned name.
func (c *Config) AssertFilename() string {
	dirName, osName := c.osNames()
	if dirName == "win-signed" {
		return fmt.Sprintf("capricoinplus-%s-build.assert", osName)
	}
	return fmt.Sprintf("capricoinplus-%s-%s-build.assert", osName, c.Version)
}

// ReleaseFilename returns the basename of the release archive.
func (c *Config) ReleaseFilename() string {
	return fmt.Sprintf("capricoinplus-%s-%s", c.Version, c.Arch)
}

// AssertPath, SigPath and ArchivePath return the on-disk locations of the
// downloaded artifacts within BinDir.
func (c *Config) AssertPath() string {
	return filepath.Join(c.BinDir, c.AssertFilename())
}

func (c *Config) SigPath() string {
	return c.AssertPath() + ".sig"
}

func (c *Config) ArchivePath() string {
	return filepath.Join(c.BinDir, c.ReleaseFilename())
}

// assertURL returns the location of the assert file within the signer's
// gitian.sigs repository.
func (c *Config) assertURL() string {
	dirName, _ := c.osNames()
	return fmt.Sprintf(
		"https://raw.githubusercontent.com/%s/gitian.sigs/master/%s-%s/%s/%s",
		c.Repo, c.Version+c.VersionTag, dirName, signingKeyName,
		c.AssertFilename())
}

// archiveURL returns the location of the release archive on the release
// download host.
func (c *Config) archiveURL() string {
	return fmt.Sprintf(
		"https://github.com/%s/capricoinplus-core/releases/download/v%s/%s",
		c.Repo, c.Version+c.VersionTag, c.ReleaseFilename())
}

// Fetch downloads the assert file, its detached signature and the release
// archive into BinDir.  Downloads that already exist on disk are skipped, so
// re-running with the same version and arch is a no-op.
func (c *Config) Fetch(ctx context.Context) error {
	if err := os.MkdirAll(c.BinDir, 0700); err != nil {
		return fmt.Errorf("unable to create binaries directory: %w", err)
	}

	downloads := []struct {
		url  string
		dest string
	}{
		{c.assertURL(), c.AssertPath()},
		{c.assertURL() + ".sig?raw=true", c.SigPath()},
		{c.archiveURL(), c.ArchivePath()},
	}
	for _, dl := range downloads {
		if fileExists(dl.dest) {
			log.Debugf("Already have %s", filepath.Base(dl.dest))
			continue
		}
		if err := downloadFile(ctx, dl.url, dl.dest); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks the downloaded release archive against the signed assert
// file.  The sha256 digest of the archive must appear in the assert file and
// the assert file's detached signature must verify against the configured
// signing key fingerprint.  Verification failure is a security boundary and
// must abort the run.
func (c *Config) Verify(ctx context.Context) error {
	releaseHash, err := hashFile(c.ArchivePath())
	if err != nil {
		return err
	}
	log.Infof("Release hash: %s", releaseHash)

	assertData, err := ioutil.ReadFile(c.AssertPath())
	if err != nil {
		return fmt.Errorf("unable to read assert file: %w", err)
	}
	if !bytes.Contains(assertData, []byte(releaseHash)) {
		return fmt.Errorf("release hash %s not found in assert file %s",
			releaseHash, c.AssertFilename())
	}
	log.Infof("Found release hash %s in assert file", releaseHash)

	keyring, err := c.signingKeyRing(ctx)
	if err != nil {
		return err
	}
	sigData, err := ioutil.ReadFile(c.SigPath())
	if err != nil {
		return fmt.Errorf("unable to read signature file: %w", err)
	}
	err = verifySignature(keyring, assertData, sigData,
		c.SigningKeyFingerprint)
	if err != nil {
		return fmt.Errorf("signature verification failed for %s: %w",
			c.AssertFilename(), err)
	}
	log.Infof("Verified signature of %s", c.AssertFilename())
	return nil
}

// signingKeyRing returns a keyring holding the release signing key, fetching
// it from a keyserver and caching it in BinDir when it is not already known.
func (c *Config) signingKeyRing(ctx context.Context) (openpgp.EntityList, error) {
	keyPath := filepath.Join(c.BinDir, signingKeyFilename)
	if !fileExists(keyPath) {
		log.Info("Downloading release signing pubkey")
		if err := c.fetchSigningKey(ctx, keyPath); err != nil {
			return nil, err
		}
	}

	fi, err := os.Open(keyPath)
	if err != nil {
		return nil, err
	}
	defer fi.Close()
	keyring, err := openpgp.ReadArmoredKeyRing(fi)
	if err != nil {
		return nil, fmt.Errorf("unable to read signing key %s: %w",
			keyPath, err)
	}
	for _, entity := range keyring {
		fpr := hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])
		if strings.EqualFold(fpr, c.SigningKeyFingerprint) {
			return keyring, nil
		}
	}
	return nil, fmt.Errorf("signing key %s does not match fingerprint %s",
		keyPath, c.SigningKeyFingerprint)
}

// fetchSigningKey tries each configured keyserver in order until one returns
// the armored key for the configured fingerprint.
func (c *Config) fetchSigningKey(ctx context.Context, dest string) error {
	var lastErr error
	for _, ks := range c.KeyServers {
		lookup := fmt.Sprintf("%s/pks/lookup?op=get&options=mr&search=0x%s",
			ks, url.QueryEscape(c.SigningKeyFingerprint))
		if err := downloadFile(ctx, lookup, dest); err != nil {
			log.Warnf("Keyserver %s: %v", ks, err)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("unable to fetch signing key %s from any keyserver: %w",
		c.SigningKeyFingerprint, lastErr)
}

// verifySignature checks the detached signature sig over signed against
// keyring and requires the signer's primary key fingerprint to match
// fingerprint.  Both binary and armored detached signatures are accepted.
func verifySignature(keyring openpgp.EntityList, signed, sig []byte, fingerprint string) error {
	signer, err := openpgp.CheckDetachedSignature(keyring,
		bytes.NewReader(signed), bytes.NewReader(sig))
	if err != nil {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring,
			bytes.NewReader(signed), bytes.NewReader(sig))
	}
	if err != nil {
		return err
	}
	fpr := hex.EncodeToString(signer.PrimaryKey.Fingerprint[:])
	if !strings.EqualFold(fpr, fingerprint) {
		return fmt.Errorf("signed by %s, expected %s", fpr, fingerprint)
	}
	return nil
}

// hashFile returns the hex encoded sha256 digest of the named file.
func hashFile(name string) (string, error) {
	fi, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("unable to open release archive: %w", err)
	}
	defer fi.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, fi); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// downloadFile fetches url into dest.  The download is written to a
// temporary file first so a partial download never masquerades as a cached
// artifact on a later run.
func downloadFile(ctx context.Context, url, dest string) error {
	log.Infof("Downloading %s", url)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp := dest + ".part"
	fi, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	_, err = io.Copy(fi, resp.Body)
	if cerr := fi.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download of %s failed: %w", url, err)
	}
	return os.Rename(tmp, dest)
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
