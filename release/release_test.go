// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package release

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "release")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type assertFilenameTest struct {
	arch    string
	dirName string
	want    string
}

var assertFilenameTests = []assertFilenameTest{
	{"x86_64-linux-gnu.tar.gz", "linux",
		"capricoinplus-linux-0.18.1.7-build.assert"},
	{"aarch64-linux-gnu.tar.gz", "linux",
		"capricoinplus-linux-0.18.1.7-build.assert"},
	{"osx64.tar.gz", "osx-unsigned",
		"capricoinplus-osx-0.18.1.7-build.assert"},
	{"win64.zip", "win-unsigned",
		"capricoinplus-win-0.18.1.7-build.assert"},
	{"win64-setup.exe", "win-signed",
		"capricoinplus-win-signer-build.assert"},
}

func TestAssertFilename(t *testing.T) {
	for _, test := range assertFilenameTests {
		cfg := &Config{Version: "0.18.1.7", Arch: test.arch}
		dirName, _ := cfg.osNames()
		if dirName != test.dirName {
			t.Errorf("arch %s: expected gitian dir %s, got %s",
				test.arch, test.dirName, dirName)
		}
		if got := cfg.AssertFilename(); got != test.want {
			t.Errorf("arch %s: expected assert file %s, got %s",
				test.arch, test.want, got)
		}
	}
}

// newTestSigner generates a throwaway signing key.  1024 bit RSA keeps the
// test fast; key strength is irrelevant here.
func newTestSigner(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("Test Signer", "", "signer@example.com",
		&packet.Config{RSABits: 1024})
	if err != nil {
		t.Fatal(err)
	}
	// Serializing the private key self-signs the identities, which the
	// public key serialization below depends on.
	var scratch bytes.Buffer
	if err := entity.SerializePrivate(&scratch, nil); err != nil {
		t.Fatal(err)
	}
	return entity
}

// writeVerifyFixture lays out a release archive, matching assert file,
// detached signature and cached signing key in BinDir and returns the ready
// to use Config.
func writeVerifyFixture(t *testing.T, dir string, entity *openpgp.Entity, archive []byte) *Config {
	t.Helper()
	cfg := &Config{
		BinDir:  dir,
		Version: "0.18.1.7",
		Arch:    "x86_64-linux-gnu.tar.gz",
		SigningKeyFingerprint: hex.EncodeToString(
			entity.PrimaryKey.Fingerprint[:]),
	}

	if err := ioutil.WriteFile(cfg.ArchivePath(), archive, 0600); err != nil {
		t.Fatal(err)
	}

	digest := sha256.Sum256(archive)
	assertData := []byte(hex.EncodeToString(digest[:]) + "  " +
		cfg.ReleaseFilename() + "\n")
	if err := ioutil.WriteFile(cfg.AssertPath(), assertData, 0600); err != nil {
		t.Fatal(err)
	}

	var sig bytes.Buffer
	err := openpgp.DetachSign(&sig, entity, bytes.NewReader(assertData), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(cfg.SigPath(), sig.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	var pub bytes.Buffer
	aw, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(aw); err != nil {
		t.Fatal(err)
	}
	if err := aw.Close(); err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, signingKeyFilename)
	if err := ioutil.WriteFile(keyPath, pub.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	return cfg
}

func TestVerify(t *testing.T) {
	entity := newTestSigner(t)
	cfg := writeVerifyFixture(t, tempDir(t), entity, []byte("release bytes"))
	if err := cfg.Verify(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyHashNotInAssert(t *testing.T) {
	entity := newTestSigner(t)
	cfg := writeVerifyFixture(t, tempDir(t), entity, []byte("release bytes"))

	// Change the archive after the assert file was produced.
	err := ioutil.WriteFile(cfg.ArchivePath(), []byte("tampered"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Verify(context.Background())
	if err == nil {
		t.Fatal("expected verification to fail for a tampered archive")
	}
	if !strings.Contains(err.Error(), "not found in assert file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	entity := newTestSigner(t)
	dir := tempDir(t)
	cfg := writeVerifyFixture(t, dir, entity, []byte("release bytes"))

	// Grow the assert file after signing.  The release hash is still
	// present so the hash check passes, but the signature no longer
	// covers the content.
	fi, err := os.OpenFile(cfg.AssertPath(), os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fi.WriteString("injected line\n"); err != nil {
		t.Fatal(err)
	}
	fi.Close()

	err = cfg.Verify(context.Background())
	if err == nil {
		t.Fatal("expected verification to fail for a modified assert file")
	}
	if !strings.Contains(err.Error(), "signature verification failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyWrongSigner(t *testing.T) {
	entity := newTestSigner(t)
	cfg := writeVerifyFixture(t, tempDir(t), entity, []byte("release bytes"))
	cfg.SigningKeyFingerprint = "8BE6C158D381E7AA68095502B48A2245CFE7C482"

	err := cfg.Verify(context.Background())
	if err == nil {
		t.Fatal("expected verification to fail for an unexpected signer")
	}
}

func TestFetchSkipsExisting(t *testing.T) {
	entity := newTestSigner(t)
	cfg := writeVerifyFixture(t, tempDir(t), entity, []byte("release bytes"))
	// Unreachable keyservers and hosts: Fetch must not try any download
	// since every artifact is already on disk.
	cfg.Repo = "nonexistent"
	cfg.KeyServers = []string{"http://127.0.0.1:0"}

	if err := cfg.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
}
