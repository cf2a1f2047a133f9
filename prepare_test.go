// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/capricoinofficial/coldstakepool/pool"
	"github.com/capricoinofficial/coldstakepool/release"
	"github.com/capricoinofficial/coldstakepool/rpc/client/cspcli"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "prepare")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// scriptedCall is one expected RPC in a scripted provisioning run.  res is
// the JSON result returned on a match, err forces the call to fail instead.
type scriptedCall struct {
	wallet string
	method string
	args   string
	res    string
	err    error
}

// scriptCaller fails the test on any call that deviates from its script in
// order, wallet, method or args.
type scriptCaller struct {
	t      *testing.T
	script []scriptedCall
	idx    int
}

func (c *scriptCaller) Call(_ context.Context, wallet, method string, res interface{}, args ...string) error {
	c.t.Helper()
	if c.idx >= len(c.script) {
		c.t.Fatalf("unexpected call %q %s %s", wallet, method,
			strings.Join(args, " "))
	}
	want := c.script[c.idx]
	c.idx++
	if wallet != want.wallet || method != want.method ||
		strings.Join(args, " ") != want.args {
		c.t.Fatalf("call %d: expected %q %s %s, got %q %s %s", c.idx,
			want.wallet, want.method, want.args, wallet, method,
			strings.Join(args, " "))
	}
	if want.err != nil {
		return want.err
	}
	if res != nil && want.res != "" {
		if err := json.Unmarshal([]byte(want.res), res); err != nil {
			c.t.Fatal(err)
		}
	}
	return nil
}

// done reports whether every scripted call was consumed.
func (c *scriptCaller) done() bool {
	return c.idx == len(c.script)
}

func TestProvisionMaster(t *testing.T) {
	cfg := &config{
		Mode:                 modeMaster,
		StakeWalletMnemonic:  "abandon stake phrase",
		RewardWalletMnemonic: "abandon reward phrase",
		Release:              &release.Config{DaemonBin: defaultDaemonBin},
	}
	caller := &scriptCaller{t: t, script: []scriptedCall{
		{walletStake, "extkeyimportmaster", "abandon stake phrase", "", nil},
		{walletReward, "extkeyimportmaster", "abandon reward phrase", "", nil},
		{walletStake, "getnewaddress", "", `"PstakeAddr"`, nil},
		{"", "validateaddress", "PstakeAddr true",
			`{"isvalid":true,"address":"PstakeAddr","stakeonly_address":"CstakeAddr"}`,
			nil},
		{walletReward, "getnewaddress", "", `"PrewardAddr"`, nil},
		{walletReward, "walletsettings",
			`stakingoptions {"enabled":"false"}`, "", nil},
		{walletStake, "walletsettings",
			`stakingoptions {"rewardaddress":"PrewardAddr"}`, "", nil},
		{"", "stop", "", "", nil},
	}}

	var w poolWallets
	err := provision(context.Background(), cfg, cspcli.New(caller), &w)
	if err != nil {
		t.Fatal(err)
	}
	if !caller.done() {
		t.Errorf("expected %d calls, got %d", len(caller.script), caller.idx)
	}
	if w.StakeAddress != "CstakeAddr" {
		t.Errorf("expected stake-only pool address, got %q", w.StakeAddress)
	}
	if w.RewardAddress != "PrewardAddr" {
		t.Errorf("unexpected reward address %q", w.RewardAddress)
	}
	if w.StakeAddress == "" || w.StakeAddress == w.RewardAddress {
		t.Errorf("pool and reward addresses must be distinct and non-empty, "+
			"got %q and %q", w.StakeAddress, w.RewardAddress)
	}
}

func TestProvisionMasterGeneratedMnemonics(t *testing.T) {
	cfg := &config{
		Mode:    modeMaster,
		Release: &release.Config{DaemonBin: defaultDaemonBin},
	}
	caller := &scriptCaller{t: t, script: []scriptedCall{
		{"", "mnemonic", "new", `{"mnemonic":"fresh stake phrase"}`, nil},
		{"", "mnemonic", "new", `{"mnemonic":"fresh reward phrase"}`, nil},
		{walletStake, "extkeyimportmaster", "fresh stake phrase", "", nil},
		{walletReward, "extkeyimportmaster", "fresh reward phrase", "", nil},
		{walletStake, "getnewaddress", "", `"PstakeAddr"`, nil},
		{"", "validateaddress", "PstakeAddr true",
			`{"isvalid":true,"address":"PstakeAddr","stakeonly_address":"CstakeAddr"}`,
			nil},
		{walletReward, "getnewaddress", "", `"PrewardAddr"`, nil},
		{walletReward, "walletsettings",
			`stakingoptions {"enabled":"false"}`, "", nil},
		{walletStake, "walletsettings",
			`stakingoptions {"rewardaddress":"PrewardAddr"}`, "", nil},
		{"", "stop", "", "", nil},
	}}

	var w poolWallets
	err := provision(context.Background(), cfg, cspcli.New(caller), &w)
	if err != nil {
		t.Fatal(err)
	}
	if !caller.done() {
		t.Errorf("expected %d calls, got %d", len(caller.script), caller.idx)
	}
	if w.StakeMnemonic != "fresh stake phrase" {
		t.Errorf("unexpected stake recovery phrase %q", w.StakeMnemonic)
	}
	if w.RewardMnemonic != "fresh reward phrase" {
		t.Errorf("unexpected reward recovery phrase %q", w.RewardMnemonic)
	}
}

func TestProvisionObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"pooladdress":"PstakeAddr",` +
				`"rewardaddress":"PrewardAddr","startheight":1000,` +
				`"operatornote":"hello"}`))
		}))
	defer srv.Close()

	dir := tempDir(t)
	cfg := &config{
		Mode:      modeObserver,
		ConfigURL: srv.URL,
		DataDir:   "/data/.capricoinplus",
		PoolDir:   dir,
		Release: &release.Config{
			BinDir:    "/opt/capricoinplus/bin",
			DaemonBin: defaultDaemonBin,
		},
	}
	caller := &scriptCaller{t: t, script: []scriptedCall{
		{"", "validateaddress", "PstakeAddr",
			`{"isvalid":true,"address":"PstakeAddr"}`, nil},
		{walletStake, "importaddress", "PstakeAddr", "", nil},
		{walletReward, "importaddress", "PrewardAddr", "", nil},
		{"", "stop", "", "", nil},
	}}

	err := provision(context.Background(), cfg, cspcli.New(caller), &poolWallets{})
	if err != nil {
		t.Fatal(err)
	}
	if !caller.done() {
		t.Errorf("expected %d calls, got %d", len(caller.script), caller.idx)
	}

	data, err := ioutil.ReadFile(filepath.Join(dir, pool.ConfigFilename))
	if err != nil {
		t.Fatal(err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		t.Fatal(err)
	}
	if settings["mode"] != modeObserver {
		t.Errorf("expected observer mode, got %v", settings["mode"])
	}
	if settings["capricoinplusbindir"] != "/opt/capricoinplus/bin" {
		t.Errorf("bin dir not overlaid: %v", settings["capricoinplusbindir"])
	}
	if settings["capricoinplusdatadir"] != "/data/.capricoinplus" {
		t.Errorf("data dir not overlaid: %v", settings["capricoinplusdatadir"])
	}
	if settings["operatornote"] != "hello" {
		t.Errorf("fetched field dropped: %v", settings["operatornote"])
	}
	if bytes.Contains(bytes.ToLower(data), []byte("mnemonic")) {
		t.Error("observer config must not carry recovery phrase fields")
	}
}

func TestProvisionStopsOnError(t *testing.T) {
	cfg := &config{
		Mode:                 modeMaster,
		StakeWalletMnemonic:  "abandon stake phrase",
		RewardWalletMnemonic: "abandon reward phrase",
		Release:              &release.Config{DaemonBin: defaultDaemonBin},
	}
	caller := &scriptCaller{t: t, script: []scriptedCall{
		{walletStake, "extkeyimportmaster", "abandon stake phrase", "",
			errors.New("wallet locked")},
		{"", "stop", "", "", nil},
	}}

	err := provision(context.Background(), cfg, cspcli.New(caller), &poolWallets{})
	if err == nil {
		t.Fatal("expected the provisioning error to propagate")
	}
	if !strings.Contains(err.Error(), "wallet locked") {
		t.Errorf("unexpected error: %v", err)
	}
	// The stop RPC must still have run, exactly once.
	if !caller.done() {
		t.Errorf("expected %d calls, got %d", len(caller.script), caller.idx)
	}
}
