// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cspcli provides methods that perform capricoinplus RPC procedure
// calls through the capricoinplus-cli binary.
package cspcli

import (
	"context"
	"encoding/json"
)

// Caller provides a client interface to perform RPC remote procedure calls
// against a running capricoinplusd instance.
type Caller interface {
	// Call performs the remote procedure call defined by method and waits
	// for a response.  A non-empty wallet scopes the call to the named
	// wallet.  Args provides positional parameters for the call.  Res
	// must be a pointer to a struct, slice, map or string to unmarshal a
	// result (if any), or nil if no result is needed.
	Call(ctx context.Context, wallet, method string, res interface{}, args ...string) error
}

// RPC provides methods for calling capricoinplus RPCs without exposing the
// details of the underlying transport.
type RPC struct {
	Caller
}

// New creates a new RPC client instance from a caller.
func New(caller Caller) *RPC {
	return &RPC{caller}
}

// BlockchainInfo describes the subset of the getblockchaininfo result the
// prepare tool cares about.
type BlockchainInfo struct {
	Chain  string `json:"chain"`
	Blocks int64  `json:"blocks"`
}

// GetBlockchainInfo returns the current state of the block chain.  It doubles
// as the readiness probe for a freshly started daemon.
func (r *RPC) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	res := &BlockchainInfo{}
	if err := r.Call(ctx, "", "getblockchaininfo", res); err != nil {
		return nil, err
	}
	return res, nil
}

// mnemonicResult models the result of the mnemonic new RPC.
type mnemonicResult struct {
	Mnemonic string `json:"mnemonic"`
}

// MnemonicNew requests a freshly generated recovery phrase from the daemon.
func (r *RPC) MnemonicNew(ctx context.Context) (string, error) {
	res := &mnemonicResult{}
	if err := r.Call(ctx, "", "mnemonic", res, "new"); err != nil {
		return "", err
	}
	return res.Mnemonic, nil
}

// ExtKeyImportMaster imports a recovery phrase into the named wallet as its
// master extended key.
func (r *RPC) ExtKeyImportMaster(ctx context.Context, wallet, mnemonic string) error {
	return r.Call(ctx, wallet, "extkeyimportmaster", nil, mnemonic)
}

// GetNewAddress derives a new receiving address from the named wallet.
func (r *RPC) GetNewAddress(ctx context.Context, wallet string) (string, error) {
	var res string
	if err := r.Call(ctx, wallet, "getnewaddress", &res); err != nil {
		return "", err
	}
	return res, nil
}

// ValidateAddressResult models the fields of the validateaddress result used
// by the prepare tool.
type ValidateAddressResult struct {
	IsValid          bool   `json:"isvalid"`
	Address          string `json:"address"`
	StakeOnlyAddress string `json:"stakeonly_address"`
}

// ValidateAddress returns information about an address.  When altVersions is
// set the daemon also reports alternative encodings of the address, including
// its stake-only form.
func (r *RPC) ValidateAddress(ctx context.Context, address string, altVersions bool) (*ValidateAddressResult, error) {
	args := []string{address}
	if altVersions {
		args = append(args, "true")
	}
	res := &ValidateAddressResult{}
	if err := r.Call(ctx, "", "validateaddress", res, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// ImportAddress registers an address with the named wallet as watch-only.
// No private key is involved.
func (r *RPC) ImportAddress(ctx context.Context, wallet, address string) error {
	return r.Call(ctx, wallet, "importaddress", nil, address)
}

// StakingOptions are the walletsettings stakingoptions fields the prepare
// tool sets.  The daemon expects the enabled flag as a string.
type StakingOptions struct {
	Enabled       string `json:"enabled,omitempty"`
	RewardAddress string `json:"rewardaddress,omitempty"`
}

// WalletSettingsStaking applies staking options to the named wallet.
func (r *RPC) WalletSettingsStaking(ctx context.Context, wallet string, opts *StakingOptions) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	return r.Call(ctx, wallet, "walletsettings", nil, "stakingoptions", string(b))
}

// DisableStaking turns staking off for the named wallet.
func (r *RPC) DisableStaking(ctx context.Context, wallet string) error {
	return r.WalletSettingsStaking(ctx, wallet, &StakingOptions{Enabled: "false"})
}

// SetRewardAddress routes all staking rewards of the named wallet to address.
func (r *RPC) SetRewardAddress(ctx context.Context, wallet, address string) error {
	return r.WalletSettingsStaking(ctx, wallet,
		&StakingOptions{RewardAddress: address})
}

// Stop asks the daemon to shut down, releasing its data directory lock.
func (r *RPC) Stop(ctx context.Context) error {
	return r.Call(ctx, "", "stop", nil)
}
