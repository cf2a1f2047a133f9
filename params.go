// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// chainParams groups the per-network settings the prepare tool needs: the
// chain selector written to capricoinplus.conf, the prefix applied to
// per-chain wallet= keys, and the ports used for the block notification
// socket and the pool HTML server.
type chainParams struct {
	Name         string
	WalletPrefix string
	ZMQPort      int
	HTMLPort     int
}

// mainNetParams contains settings specific to the main network.
var mainNetParams = chainParams{
	Name:         "mainnet",
	WalletPrefix: "",
	ZMQPort:      207922,
	HTMLPort:     9000,
}

// testNetParams contains settings specific to the test network.
var testNetParams = chainParams{
	Name:         "testnet",
	WalletPrefix: "test.",
	ZMQPort:      208922,
	HTMLPort:     9001,
}

// regTestParams contains settings specific to the regression test network.
var regTestParams = chainParams{
	Name:         "regtest",
	WalletPrefix: "regtest.",
	ZMQPort:      208922,
	HTMLPort:     9001,
}

// activeNetParams is a pointer to the parameters specific to the currently
// active network.
var activeNetParams = &mainNetParams

// netName returns the name used when referring to the network, which is also
// the directory the daemon namespaces non-mainnet data under.
func netName(params *chainParams) string {
	return params.Name
}
