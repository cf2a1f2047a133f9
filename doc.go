// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// coldstakepool-prepare bootstraps a CapricoinPlus cold staking pool node.
//
// In order it:
//
//  1. Downloads and verifies a capricoinplus-core release.
//  2. Creates a capricoinplus.conf that starts the pool_stake and
//     pool_reward wallets, enables zmqpubhashblock, and enables csindex and
//     addressindex.
//  3. Generates and imports a recovery phrase for both wallets.
//  4. Generates the pool stake address from the staking wallet.  This is the
//     address pool participants set their outputs to stake with.
//  5. Generates the pool reward address from the reward wallet.  This is the
//     address that collects the rewards for blocks staked by the pool.
//  6. Disables staking on the reward wallet.
//  7. Sets the reward address of the staking wallet.
//  8. Creates the stakepool.json configuration file.
//
// Run the prepare tool:
//
//	coldstakepool-prepare --datadir=~/stakepoolDemoTest --testnet
//
// Start the daemon afterwards:
//
//	~/capricoinplus-binaries/capricoinplusd -datadir=~/stakepoolDemoTest
//
// In observer mode (--mode=observer --configurl=URL) no recovery phrases are
// generated; the operator's published pool config is fetched and the pool
// addresses are imported watch-only instead.
package main
