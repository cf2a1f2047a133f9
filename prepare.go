// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/capricoinofficial/coldstakepool/daemon"
	"github.com/capricoinofficial/coldstakepool/pool"
	"github.com/capricoinofficial/coldstakepool/rpc/client/cspcli"
	"github.com/capricoinofficial/coldstakepool/signal"
)

// Names of the two wallets the daemon is configured to load.
const (
	walletStake  = "pool_stake"
	walletReward = "pool_reward"
)

// defaultStartHeight is written to new master configs.  Operators are
// expected to lower it to a block height before the pool begins operating.
const defaultStartHeight = 200000

// poolWallets holds the provisioning results for the two pool wallets.  The
// recovery phrases are only ever echoed to the operator, never persisted.
type poolWallets struct {
	StakeMnemonic  string
	RewardMnemonic string

	// StakeAddress is the stake-only form pool participants direct their
	// outputs to.  RewardAddress collects the rewards for blocks staked
	// by the pool.
	StakeAddress  string
	RewardAddress string
}

func runPrepare(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	rel := cfg.Release

	// Core-only invocations download (and for update_core also unpack)
	// the release without touching the data or pool directories.
	if cfg.DownloadCore || cfg.UpdateCore {
		if err := rel.Fetch(ctx); err != nil {
			return err
		}
		if err := rel.Verify(ctx); err != nil {
			return err
		}
		if !cfg.UpdateCore {
			return nil
		}
		if err := rel.Extract(); err != nil {
			return err
		}
		return rel.CheckVersion(ctx)
	}

	log.Info("Download and verify CapricoinPlus core release.")
	if err := rel.Fetch(ctx); err != nil {
		return err
	}
	if err := rel.Verify(ctx); err != nil {
		return err
	}
	if err := rel.Extract(); err != nil {
		return err
	}
	if err := rel.CheckVersion(ctx); err != nil {
		return err
	}

	log.Infof("Data dir: %s", cfg.DataDir)
	log.Infof("Pool dir: %s", cfg.PoolDir)
	if activeNetParams != &mainNetParams {
		log.Infof("Chain: %s", netName(activeNetParams))
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("unable to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.PoolDir, 0700); err != nil {
		return fmt.Errorf("unable to create pool directory: %w", err)
	}
	initLogRotator(filepath.Join(cfg.PoolDir, defaultLogDirname,
		defaultLogFilename))

	confOpts := &daemon.ConfOptions{
		Chain:        netName(activeNetParams),
		WalletPrefix: activeNetParams.WalletPrefix,
		ZMQPort:      activeNetParams.ZMQPort,
		Wallets:      []string{walletStake, walletReward},
	}
	if err := daemon.WriteConf(cfg.DataDir, confOpts); err != nil {
		return err
	}

	if err := daemon.Start(ctx, rel.BinDir, rel.DaemonBin, cfg.DataDir); err != nil {
		return err
	}

	chainArg := ""
	if activeNetParams != &mainNetParams {
		chainArg = netName(activeNetParams)
	}
	rpcc := cspcli.New(cspcli.NewCLI(rel.BinDir, rel.CLIBin, cfg.DataDir,
		chainArg))
	daemon.WaitReady(ctx, rpcc)

	var wallets poolWallets
	if err := provision(ctx, cfg, rpcc, &wallets); err != nil {
		return err
	}
	if cfg.Mode == modeObserver {
		log.Info("Done.")
		return nil
	}

	poolCfg := &pool.Config{
		Mode:          modeMaster,
		Debug:         true,
		BinDir:        rel.BinDir,
		DataDir:       cfg.DataDir,
		StartHeight:   defaultStartHeight,
		PoolAddress:   wallets.StakeAddress,
		RewardAddress: wallets.RewardAddress,
		ZMQHost:       "tcp://127.0.0.1",
		ZMQPort:       activeNetParams.ZMQPort,
		HTMLHost:      "localhost",
		HTMLPort:      activeNetParams.HTMLPort,
		Parameters:    pool.DefaultParameters(),
	}
	confPath := filepath.Join(cfg.PoolDir, pool.ConfigFilename)
	if err := pool.WriteFile(confPath, poolCfg); err != nil {
		return err
	}

	log.Info("NOTE: Save both recovery phrases:")
	log.Infof("Stake wallet recovery phrase: %s", wallets.StakeMnemonic)
	log.Infof("Reward wallet recovery phrase: %s", wallets.RewardMnemonic)
	log.Infof("Stake address: %s", wallets.StakeAddress)
	log.Infof("Reward address: %s", wallets.RewardAddress)

	log.Info("Done.")
	return nil
}

// provision runs the mode-specific wallet setup.  The daemon holds the data
// directory lock until it is told to stop, so the stop RPC must run on every
// exit path out of provisioning, including an interrupt; the stop call uses a
// fresh context for that reason.
func provision(ctx context.Context, cfg *config, rpcc *cspcli.RPC, w *poolWallets) error {
	defer func() {
		if err := rpcc.Stop(context.Background()); err != nil {
			log.Errorf("Unable to stop %s: %v", cfg.Release.DaemonBin, err)
		}
	}()
	if cfg.Mode == modeObserver {
		return prepareObserver(ctx, cfg, rpcc)
	}
	return prepareMaster(ctx, cfg, rpcc, w)
}

// prepareMaster provisions the two pool wallets from scratch or from
// supplied recovery phrases, derives the linked pool addresses and leaves the
// wallets in their terminal state: staking disabled on the reward wallet and
// the stake wallet's reward address routed to the reward wallet.
func prepareMaster(ctx context.Context, cfg *config, rpcc *cspcli.RPC, w *poolWallets) error {
	var err error

	w.StakeMnemonic = cfg.StakeWalletMnemonic
	if w.StakeMnemonic == "" {
		w.StakeMnemonic, err = rpcc.MnemonicNew(ctx)
		if err != nil {
			return fmt.Errorf("unable to generate stake wallet recovery "+
				"phrase: %w", err)
		}
	}
	w.RewardMnemonic = cfg.RewardWalletMnemonic
	if w.RewardMnemonic == "" {
		w.RewardMnemonic, err = rpcc.MnemonicNew(ctx)
		if err != nil {
			return fmt.Errorf("unable to generate reward wallet recovery "+
				"phrase: %w", err)
		}
	}

	err = rpcc.ExtKeyImportMaster(ctx, walletStake, w.StakeMnemonic)
	if err != nil {
		return fmt.Errorf("unable to import stake wallet recovery phrase: %w",
			err)
	}
	err = rpcc.ExtKeyImportMaster(ctx, walletReward, w.RewardMnemonic)
	if err != nil {
		return fmt.Errorf("unable to import reward wallet recovery phrase: %w",
			err)
	}

	stakeAddr, err := rpcc.GetNewAddress(ctx, walletStake)
	if err != nil {
		return fmt.Errorf("unable to derive pool stake address: %w", err)
	}
	v, err := rpcc.ValidateAddress(ctx, stakeAddr, true)
	if err != nil {
		return fmt.Errorf("unable to validate pool stake address: %w", err)
	}
	if v.StakeOnlyAddress == "" {
		return fmt.Errorf("no stake-only form reported for address %s",
			stakeAddr)
	}
	w.StakeAddress = v.StakeOnlyAddress

	w.RewardAddress, err = rpcc.GetNewAddress(ctx, walletReward)
	if err != nil {
		return fmt.Errorf("unable to derive pool reward address: %w", err)
	}

	if err := rpcc.DisableStaking(ctx, walletReward); err != nil {
		return fmt.Errorf("unable to disable staking on the reward "+
			"wallet: %w", err)
	}
	err = rpcc.SetRewardAddress(ctx, walletStake, w.RewardAddress)
	if err != nil {
		return fmt.Errorf("unable to set the stake wallet reward "+
			"address: %w", err)
	}
	return nil
}

// prepareObserver joins an existing pool read-only: it fetches the
// operator's published settings, imports the pool addresses watch-only, and
// writes the pool config with the local environment overlaid.  No recovery
// phrases are generated or imported.
func prepareObserver(ctx context.Context, cfg *config, rpcc *cspcli.RPC) error {
	log.Info("Preparing observer config.")

	settings, err := pool.FetchSettings(ctx, cfg.ConfigURL)
	if err != nil {
		return err
	}
	poolAddr, ok := settings["pooladdress"].(string)
	if !ok || poolAddr == "" {
		return fmt.Errorf("pool config from %s has no pooladdress",
			cfg.ConfigURL)
	}
	rewardAddr, ok := settings["rewardaddress"].(string)
	if !ok || rewardAddr == "" {
		return fmt.Errorf("pool config from %s has no rewardaddress",
			cfg.ConfigURL)
	}

	settings["mode"] = modeObserver
	settings["capricoinplusbindir"] = cfg.Release.BinDir
	settings["capricoinplusdatadir"] = cfg.DataDir

	v, err := rpcc.ValidateAddress(ctx, poolAddr, false)
	if err != nil {
		return fmt.Errorf("unable to validate pool stake address: %w", err)
	}
	if !v.IsValid {
		return fmt.Errorf("pool stake address %s is not valid", poolAddr)
	}

	if err := rpcc.ImportAddress(ctx, walletStake, v.Address); err != nil {
		return fmt.Errorf("unable to import pool stake address: %w", err)
	}
	if err := rpcc.ImportAddress(ctx, walletReward, rewardAddr); err != nil {
		return fmt.Errorf("unable to import pool reward address: %w", err)
	}

	confPath := filepath.Join(cfg.PoolDir, pool.ConfigFilename)
	return pool.WriteFile(confPath, settings)
}

func main() {
	// Create a context that is cancelled when a shutdown request is
	// received through an interrupt signal.
	ctx := signal.WithShutdownCancel(context.Background())
	go signal.ShutdownListener()
	if err := runPrepare(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
