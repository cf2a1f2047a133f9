// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/capricoinofficial/coldstakepool/release"
	"github.com/decred/dcrd/dcrutil/v2"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "coldstakepool-prepare.log"
	defaultMode        = modeMaster

	defaultBinDirname = "capricoinplus-binaries"
	defaultDaemonBin  = "capricoinplusd"
	defaultCLIBin     = "capricoinplus-cli"
	defaultTxBin      = "capricoinplus-tx"
	poolDirname       = "stakepool"
)

const (
	modeMaster   = "master"
	modeObserver = "observer"
)

var (
	defaultDataDir = dcrutil.AppDataDir("capricoinplus", false)
	homeDir        = filepath.Dir(defaultDataDir)
	defaultBinDir  = filepath.Join(homeDir, defaultBinDirname)
)

// config defines the configuration options for the prepare tool.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion          bool   `short:"v" long:"version" description:"Display version information and exit"`
	UpdateCore           bool   `long:"update_core" description:"Download, verify and extract the capricoinplus-core release and exit"`
	DownloadCore         bool   `long:"download_core" description:"Download and verify the capricoinplus-core release and exit"`
	DataDir              string `long:"datadir" description:"Path to the capricoinplus data directory (default ~/.capricoinplus)"`
	PoolDir              string `long:"pooldir" description:"Path to the stake pool data directory (default {datadir}/stakepool)"`
	MainNet              bool   `long:"mainnet" description:"Use the main network"`
	TestNet              bool   `long:"testnet" description:"Use the test network"`
	RegTest              bool   `long:"regtest" description:"Use the regression test network"`
	StakeWalletMnemonic  string `long:"stake_wallet_mnemonic" description:"Recovery phrase to use for the staking wallet, default is randomly generated"`
	RewardWalletMnemonic string `long:"reward_wallet_mnemonic" description:"Recovery phrase to use for the reward wallet, default is randomly generated"`
	Mode                 string `long:"mode" description:"Mode the stake pool is initialised to {master, observer}; observer mode requires configurl"`
	ConfigURL            string `long:"configurl" description:"URL to pull the stake pool config from when initialising for observer mode"`
	DebugLevel           string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	// Release describes the daemon release to fetch and verify.  It is
	// assembled from defaults and CAPRICOINPLUS_* environment overrides.
	Release *release.Config

	// dataDirDefaulted records whether the data directory came from the
	// default rather than the command line, which decides how the default
	// pool directory is namespaced per chain.
	dataDirDefaulted bool
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// getenvDefault returns the value of the named environment variable, or def
// when it is unset or empty.
func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// releaseConfigFromEnv builds the release configuration from defaults and
// CAPRICOINPLUS_* environment overrides.  An optional .env file in the
// working directory is loaded first so deployments can pin overrides next to
// the tool.
func releaseConfigFromEnv() *release.Config {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	return &release.Config{
		BinDir:                cleanAndExpandPath(getenvDefault("CAPRICOINPLUS_BINDIR", defaultBinDir)),
		DaemonBin:             getenvDefault("CAPRICOINPLUSD", defaultDaemonBin),
		CLIBin:                getenvDefault("CAPRICOINPLUS_CLI", defaultCLIBin),
		TxBin:                 getenvDefault("CAPRICOINPLUS_TX", defaultTxBin),
		Version:               getenvDefault("CAPRICOINPLUS_VERSION", release.DefaultVersion),
		VersionTag:            getenvDefault("CAPRICOINPLUS_VERSION_TAG", release.DefaultVersionTag),
		Arch:                  getenvDefault("CAPRICOINPLUS_ARCH", release.DefaultArch),
		Repo:                  getenvDefault("CAPRICOINPLUS_REPO", release.DefaultRepo),
		SigningKeyFingerprint: getenvDefault("CAPRICOINPLUS_SIGNING_KEY", release.DefaultSigningKeyFingerprint),
		KeyServers:            release.DefaultKeyServers,
	}
}

// poolDirPath returns the pool directory to use for the given data directory
// and chain.  When the data directory was left at its default, the pool
// directory is namespaced under the chain subdirectory the daemon itself
// uses for non-mainnet data.
func poolDirPath(dataDir string, dataDirDefaulted bool, chain string) string {
	if dataDirDefaulted && chain != "mainnet" {
		return filepath.Join(dataDir, chain, poolDirname)
	}
	return filepath.Join(dataDir, poolDirname)
}

// selectNetParams maps the network selection flags to chain parameters.
// Multiple networks can't be selected simultaneously.
func selectNetParams(mainNet, testNet, regTest bool) (*chainParams, error) {
	numNets := 0
	params := &mainNetParams
	if mainNet {
		numNets++
	}
	if testNet {
		numNets++
		params = &testNetParams
	}
	if regTest {
		numNets++
		params = &regTestParams
	}
	if numNets > 1 {
		return nil, fmt.Errorf("the mainnet, testnet and regtest params " +
			"can't be used together -- choose one of the three")
	}
	return params, nil
}

// loadConfig initializes and parses the config using command line options and
// environment variables.
//
// The configuration proceeds as follows:
//	1) Start with a default config with sane settings
//	2) Parse CLI options and overwrite/add any specified options
//	3) Apply CAPRICOINPLUS_* environment overrides for the release settings
//
// Unrecognized flags are warned about and otherwise ignored.  Help and
// version requests exit directly with a zero status.
func loadConfig() (*config, error) {
	cfg := config{
		Mode:       defaultMode,
		DebugLevel: defaultLogLevel,
	}

	parser := flags.NewParser(&cfg,
		flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if cfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Initialize console logging before anything needs to be reported.
	if !validLogLevel(cfg.DebugLevel) {
		return nil, fmt.Errorf("the specified debug level [%v] is invalid",
			cfg.DebugLevel)
	}
	setLogLevels(cfg.DebugLevel)

	for _, arg := range remainingArgs {
		log.Warnf("Unknown argument %s", arg)
	}

	activeNetParams, err = selectNetParams(cfg.MainNet, cfg.TestNet,
		cfg.RegTest)
	if err != nil {
		return nil, err
	}

	if cfg.Mode != modeMaster && cfg.Mode != modeObserver {
		return nil, fmt.Errorf("unknown value for mode: %s", cfg.Mode)
	}
	if cfg.Mode == modeObserver && cfg.ConfigURL == "" {
		return nil, fmt.Errorf("observer mode requires configurl set")
	}

	cfg.Release = releaseConfigFromEnv()

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
		cfg.dataDirDefaulted = true
	} else {
		cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	}
	if cfg.PoolDir == "" {
		cfg.PoolDir = poolDirPath(cfg.DataDir, cfg.dataDirDefaulted,
			netName(activeNetParams))
	} else {
		cfg.PoolDir = cleanAndExpandPath(cfg.PoolDir)
	}

	return &cfg, nil
}
