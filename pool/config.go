// Copyright (c) 2020 The Capricoin+ Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pool defines the stake pool configuration file consumed by the
// pool daemon, and helpers to write it and to fetch an operator's published
// settings when joining a pool as an observer.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// ConfigFilename is the pool configuration file name within the pool
// directory.
const ConfigFilename = "stakepool.json"

// Parameters is one fee parameter record.  A pool config carries an ordered
// list of these; each record takes effect from its activation height.
type Parameters struct {
	Height                   int64   `json:"height"`
	PoolFeePercent           float64 `json:"poolfeepercent"`
	StakeBonusPercent        float64 `json:"stakebonuspercent"`
	PayoutThreshold          float64 `json:"payoutthreshold"`
	MinBlocksBetweenPayments int64   `json:"minblocksbetweenpayments"`
	MinOutputValue           float64 `json:"minoutputvalue"`
}

// Config is the on-disk stake pool configuration.
type Config struct {
	Mode          string       `json:"mode"`
	Debug         bool         `json:"debug"`
	BinDir        string       `json:"capricoinplusbindir"`
	DataDir       string       `json:"capricoinplusdatadir"`
	StartHeight   int64        `json:"startheight"`
	PoolAddress   string       `json:"pooladdress"`
	RewardAddress string       `json:"rewardaddress"`
	ZMQHost       string       `json:"zmqhost"`
	ZMQPort       int          `json:"zmqport"`
	HTMLHost      string       `json:"htmlhost"`
	HTMLPort      int          `json:"htmlport"`
	Parameters    []Parameters `json:"parameters"`
}

// DefaultParameters returns the fee parameters a new master pool starts
// with: a single record active from height 0.
func DefaultParameters() []Parameters {
	return []Parameters{
		{
			Height:                   0,
			PoolFeePercent:           3,
			StakeBonusPercent:        5,
			PayoutThreshold:          0.5,
			MinBlocksBetweenPayments: 100,
			MinOutputValue:           0.1,
		},
	}
}

// WriteFile writes settings to path as indented JSON.  The file is
// write-once: a pre-existing file is never overwritten and aborts the run.
func WriteFile(path string, settings interface{}) error {
	if fileExists(path) {
		return fmt.Errorf("%s exists, refusing to overwrite", path)
	}
	b, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	log.Infof("Writing %s", path)
	fi, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	_, err = fi.Write(b)
	if cerr := fi.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// FetchSettings downloads a published pool configuration from url.  The
// document is decoded into a map so fields this tool does not know about
// survive the local overlay and land in the written config unchanged.
func FetchSettings(ctx context.Context, url string) (map[string]interface{}, error) {
	log.Infof("Fetching pool config from %s", url)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	var settings map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("unable to parse pool config from %s: %w",
			url, err)
	}
	return settings, nil
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
