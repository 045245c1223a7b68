// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/spvwallet/chain"
	"github.com/btcsuite/spvwallet/wallet"
)

const (
	defaultDBFilename = "spvtx.db"
	defaultLogLevel   = "info"
	defaultNetwork    = "mainnet"
	defaultAccount    = 0
)

var (
	defaultAppDataDir = btcutil.AppDataDir("spvtx", false)
	defaultLogDir     = filepath.Join(defaultAppDataDir, "logs")

	errMissingXPub = errors.New("--xpub is required")
	errNoRPC       = errors.New("--rpc.host is required")
)

// rpcConfig holds the connection to a full node used for the chain height.
//
//nolint:lll
type rpcConfig struct {
	Host     string `long:"host" description:"Host:port of the node RPC server"`
	User     string `long:"user" description:"RPC username"`
	Pass     string `long:"pass" default-mask:"-" description:"RPC password"`
	CertPath string `long:"cert" description:"File containing the RPC server certificate"`
	NoTLS    bool   `long:"notls" description:"Disable TLS for the RPC connection"`
}

// config defines the global options of spvtx.
//
//nolint:lll
type config struct {
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the transaction database"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	Network    string `long:"network" description:"Bitcoin network" choice:"mainnet" choice:"testnet3" choice:"regtest" choice:"signet"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	XPub       string `long:"xpub" description:"Extended public key of the account (m/purpose'/coin'/account')"`
	Account    uint32 `long:"account" description:"Account number of --xpub"`

	RPC    *rpcConfig           `group:"Node RPC" namespace:"rpc"`
	Policy *wallet.PolicyConfig `group:"Policy" namespace:"policy"`

	params *chaincfg.Params
}

// defaultConfig returns the config before any option is parsed.
func defaultConfig() *config {
	policy := wallet.DefaultPolicyConfig()

	return &config{
		DataDir:    defaultAppDataDir,
		LogDir:     defaultLogDir,
		Network:    defaultNetwork,
		DebugLevel: defaultLogLevel,
		Account:    defaultAccount,
		RPC:        &rpcConfig{},
		Policy:     &policy,
	}
}

// networkParams returns the chain params of the named network.
func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// validate checks the parsed options and fills in derived values. The data
// and log directories are made network specific.
func (c *config) validate() error {
	params, err := networkParams(c.Network)
	if err != nil {
		return err
	}
	c.params = params

	if c.XPub == "" {
		return errMissingXPub
	}

	c.DataDir = filepath.Join(cleanAndExpandPath(c.DataDir), params.Name)
	c.LogDir = filepath.Join(cleanAndExpandPath(c.LogDir), params.Name)

	return nil
}

// dbPath returns the path of the transaction database.
func (c *config) dbPath() string {
	return filepath.Join(c.DataDir, defaultDBFilename)
}

// rpcHeightConfig returns the node connection of the chain height source.
func (c *config) rpcHeightConfig() (*chain.RPCConfig, error) {
	if c.RPC == nil || c.RPC.Host == "" {
		return nil, errNoRPC
	}

	conn := &rpcclient.ConnConfig{
		Host:         c.RPC.Host,
		User:         c.RPC.User,
		Pass:         c.RPC.Pass,
		DisableTLS:   c.RPC.NoTLS,
		HTTPPostMode: true,
	}

	if !c.RPC.NoTLS && c.RPC.CertPath != "" {
		cert, err := os.ReadFile(cleanAndExpandPath(c.RPC.CertPath))
		if err != nil {
			return nil, fmt.Errorf("read rpc certificate: %w", err)
		}
		conn.Certificates = cert
	}

	return &chain.RPCConfig{Conn: conn, Chain: c.params}, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or
	// ~otheruser to otheruser's home directory.
	path = path[1:]

	separators := string(os.PathSeparator)
	if runtime.GOOS == "windows" {
		separators += "/"
	}

	userName := ""
	if i := strings.IndexAny(path, separators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	var (
		u   *user.User
		err error
	)
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}

	homeDir := "."
	if err == nil && u.HomeDir != "" {
		homeDir = u.HomeDir
	}

	return filepath.Join(homeDir, path)
}
