package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type config struct {
	Title     string
	Listeners map[string]listener
	Zones     []zone
}

type listener struct {
	Address    string
	Protocol   string
	AllowedNet []string `toml:"allowed-net"`
}

type zone struct {
	Origin string
	Stores []store
}

// One store in a zone's chain. Which fields apply depends on Type; the store
// order in the config is the dispatch order.
type store struct {
	Type string

	// file and bolt stores
	File        string
	AXFRAllowed bool `toml:"axfr-allowed"`

	// forward stores
	Address   string
	Protocol  string
	Timeout   duration
	CacheSize int `toml:"cache-size"`

	// blocklist stores
	Lists            []string
	RootDir          string `toml:"root-dir"`
	WildcardMatch    bool   `toml:"wildcard-match"`
	MinWildcardDepth int    `toml:"min-wildcard-depth"`
	Refresh          duration
	Watch            bool
	Policy           string `toml:"policy"`
	SinkholeAddress  string `toml:"sinkhole-address"`
	AllowFailure     bool   `toml:"allow-failure"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// LoadConfig reads a config file and returns the decoded structure.
func loadConfig(name string) (config, error) {
	var c config
	f, err := os.Open(name)
	if err != nil {
		return c, err
	}
	defer f.Close()
	_, err = toml.NewDecoder(f).Decode(&c)
	return c, err
}
