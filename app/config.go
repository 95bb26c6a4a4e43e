package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultRelays are connected to at startup when neither the command line nor
// the configuration file names any.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://nostr.wine",
	"wss://purplepag.es",
	"wss://temp.iris.to",
	"wss://relay.snort.social",
}

type InitCfg struct{}

type Config struct {
	InitCfgCmd *InitCfg `arg:"subcommand:initcfg" json:"-" help:"write the configuration file for the profile and exit"`
	Profile    string   `arg:"-p,--profile,env:BRIDGR_PROFILE" json:"-" default:"bridgr" help:"profile name to use for storage"`
	DataDir    string   `arg:"-D,--datadir" json:"data_dir,omitempty" help:"directory of the event store, defaults to the profile directory"`
	InMemory   bool     `arg:"--inmemory" json:"in_memory" help:"keep the event store in memory only"`
	// BlockCacheSize is the badger block cache in megabytes.
	BlockCacheSize int      `arg:"--blockcache" json:"block_cache_size" default:"64" validate:"gte=1" help:"size of the event store block cache in megabytes"`
	Relays         []string `arg:"-r,--relay,separate,env:BRIDGR_RELAYS" json:"relays" help:"relay to connect to at startup (can use flag repeatedly)"`
	// SuppressEOSE drops end of stored events notices instead of forwarding
	// them, for front ends that get flooded by one per relay.
	SuppressEOSE bool          `arg:"--suppress-eose" json:"suppress_eose" help:"do not forward EOSE notices from relays"`
	QueryLimit   int           `arg:"--querylimit" json:"query_limit" default:"1000" validate:"gte=1" help:"most events returned by one local store query"`
	IdleBackoff  time.Duration `arg:"--idle" json:"idle_backoff" default:"10ms" validate:"gt=0" help:"sleep between worker ticks when there is nothing to do"`
	RestartDelay time.Duration `arg:"--restartdelay" json:"restart_delay" default:"1s" validate:"gte=0" help:"wait before restarting the worker after a fault"`
	// RedialInterval is the least time between two connection attempts to the
	// same relay.
	RedialInterval time.Duration `arg:"--redial" json:"redial_interval" default:"15s" validate:"gt=0" help:"least time between two connection attempts to a relay"`
	QueueSize      int           `arg:"--queue" json:"queue_size" default:"1024" validate:"gte=1" help:"capacity of the command and output queues"`
	MetricsListen  string        `arg:"-m,--metrics" json:"metrics_listen,omitempty" help:"address to serve prometheus metrics on, empty disables"`
	LogLevel       string        `arg:"--loglevel,env:BRIDGR_LOGLEVEL" default:"info" json:"-" validate:"oneof=off fatal error warn info debug trace" help:"set log level [off,fatal,error,warn,info,debug,trace]"`
}

// Defaults is the configuration with every field as go-arg would fill it
// in from an empty command line.
func Defaults() *Config {
	return &Config{
		Profile:        "bridgr",
		BlockCacheSize: 64,
		Relays:         append([]string(nil), DefaultRelays...),
		QueryLimit:     1000,
		IdleBackoff:    10 * time.Millisecond,
		RestartDelay:   time.Second,
		RedialInterval: 15 * time.Second,
		QueueSize:      1024,
		LogLevel:       "info",
	}
}

// Merge fills in the fields of c left empty on the command line from the
// ones loaded from a configuration file.
func (c *Config) Merge(from *Config) {
	if c.DataDir == "" {
		c.DataDir = from.DataDir
	}
	// CLI args on "separate" items replace the ones in the config
	if len(c.Relays) == 0 {
		c.Relays = append(c.Relays, from.Relays...)
	}
	if c.MetricsListen == "" {
		c.MetricsListen = from.MetricsListen
	}
	if !c.SuppressEOSE {
		c.SuppressEOSE = from.SuppressEOSE
	}
	if !c.InMemory {
		c.InMemory = from.InMemory
	}
	// go-arg always fills these in, a default value counts as not given
	def := Defaults()
	mergeSet(&c.BlockCacheSize, def.BlockCacheSize, from.BlockCacheSize)
	mergeSet(&c.QueryLimit, def.QueryLimit, from.QueryLimit)
	mergeSet(&c.IdleBackoff, def.IdleBackoff, from.IdleBackoff)
	mergeSet(&c.RestartDelay, def.RestartDelay, from.RestartDelay)
	mergeSet(&c.RedialInterval, def.RedialInterval, from.RedialInterval)
	mergeSet(&c.QueueSize, def.QueueSize, from.QueueSize)
}

// mergeSet takes from when dst still holds the default and from is set.
func mergeSet[V comparable](dst *V, def, from V) {
	var zero V
	if *dst == def && from != zero {
		*dst = from
	}
}

// Validate checks the ranges of the numeric settings.
func (c *Config) Validate() (err error) {
	if err = validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return
}

func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil bridge config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); chk.D(err) {
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	return
}
