// Package config binds BEARS-TP's small CLI surface through pflag and
// viper, following sun977-NeoScan's internal/config loader pattern (flag
// defaults, BEARSTP_*-prefixed environment overrides, no config file since
// BEARS-TP has nothing worth externalizing beyond its handful of flags).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultPort is the UDP port both binaries bind/dial when -p is omitted
// (spec.md §6: "-p PORT (default 33122)" for both sender and receiver).
const DefaultPort = 33122

// Sender holds every flag BEARS-TP's sender binary accepts.
type Sender struct {
	Host        string
	Port        int
	File        string
	Timeout     int // seconds
	Debug       bool
	LogFile     string
	MetricsAddr string
}

// Receiver holds every flag BEARS-TP's receiver binary accepts.
type Receiver struct {
	Port        int
	OutDir      string
	IdleTimeout int // seconds
	Debug       bool
	LogFile     string
	MetricsAddr string
}

// newViper builds a viper instance reading BEARSTP_*-prefixed environment
// variables over flag defaults, matching NeoAgent's env-prefix convention.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("BEARSTP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}
	return v, nil
}

// ParseSender parses args (typically os.Args[1:]) into a Sender config.
func ParseSender(args []string) (Sender, error) {
	fs := pflag.NewFlagSet("bears-sender", pflag.ContinueOnError)
	fs.StringP("host", "a", "127.0.0.1", "receiver host to send to")
	fs.IntP("port", "p", DefaultPort, "receiver UDP port")
	fs.StringP("file", "f", "", "path to the file to transfer (stdin if empty)")
	fs.Int("timeout", 10, "retransmit timeout in seconds")
	fs.BoolP("debug", "d", false, "enable debug logging")
	fs.String("log-file", "", "also write rotated logs to this path")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")

	if err := fs.Parse(args); err != nil {
		return Sender{}, err
	}
	v, err := newViper(fs)
	if err != nil {
		return Sender{}, err
	}

	return Sender{
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		File:        v.GetString("file"),
		Timeout:     v.GetInt("timeout"),
		Debug:       v.GetBool("debug"),
		LogFile:     v.GetString("log-file"),
		MetricsAddr: v.GetString("metrics-addr"),
	}, nil
}

// ParseReceiver parses args into a Receiver config.
func ParseReceiver(args []string) (Receiver, error) {
	fs := pflag.NewFlagSet("bears-receiver", pflag.ContinueOnError)
	fs.IntP("port", "p", DefaultPort, "UDP port to listen on")
	fs.String("out-dir", ".", "directory to write received files into")
	fs.IntP("idle-timeout", "t", 10, "connection idle eviction timeout in seconds")
	fs.BoolP("debug", "d", false, "enable debug logging")
	fs.String("log-file", "", "also write rotated logs to this path")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")

	if err := fs.Parse(args); err != nil {
		return Receiver{}, err
	}
	v, err := newViper(fs)
	if err != nil {
		return Receiver{}, err
	}

	return Receiver{
		Port:        v.GetInt("port"),
		OutDir:      v.GetString("out-dir"),
		IdleTimeout: v.GetInt("idle-timeout"),
		Debug:       v.GetBool("debug"),
		LogFile:     v.GetString("log-file"),
		MetricsAddr: v.GetString("metrics-addr"),
	}, nil
}
