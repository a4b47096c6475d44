package main

import (
	"flag"
	"fmt"
	"strings"
)

// gatewayConfig holds the flag-derived settings for the SIP and RTP
// side of the process. The remote-service side is configured separately
// via voicelive.ConfigFromEnv.
type gatewayConfig struct {
	listenAddr string
	username   string
	domain     string
	rtpHost    string
	rtpPortMin int
	rtpPortMax int
	debug      bool
}

func parseFlags() gatewayConfig {
	var cfg gatewayConfig
	flag.StringVar(&cfg.listenAddr, "listen", "0.0.0.0:5060", "SIP listen address")
	flag.StringVar(&cfg.username, "user", "gateway", "Username for the From/Contact URI")
	flag.StringVar(&cfg.domain, "domain", "localhost", "Domain for the From/Contact URI")
	flag.StringVar(&cfg.rtpHost, "rtp-host", "0.0.0.0", "Local host to bind the RTP socket to when -listen names no specific host (otherwise the -listen host is used)")
	flag.IntVar(&cfg.rtpPortMin, "rtp-port-min", 20000, "Lower bound of the RTP port range")
	flag.IntVar(&cfg.rtpPortMax, "rtp-port-max", 20010, "Upper bound of the RTP port range")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable verbose SIP/RTP logging")
	flag.Parse()
	return cfg
}

func (c gatewayConfig) contactURI() string {
	host := c.domain
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("sip:%s@%s", c.username, hostOnly(c.listenAddr, host))
}

func hostOnly(listenAddr, fallback string) string {
	if listenAddr == "" {
		return fallback
	}
	idx := strings.LastIndex(listenAddr, ":")
	if idx <= 0 {
		return fallback
	}
	host := listenAddr[:idx]
	if host == "0.0.0.0" || host == "" {
		return fallback
	}
	return host
}
