// Package config resolves a node's runtime configuration from CLI flags,
// environment variables, and an optional .env file, in that order of
// precedence — flags win, then the environment, then .env, then a built-in
// default.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// Config holds everything a node needs to start.
type Config struct {
	// ListenAddr is the bootstrap WebSocket listener's bind address when
	// this node is acting as the rendezvous host for a new peer (":0" picks
	// a free port).
	ListenAddr string
	// JoinURL is another node's bootstrap WebSocket URL to dial when this
	// node is joining an existing ring rather than starting one.
	JoinURL string
	// AdminAddr is the JSON-RPC admin server's bind address.
	AdminAddr string
	// AdminToken gates the admin server; empty disables auth.
	AdminToken string
	// RedisURL points at an optional value cache; empty disables caching.
	RedisURL string
	// StabilizeInterval overrides the stabilization loop's ticker period.
	StabilizeInterval time.Duration
	// KeyPair is this node's long-term identity.
	KeyPair *identity.KeyPair
	// SessionTTL bounds how long the session key minted at startup stays
	// valid; zero means it never expires.
	SessionTTL time.Duration
	// Debug enables verbose logging.
	Debug bool
}

// Load parses args with its own "ringsnode" flag set (not flag.CommandLine)
// and falls back to environment variables, loading a .env file first if one is present in
// the working directory. A missing .env file is not an error — godotenv is
// only a convenience for local development.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	fs := flag.NewFlagSet("ringsnode", flag.ContinueOnError)
	listenAddr := fs.String("listen", envOr("RINGS_LISTEN_ADDR", ":0"), "bootstrap websocket bind address")
	joinURL := fs.String("join", envOr("RINGS_JOIN_URL", ""), "bootstrap websocket URL of an existing node to join")
	adminAddr := fs.String("admin", envOr("RINGS_ADMIN_ADDR", "127.0.0.1:0"), "admin JSON-RPC bind address")
	adminToken := fs.String("admin-token", envOr("RINGS_ADMIN_TOKEN", ""), "admin JSON-RPC bearer token")
	redisURL := fs.String("redis", envOr("RINGS_REDIS_URL", ""), "optional redis URL for the DHT value cache")
	keyHex := fs.String("key", envOr("RINGS_NODE_KEY", ""), "hex-encoded 32-byte secp256k1 private key; a fresh key is generated if omitted")
	stabilizeInterval := fs.Duration("stabilize-interval", envDurationOr("RINGS_STABILIZE_INTERVAL", 3*time.Second), "stabilization loop tick interval")
	sessionTTL := fs.Duration("session-ttl", envDurationOr("RINGS_SESSION_TTL", 0), "session key lifetime, 0 for no expiry")
	debug := fs.Bool("debug", envBoolOr("RINGS_DEBUG", false), "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	keyPair, err := loadOrGenerateKey(*keyHex)
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenAddr:        *listenAddr,
		JoinURL:           *joinURL,
		AdminAddr:         *adminAddr,
		AdminToken:        *adminToken,
		RedisURL:          *redisURL,
		StabilizeInterval: *stabilizeInterval,
		KeyPair:           keyPair,
		SessionTTL:        *sessionTTL,
		Debug:             *debug,
	}, nil
}

func loadOrGenerateKey(hexKey string) (*identity.KeyPair, error) {
	if hexKey == "" {
		return identity.GenerateKeyPair()
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("config: decode node key: %w", err)
	}
	return identity.KeyPairFromBytes(raw)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
