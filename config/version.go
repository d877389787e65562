package config

// Version is overridden at build time with -ldflags "-X menlo.ai/jan-feed-gateway/config.Version=..."
var Version = "dev"
