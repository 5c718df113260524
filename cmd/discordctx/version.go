package main

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"
