package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// StartFlags holds start-related flags
type StartFlags struct {
	Timeout time.Duration
}

// StopFlags holds stop-related flags
type StopFlags struct {
	Grace time.Duration
}
