package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
}

type ProcessesFlags struct {
	CommandLine bool
	JSON        bool
}

// LaunchFlags Flag structs to decouple cobra from logic for testing.
type LaunchFlags struct {
	Timeout         time.Duration
	Follow          bool
	FollowGrace     time.Duration
	Verify          bool
	Describe        bool
	MetricsTextfile string
	JSON            bool
}

type ListAppsFlags struct {
	Search string
	All    bool
	JSON   bool
}
