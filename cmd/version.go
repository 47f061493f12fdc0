package cmd

// Version is set at build time:
// go build -ldflags "-X github.com/xkilldash9x/phonepilot/cmd.Version=1.0.0"
var Version = "0.1.0"
