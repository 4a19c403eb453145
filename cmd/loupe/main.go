package main

import (
	"github.com/loupelabs/loupe/internal/cmd"
	"github.com/loupelabs/loupe/internal/version"
)

func main() {
	cmd.SetVersionInfo(version.Version, version.Commit, version.BuildDate)
	cmd.Execute()
}
