package main

import (
	"github.com/zhanBoss/claude-pulse/internal/cli"
)

func main() {
	cli.Execute()
}
