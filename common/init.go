package common

import (
	"flag"
	"time"
)

// StartTime is the unix timestamp the process came up, reported by the status
// endpoint.
var StartTime = time.Now().Unix()

var (
	Port         = flag.Int("port", 3000, "the listening port")
	PrintVersion = flag.Bool("version", false, "print version and exit")
)

var Version = "v0.1.0"

func Init() {
	flag.Parse()
}
