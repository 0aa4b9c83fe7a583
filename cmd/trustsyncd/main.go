package main

import (
	"github.com/safetrack/trustsync/app"
)

func main() {
	app.New(nil).Run()
}
