package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/backends"
	"github.com/fosdem/volstream/lib/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <config file>", os.Args[0])
	}
	cfg, err := config.Parse(os.Args[1])
	if err != nil {
		fmt.Printf("Config invalid: %s\n", err)
		os.Exit(1)
	}

	reg := codec.NewRegistry()
	if err := backends.RegisterAll(reg); err != nil {
		log.Fatal(err)
	}
	for _, dev := range cfg.Devices() {
		if _, ok := reg.Lookup(dev); !ok {
			fmt.Printf("Config invalid: no codec backend for device %q\n", dev)
			os.Exit(1)
		}
	}

	fmt.Print("Config valid!\n\n")

	fmt.Print(cfg)
}
