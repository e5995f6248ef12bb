package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bpowers/chainstore/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config path] <create|stats> <directory>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to a store config YAML file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	args := flag.Args()
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	cmd, dir := args[0], args[1]

	cfg := store.Config{Directory: dir}
	if *configPath != "" {
		loaded, err := store.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("chainstore-inspect.load_config")
		}
		cfg = loaded
		cfg.Directory = dir
	}

	s := store.New(cfg)

	switch cmd {
	case "create":
		if err := s.Create(); err != nil {
			log.Fatal().Err(err).Msg("chainstore-inspect.create")
		}
	case "stats":
		if err := s.Open(); err != nil {
			log.Fatal().Err(err).Msg("chainstore-inspect.open")
		}
		defer s.Close()

		fmt.Printf("blocks:       %d\n", s.Block.Len())
		fmt.Printf("transactions: %d\n", s.Transaction.Len())
	default:
		usage()
		os.Exit(2)
	}
}
