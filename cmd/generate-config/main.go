package main

import (
	"os"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/config"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := yaml.NewEncoder(os.Stdout).Encode(config.DefaultConfig()); err != nil {
		panic(err)
	}
}
