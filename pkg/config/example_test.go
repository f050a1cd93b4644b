package config_test

import (
	"fmt"

	"github.com/wonny/sigapi/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	if err := cfg.API.Validate(); err != nil {
		fmt.Printf("API not configured: %v\n", err)
		return
	}

	fmt.Printf("API: %s\n", cfg.API.BaseURL)
	fmt.Printf("Wait timeout: %v\n", cfg.API.WaitTimeout)
	fmt.Printf("Upload workers: %d\n", cfg.Platform.Workers)
}
