// Package config loads and validates streamkit configuration.
//
// It uses Viper to read a config.yml (searched in the usual cmd/ and config/
// locations), a .env file through godotenv, and environment variables with
// the FLOW_ prefix and underscore-separated paths (FLOW_PIPELINE_CAPACITY
// overrides pipeline.capacity). Struct tags are checked with validator/v10.
//
// # Usage
//
//	var cfg config.Config
//	err := config.Load("flowctl", &cfg)
package config
