// Package logger provides structured logging for streamkit using zerolog.
//
// Library packages never log through a global: they accept a *Logger and
// fall back to Nop(). Binaries build one from Config.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "flowctl").WithComponent("pipeline")
//	log.Info("run finished", logger.Fields("items", 100))
package logger
