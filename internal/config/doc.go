// Package config loads settings from the environment.
//
// Each backend has its own XConfig struct and NewXConfigFromEnv constructor so
// that a binary only requires the variables of the backends it uses. LoadEnv
// fills the environment from a .env file first.
package config
