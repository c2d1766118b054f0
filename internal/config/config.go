package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the exporter reads from the environment. Flags
// override these values in the commands.
type Config struct {
	Username     string
	Password     string
	DatabasePath string
	PageSize     int
	RateInterval time.Duration
	RateDir      string
	SSOHost      string
	ConnectHost  string
}

// SetDefaults registers config defaults with viper; called once from the root
// command.
func SetDefaults() {
	viper.SetEnvPrefix("GCEXPORT")
	viper.BindEnv("username")
	viper.BindEnv("password")
	viper.BindEnv("db_path")
	viper.BindEnv("page_size")
	viper.BindEnv("rate_interval")
	viper.BindEnv("rate_dir")
	viper.BindEnv("sso_host")
	viper.BindEnv("connect_host")

	viper.SetDefault("db_path", "gcexport.db")
	viper.SetDefault("page_size", 100)
	viper.SetDefault("rate_interval", "1s")
	viper.SetDefault("rate_dir", "")
	viper.SetDefault("sso_host", "https://sso.garmin.com")
	viper.SetDefault("connect_host", "https://connect.garmin.com")
}

// Load reads the current viper state into a Config.
func Load() *Config {
	return &Config{
		Username:     viper.GetString("username"),
		Password:     viper.GetString("password"),
		DatabasePath: viper.GetString("db_path"),
		PageSize:     viper.GetInt("page_size"),
		RateInterval: viper.GetDuration("rate_interval"),
		RateDir:      viper.GetString("rate_dir"),
		SSOHost:      viper.GetString("sso_host"),
		ConnectHost:  viper.GetString("connect_host"),
	}
}
