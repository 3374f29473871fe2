// vodqueue/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	BaseURL          string        `mapstructure:"BASE"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	DBPath           string        `mapstructure:"DB_PATH"`
	DownloadDir      string        `mapstructure:"DOWNLOAD_DIR"`
	ProgressInterval time.Duration `mapstructure:"PROGRESS_INTERVAL"`
	ResponseTimeout  time.Duration `mapstructure:"RESPONSE_TIMEOUT"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	UserAgent        string        `mapstructure:"USER_AGENT"`
	MinFreeDisk      int64         `mapstructure:"MIN_FREE_DISK"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

// Load reads defaults, then the config file, then VODQUEUE_* environment
// variables. An empty path searches the working directory and /etc/vodqueue/.
func Load(path string) (*Config, error) {
	vp := viper.New()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("DB_PATH", "data/tasks.db")
	vp.SetDefault("DOWNLOAD_DIR", "downloads")
	vp.SetDefault("PROGRESS_INTERVAL", "500ms")
	vp.SetDefault("RESPONSE_TIMEOUT", "30s")
	vp.SetDefault("SHUTDOWN_TIMEOUT", "5s")
	vp.SetDefault("USER_AGENT", "vodqueue/1.0")
	vp.SetDefault("MIN_FREE_DISK", "200MB")
	vp.SetDefault("LOG_LEVEL", "info")

	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName("vodqueue_config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/vodqueue/")
	}

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("VODQUEUE")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
