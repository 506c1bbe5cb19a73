package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".deltacov"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. DELTACOV_REPORT_PREFIX.
const envPrefix = "DELTACOV"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// FlagKeys maps command-line flag names to configuration keys. A bound flag
// overrides the file and environment only when set on the command line.
var FlagKeys = map[string]string{
	"repo":                "repo",
	"since":               "since",
	"until":               "until",
	"threshold":           "threshold",
	"backend":             "backend",
	"workers":             "workers",
	"git-timeout":         "git_timeout",
	"report-dir":          "report.dir",
	"prefix":              "report.prefix",
	"missing-prefix":      "report.missing_prefix",
	"joiner":              "report.joiner",
	"output":              "report.output",
	"annotate":            "report.annotate",
	"html-absolute-paths": "report.absolute_links",
	"title":               "report.title",
	"ext":                 "filter.extensions",
	"include":             "filter.include",
	"exclude":             "filter.exclude",
	"skip-vendored":       "filter.skip_vendored",
	"print-summary":       "summary.print",
	"format":              "summary.format",
	"pushgateway":         "telemetry.pushgateway",
	"push-job":            "telemetry.push_job",
	"log-json":            "telemetry.log_json",
}

// LoadConfig loads configuration from defaults, the config file, DELTACOV_*
// environment variables and the flags of flags that were set, in increasing
// priority. If configPath is non-empty it names the config file; otherwise
// .deltacov.yaml is searched in the working directory and $HOME. A missing
// file is not an error. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	bindErr := bindFlags(viperCfg, flags)
	if bindErr != nil {
		return nil, bindErr
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("repo", DefaultRepo)
	viperCfg.SetDefault("since", "")
	viperCfg.SetDefault("until", "")
	viperCfg.SetDefault("threshold", DefaultThreshold)
	viperCfg.SetDefault("backend", DefaultBackend)
	viperCfg.SetDefault("workers", DefaultWorkers)
	viperCfg.SetDefault("git_timeout", DefaultGitTimeout)

	viperCfg.SetDefault("report.dir", DefaultReportDir)
	viperCfg.SetDefault("report.prefix", "")
	viperCfg.SetDefault("report.missing_prefix", DefaultMissingPrefix)
	viperCfg.SetDefault("report.joiner", DefaultJoiner)
	viperCfg.SetDefault("report.output", "")
	viperCfg.SetDefault("report.annotate", DefaultAnnotate)
	viperCfg.SetDefault("report.absolute_links", false)
	viperCfg.SetDefault("report.title", "")
	viperCfg.SetDefault("report.buckets.high", DefaultHighPercent)
	viperCfg.SetDefault("report.buckets.low", DefaultLowPercent)

	viperCfg.SetDefault("filter.extensions", []string{})
	viperCfg.SetDefault("filter.include", []string{})
	viperCfg.SetDefault("filter.exclude", []string{})
	viperCfg.SetDefault("filter.skip_vendored", false)

	viperCfg.SetDefault("summary.print", false)
	viperCfg.SetDefault("summary.format", DefaultSummaryFormat)

	viperCfg.SetDefault("telemetry.pushgateway", "")
	viperCfg.SetDefault("telemetry.push_job", DefaultPushJob)
	viperCfg.SetDefault("telemetry.log_json", false)
}
