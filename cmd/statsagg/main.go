package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/internal/util"
	"github.com/statsagg/statsagg/pkg/backends"
	"github.com/statsagg/statsagg/pkg/statsd"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamProfile enables profiler endpoint on the specified address and port.
	ParamProfile = "profile"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
)

func main() {
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.Info("Starting server")
	s, err := constructServer(v)
	if err != nil {
		return err
	}

	profileAddr := v.GetString(ParamProfile)
	if profileAddr != "" {
		go func() {
			logrus.Errorf("Profiler server failed: %v", http.ListenAndServe(profileAddr, nil))
		}()
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func constructServer(v *viper.Viper) (*statsd.Server, error) {
	backendNames := toSlice(v.GetString(statsagg.ParamBackends))
	backendList := make([]statsagg.Backend, len(backendNames))
	for i, backendName := range backendNames {
		b, err := backends.InitBackend(backendName, v)
		if err != nil {
			return nil, err
		}
		backendList[i] = b
	}

	s := statsd.NewServer()
	s.Backends = backendList
	s.MetricsHost = v.GetString(statsagg.ParamMetricsHost)
	s.MetricsPort = v.GetString(statsagg.ParamMetricsPort)
	s.ConsoleAddr = v.GetString(statsagg.ParamConsoleAddr)
	s.FlushInterval = v.GetDuration(statsagg.ParamFlushInterval)
	s.MaxReaders = v.GetInt(statsagg.ParamMaxReaders)
	s.MaxNameLen = v.GetInt(statsagg.ParamMaxNameLen)
	s.ReusePort = v.GetBool(statsagg.ParamReusePort)
	s.BadLinesPerSecond = v.GetFloat64(statsagg.ParamBadLinesPerSecond)
	s.DeleteCounters = v.GetBool(statsagg.ParamDeleteCounters)
	s.DeleteTimers = v.GetBool(statsagg.ParamDeleteTimers)
	s.DeleteGauges = v.GetBool(statsagg.ParamDeleteGauges)
	s.DeleteSets = v.GetBool(statsagg.ParamDeleteSets)
	s.Viper = v
	return s, nil
}

func toSlice(s string) []string {
	// Workaround for https://github.com/spf13/viper/issues/112
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	util.InitViper(v)

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamProfile, "", "Enable profiler endpoint on the specified address and port")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	statsagg.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	setupLogger(v) // setup logger from environment vars and flag defaults

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	setupLogger(v) // update logger with config from command line flags

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	setupLogger(v) // finally update logger with vars from config

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
