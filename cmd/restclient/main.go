package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/always-cache/restclient"
	"github.com/always-cache/restclient/cache"
	cachekey "github.com/always-cache/restclient/pkg/cache-key"
	decoder "github.com/always-cache/restclient/pkg/response-decoder"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	baseFlag           string
	methodFlag         string
	dataFlag           string
	outputFlag         string
	dbFilenameFlag     string
	prefixFlag         string
	memoryLimitFlag    int64
	ttlFlag            time.Duration
	compressFlag       bool
	noCacheFlag        bool
	listCacheFlag      bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&baseFlag, "base", "", "Base URL (overrides config)")
	flag.StringVar(&methodFlag, "X", "GET", "Method to use: GET, POST, PUT or DELETE")
	flag.StringVar(&dataFlag, "d", "", "URL-encoded data: query for GET, form for POST and PUT")
	flag.StringVar(&outputFlag, "output", "", "Output mode: recognize, raw, json or xml (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name (use 'memory' for in-memory db, empty for no cache)")
	flag.StringVar(&prefixFlag, "prefix", "", "Cache key prefix (overrides config)")
	flag.Int64Var(&memoryLimitFlag, "memory-limit", 0, "Cache memory limit in bytes (overrides config)")
	flag.DurationVar(&ttlFlag, "ttl", 0, "Cache time-to-live (overrides config)")
	flag.BoolVar(&compressFlag, "compress", false, "Compress cached responses")
	flag.BoolVar(&noCacheFlag, "no-cache", false, "Do not use the cache for this call")
	flag.BoolVar(&listCacheFlag, "list-cache", false, "List cached URLs and exit")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stderr)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.InfoLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// log to stderr so that stdout only has the response
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stderr})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var config Config
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}
	applyFlags(&config)

	if config.BaseURL == "" {
		log.Fatal().Msg("Please specify base URL")
	}
	mode, err := decoder.ParseOutputMode(config.Output)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output mode")
	}

	clientConfig := restclient.Config{
		BaseURL:          config.BaseURL,
		OutputMode:       mode,
		DisableCache:     config.Cache.Disabled,
		CacheKeyPrefix:   config.Cache.Prefix,
		CacheMemoryLimit: config.Cache.MemoryLimit,
		CacheTTL:         config.Cache.TTL,
		CacheCompression: config.Cache.Compression,
		Logger:           &log.Logger,
	}
	if provider := openCache(config.Cache.DB); provider != nil {
		defer provider.Close()
		clientConfig.Cache = provider
	}

	if listCacheFlag {
		if clientConfig.Cache == nil {
			log.Fatal().Msg("No cache configured")
		}
		if err := listCache(os.Stdout, clientConfig.Cache, config.Cache.Prefix); err != nil {
			log.Fatal().Err(err).Msg("Could not list cache")
		}
		return
	}

	path := flag.Arg(0)
	data, err := url.ParseQuery(dataFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse data")
	}

	client := restclient.New(clientConfig)
	res, err := call(context.Background(), client, methodFlag, path, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Request failed")
	}
	out, err := formatResult(res)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not format result")
	}
	fmt.Println(out)
	log.Debug().Int("status", res.StatusCode).Bool("cached", res.FromCache).Msg("Done")
}

// applyFlags overrides config file values with the flags that were set.
func applyFlags(config *Config) {
	if baseFlag != "" {
		config.BaseURL = baseFlag
	}
	if outputFlag != "" {
		config.Output = outputFlag
	}
	if dbFilenameFlag != "" {
		config.Cache.DB = dbFilenameFlag
	}
	if prefixFlag != "" {
		config.Cache.Prefix = prefixFlag
	}
	if memoryLimitFlag > 0 {
		config.Cache.MemoryLimit = memoryLimitFlag
	}
	if ttlFlag > 0 {
		config.Cache.TTL = ttlFlag
	}
	if compressFlag {
		config.Cache.Compression = true
	}
}

// openCache opens the SQLite cache, returning nil if none is configured or it cannot be opened.
func openCache(db string) *cache.SQLiteCache {
	if db == "" {
		return nil
	}
	// set up sqlite memory provider
	if db == "memory" {
		db = "file::memory:?cache=shared"
	}
	provider, err := cache.NewSQLiteCache(db)
	if err != nil {
		log.Warn().Err(err).Str("db", db).Msg("Could not open cache, continuing without")
		return nil
	}
	return &provider
}

func call(ctx context.Context, client *restclient.Client, method, path string, data url.Values) (restclient.Result, error) {
	switch strings.ToUpper(method) {
	case "GET":
		if noCacheFlag {
			return client.Get(ctx, path, data, restclient.WithoutCache())
		}
		return client.Get(ctx, path, data)
	case "POST":
		return client.Post(ctx, path, data)
	case "PUT":
		return client.Put(ctx, path, restclient.Form(data))
	case "DELETE":
		return client.Delete(ctx, path)
	default:
		return restclient.Result{}, fmt.Errorf("unsupported method %s", method)
	}
}

// formatResult renders decoded JSON indented and everything else as the raw body.
func formatResult(res restclient.Result) (string, error) {
	if res.Kind != decoder.KindJSON {
		return res.Raw, nil
	}
	bts, err := json.MarshalIndent(res.JSON, "", "  ")
	return string(bts), err
}

func listCache(w io.Writer, provider cache.CacheProvider, prefix string) error {
	keyer := cachekey.NewCacheKeyer(prefix)
	return provider.Keys(prefix, func(key string, size int64) {
		u, query, err := keyer.ParseKey(key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping foreign key")
			return
		}
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		fmt.Fprintf(w, "%8d %s\n", size, u)
	})
}
