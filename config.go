package main

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"schedule-board/storage"
)

const (
	rolePrimary = "primary"
	roleStream  = "stream"

	backendNone   = "none"
	backendSQLite = "sqlite"
	backendTables = "tables"
)

type config struct {
	debug         bool
	listenAddr    string
	role          string
	sessionBuffer int

	backend     string
	sqlitePath  string
	storageConn string
	tasksTable  string
	changeQueue string
	writer      storage.WriterConfig

	redisConn   string
	relayChan   string
	relayPrefix string

	seedFile string
}

func loadConfig() config {
	cfg := config{
		listenAddr:    ":5000",
		role:          rolePrimary,
		sessionBuffer: 256,
		backend:       backendNone,
		sqlitePath:    "board.sqlite3",
		storageConn:   os.Getenv("STORAGE_CONNECTION_STRING"),
		tasksTable:    os.Getenv("TASKS_TABLE"),
		changeQueue:   os.Getenv("CHANGE_QUEUE"),
		writer: storage.WriterConfig{
			Workers:        4,
			Buffer:         1024,
			Timeout:        30 * time.Second,
			HandoffTimeout: 15 * time.Millisecond,
		},
		redisConn:   os.Getenv("REDIS_CONNECTION_STRING"),
		relayChan:   "board-updates",
		relayPrefix: "board:",
		seedFile:    os.Getenv("SEED_FILE"),
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.debug = true
	}
	if val, ok := os.LookupEnv("BOARD_PORT"); ok {
		cfg.listenAddr = ":" + val
	}
	if v := os.Getenv("BOARD_ROLE"); v != "" {
		cfg.role = strings.ToLower(v)
	}
	if cfg.role != rolePrimary && cfg.role != roleStream {
		log.Fatalf("invalid BOARD_ROLE %q: must be %s or %s", cfg.role, rolePrimary, roleStream)
	}
	cfg.sessionBuffer = positiveInt("SESSION_BUFFER", cfg.sessionBuffer)

	if v := os.Getenv("PERSIST_BACKEND"); v != "" {
		cfg.backend = strings.ToLower(v)
	}
	switch cfg.backend {
	case backendNone, backendSQLite, backendTables:
	default:
		log.Fatalf("invalid PERSIST_BACKEND %q", cfg.backend)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.sqlitePath = v
	}
	if cfg.backend == backendTables && (cfg.storageConn == "" || cfg.tasksTable == "") {
		log.Fatal("missing storage config")
	}
	if cfg.changeQueue != "" && cfg.storageConn == "" {
		log.Fatal("CHANGE_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	cfg.writer.Workers = positiveInt("PERSIST_WORKERS", cfg.writer.Workers)
	cfg.writer.Buffer = positiveInt("PERSIST_BUFFER", cfg.writer.Buffer)
	cfg.writer.Timeout = positiveDuration("PERSIST_TIMEOUT", cfg.writer.Timeout)
	cfg.writer.HandoffTimeout = positiveDuration("PERSIST_HANDOFF_TIMEOUT", cfg.writer.HandoffTimeout)

	if v := os.Getenv("RELAY_CHANNEL"); v != "" {
		cfg.relayChan = v
	}
	if v, ok := os.LookupEnv("RELAY_KEY_PREFIX"); ok {
		cfg.relayPrefix = v
	}
	if cfg.role == roleStream && cfg.redisConn == "" {
		log.Fatal("missing redis config")
	}
	return cfg
}

func positiveInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	if n <= 0 {
		log.Fatalf("invalid %s: must be greater than zero", name)
	}
	return n
}

func positiveDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

// redisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
