// Package config loads and validates the fabric's JSON configuration file:
// validate the raw bytes against a JSON Schema first, then decode them with
// encoding/json's DisallowUnknownFields.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sensormesh/fabric/internal/archive"
	"github.com/sensormesh/fabric/internal/opstelemetry"
)

// DataServer holds configuration for the data-server binary.
type DataServer struct {
	SubscribePort int                 `json:"subscribe-port"`
	UpdatePort    int                 `json:"update-port"`
	AdminAddr     string              `json:"admin-addr"`
	LogLevel      string              `json:"log-level"`
	LogDate       bool                `json:"log-date"`
	Gops          bool                `json:"gops"`
	User          string              `json:"user"`  // dropped privileges after binding, if set
	Group         string              `json:"group"` // dropped privileges after binding, if set
	OpsTelemetry  opstelemetry.Config `json:"ops-telemetry"`
}

// DataStore holds configuration for the data-store binary.
type DataStore struct {
	ServerAddr string   `json:"server-addr"` // data-server's subscribe port to connect to
	SeriesDir  string   `json:"series-dir"`
	AdminAddr  string   `json:"admin-addr"`
	LogLevel   string   `json:"log-level"`
	LogDate    bool     `json:"log-date"`
	Gops       bool     `json:"gops"`
	User       string   `json:"user"`
	Group      string   `json:"group"`
	DB         DBConfig `json:"db"`

	ErrorRetentionDays int            `json:"error-retention-days"`
	SeriesStaleDays    int            `json:"series-stale-days"`
	ArchiveIntervalMin int            `json:"archive-interval-minutes"`
	Archive            archive.Config `json:"archive"`
}

// DBConfig configures the durable log-store SQL backend.
type DBConfig struct {
	Driver string `json:"driver"` // "sqlite3" or "mysql"
	DSN    string `json:"dsn"`
}

const dataServerSchema = `{
  "type": "object",
  "properties": {
    "subscribe-port": {"type": "integer"},
    "update-port": {"type": "integer"},
    "admin-addr": {"type": "string"},
    "log-level": {"type": "string"},
    "log-date": {"type": "boolean"},
    "gops": {"type": "boolean"},
    "user": {"type": "string"},
    "group": {"type": "string"},
    "ops-telemetry": {"type": "object"}
  },
  "required": ["subscribe-port", "update-port"]
}`

const dataStoreSchema = `{
  "type": "object",
  "properties": {
    "server-addr": {"type": "string"},
    "series-dir": {"type": "string"},
    "admin-addr": {"type": "string"},
    "log-level": {"type": "string"},
    "log-date": {"type": "boolean"},
    "gops": {"type": "boolean"},
    "user": {"type": "string"},
    "group": {"type": "string"},
    "db": {"type": "object"},
    "error-retention-days": {"type": "integer"},
    "series-stale-days": {"type": "integer"},
    "archive-interval-minutes": {"type": "integer"},
    "archive": {"type": "object"}
  },
  "required": ["server-addr", "series-dir"]
}`

func validate(schemaSrc string, raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", bytes.NewReader([]byte(schemaSrc))); err != nil {
		return fmt.Errorf("config: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: parse for validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}
	return nil
}

// LoadDotEnv overlays OS environment from a .env file, using godotenv in
// the library call path (internal/runtimeEnv.LoadEnv is the CLI-flag path,
// used by the binaries directly). A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// LoadDataServer reads, schema-validates, and decodes a data-server config
// file.
func LoadDataServer(path string) (DataServer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DataServer{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := validate(dataServerSchema, raw); err != nil {
		return DataServer{}, err
	}

	cfg := DataServer{LogLevel: "info"}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DataServer{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDataStore reads, schema-validates, and decodes a data-store config
// file.
func LoadDataStore(path string) (DataStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DataStore{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := validate(dataStoreSchema, raw); err != nil {
		return DataStore{}, err
	}

	cfg := DataStore{
		LogLevel:           "info",
		DB:                 DBConfig{Driver: "sqlite3"},
		ErrorRetentionDays: 30,
		SeriesStaleDays:    7,
		ArchiveIntervalMin: 60,
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DataStore{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
