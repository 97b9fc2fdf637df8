package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/util/sanitize"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// serversYAML is the on-disk YAML layout.
type serversYAML struct {
	Servers []models.Server `yaml:"servers"`
}

// LoadServers reads a server list from a CSV or YAML file, chosen by extension.
// Server names must be unique.
//
// CSV columns (header row required):
//
//	name,address,port,ae_title,checked[,scheme,path_prefix,calling_ae_title]
func LoadServers(path string) ([]models.Server, error) {
	var (
		servers []models.Server
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		servers, err = loadServersYAML(path)
	case ".csv", "":
		servers, err = loadServersCSV(path)
	default:
		return nil, fmt.Errorf("unsupported server list format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	names := make(map[string]int, len(servers))
	for i := range servers {
		if err := ValidateServer(servers[i]); err != nil {
			return nil, fmt.Errorf("server %d (%s): %w", i+1, servers[i].Name, err)
		}
		if first, dup := names[servers[i].Name]; dup {
			return nil, fmt.Errorf("server %d: duplicate server name %q (first used by server %d)", i+1, servers[i].Name, first)
		}
		names[servers[i].Name] = i + 1
	}
	return servers, nil
}

// ValidateServer checks a single server descriptor.
func ValidateServer(s models.Server) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid server: %w", err)
	}
	return nil
}

func loadServersYAML(path string) ([]models.Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}
	var doc serversYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse server list YAML: %w", err)
	}
	return doc.Servers, nil
}

func loadServersCSV(path string) ([]models.Server, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server list: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read server list CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Map header names to column positions
	cols := make(map[string]int)
	for i, h := range records[0] {
		cols[strings.ToLower(sanitize.Field(h))] = i
	}
	for _, required := range []string{"name", "address", "port", "ae_title"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("server list CSV missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return sanitize.Field(rec[i])
	}

	servers := make([]models.Server, 0, len(records)-1)
	for line, rec := range records[1:] {
		if len(rec) == 0 || (len(rec) == 1 && sanitize.Field(rec[0]) == "") {
			continue
		}
		port, err := strconv.Atoi(field(rec, "port"))
		if err != nil {
			return nil, fmt.Errorf("server list line %d: invalid port %q", line+2, field(rec, "port"))
		}
		checked := true
		if v := field(rec, "checked"); v != "" {
			checked = parseBool(v)
		}
		servers = append(servers, models.Server{
			Name:           field(rec, "name"),
			Address:        field(rec, "address"),
			Port:           port,
			CalledAETitle:  field(rec, "ae_title"),
			CallingAETitle: field(rec, "calling_ae_title"),
			Checked:        checked,
			Scheme:         field(rec, "scheme"),
			PathPrefix:     field(rec, "path_prefix"),
		})
	}
	return servers, nil
}

// SaveServers writes a server list, choosing the format by extension.
func SaveServers(path string, servers []models.Server) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := yaml.Marshal(serversYAML{Servers: servers})
		if err != nil {
			return fmt.Errorf("failed to encode server list: %w", err)
		}
		return os.WriteFile(path, data, 0600)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create server list: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()
	if err := w.Write([]string{"name", "address", "port", "ae_title", "checked", "scheme", "path_prefix", "calling_ae_title"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range servers {
		rec := []string{s.Name, s.Address, strconv.Itoa(s.Port), s.CalledAETitle,
			strconv.FormatBool(s.Checked), s.Scheme, s.PathPrefix, s.CallingAETitle}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write server %s: %w", s.Name, err)
		}
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes" || v == "y"
}

// ServerList is the server configuration provider consumed by the orchestrator.
type ServerList struct {
	servers        []models.Server
	callingAETitle string
	local          models.LocalStorage
}

// NewServerList wraps servers with the calling-side parameters from cfg.
func NewServerList(servers []models.Server, cfg *Config) *ServerList {
	return &ServerList{
		servers:        servers,
		callingAETitle: cfg.CallingAETitle,
		local:          cfg.LocalStorage(),
	}
}

// All returns every configured server in file order.
func (l *ServerList) All() []models.Server {
	out := make([]models.Server, len(l.servers))
	copy(out, l.servers)
	return out
}

// CheckedServers returns the checked subset in file order.
func (l *ServerList) CheckedServers() []models.Server {
	var out []models.Server
	for _, s := range l.servers {
		if s.Checked {
			out = append(out, s)
		}
	}
	return out
}

// Parameters returns the last server configured under name.
func (l *ServerList) Parameters(name string) (models.Server, bool) {
	for i := len(l.servers) - 1; i >= 0; i-- {
		if l.servers[i].Name == name {
			return l.servers[i], true
		}
	}
	return models.Server{}, false
}

// SetChecked checks exactly the named servers. Unknown names are an error.
func (l *ServerList) SetChecked(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := l.Parameters(n); !ok {
			return fmt.Errorf("unknown server: %s", n)
		}
		want[n] = true
	}
	for i := range l.servers {
		l.servers[i].Checked = want[l.servers[i].Name]
	}
	return nil
}

// CallingAETitle returns the global calling AE title.
func (l *ServerList) CallingAETitle() string {
	return l.callingAETitle
}

// LocalStorage returns move destination title and calling port.
func (l *ServerList) LocalStorage() models.LocalStorage {
	return l.local
}
