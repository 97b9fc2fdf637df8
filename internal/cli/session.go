package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/dicomweb"
	qrhttp "github.com/rescale/rescale-qr/internal/http"
	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/progress"
	"github.com/rescale/rescale-qr/internal/qr"
	"github.com/rescale/rescale-qr/internal/ratelimit"
	"github.com/rescale/rescale-qr/internal/staging"
)

// session bundles what a query or retrieve command needs.
type session struct {
	cfg      *config.Config
	servers  *config.ServerList
	orch     *qr.Orchestrator
	reporter progress.Reporter
}

// loadConfig reads the config file and applies environment and flag overrides.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfigCSV(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.MergeWithFlags(callingAETitle, storageAETitle, storagePort, serversFile, destinationKind, destinationPath)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStaging opens the per-run staging store.
func openStaging() (qr.StagingStore, error) {
	s, err := staging.Open(staging.MemoryDSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newSession loads the server list and wires the DICOMweb client into an
// orchestrator. When only is non-empty, exactly those servers are checked.
func newSession(cfg *config.Config, only []string) (*session, error) {
	log := GetLogger()

	list, err := config.LoadServers(cfg.ServersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers from %s: %w", cfg.ServersFile, err)
	}
	servers := config.NewServerList(list, cfg)
	if len(only) > 0 {
		if err := servers.SetChecked(only); err != nil {
			return nil, err
		}
	}
	if len(servers.CheckedServers()) == 0 {
		return nil, fmt.Errorf("no servers selected: check %s or pass --server", cfg.ServersFile)
	}

	if qrhttp.NeedsProxyPassword(cfg) {
		pw, err := promptPassword(fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
		if err != nil {
			return nil, err
		}
		cfg.ProxyPassword = pw
	}

	httpClient, err := qrhttp.NewRetryClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	client := dicomweb.NewClient(httpClient, ratelimit.NewRegistry(cfg.ServerRequestsPerSecond), log)

	return &session{
		cfg:     cfg,
		servers: servers,
		orch: qr.New(qr.Options{
			Querier:   client,
			Retriever: client,
			Servers:   servers,
			OpenStore: openStaging,
			Logger:    log,
		}),
		reporter: progress.New(os.Stderr),
	}, nil
}

// follow renders the orchestrator's events and routes interrupts to it
// until the returned function is called.
func (s *session) follow() func() {
	stop := progress.Follow(s.orch.Bus(), s.reporter)
	setActiveRun(s.orch.Cancel)
	return func() {
		setActiveRun(nil)
		stop()
		s.reporter.Wait()
	}
}

// query runs one query and returns the studies to offer for retrieval,
// one row per study as reported by its owner.
func (s *session) query(ctx context.Context, filters models.Filters) (*qr.QueryResult, []models.Study, error) {
	GetLogger().Info().Str("filters", filters.String()).Int("servers", len(s.servers.CheckedServers())).Msg("Starting query")

	done := s.follow()
	res, err := s.orch.RunQuery(ctx, filters, nil)
	done()
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.orch.Store().Studies(ctx)
	if err != nil {
		return res, nil, fmt.Errorf("failed to read staged results: %w", err)
	}
	return res, ownedStudies(res.Index, rows), nil
}

// ownedStudies picks, for each UID in discovery order, the row reported by
// the study's owner.
func ownedStudies(idx *qr.StudyIndex, rows []models.Study) []models.Study {
	byKey := make(map[string]models.Study, len(rows))
	for _, r := range rows {
		byKey[r.StudyInstanceUID+"\x00"+r.Server] = r
	}

	out := make([]models.Study, 0, idx.Len())
	for _, uid := range idx.UIDs() {
		qc, ok := idx.Owner(uid)
		if !ok {
			continue
		}
		if r, ok := byKey[uid+"\x00"+qc.Server]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, models.Study{StudyInstanceUID: uid, Server: qc.Server})
	}
	return out
}

func (s *session) close() {
	if err := s.orch.Close(); err != nil {
		GetLogger().Warn().Err(err).Msg("Failed to release staging store")
	}
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("proxy password required: set RESCALE_QR_PROXY_PASSWORD")
	}
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
