package cli

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindlens/mindlens/internal/changelog"
	"github.com/mindlens/mindlens/internal/changeset"
	"github.com/mindlens/mindlens/internal/compiler"
	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/notify"
	"github.com/mindlens/mindlens/internal/resolver"
	"github.com/mindlens/mindlens/internal/session"
	"github.com/mindlens/mindlens/internal/store"
)

// app wires the engines a command needs over one database handle. The
// session store is process-local: CLI invocations feed it from --session-file,
// the serve command keeps it live across requests.
type app struct {
	store     *store.Store
	sessions  *session.Store
	resolver  *resolver.Resolver
	changelog *changelog.Engine
	changeset *changeset.Engine
	registry  *compiler.Registry
}

// openApp builds the full engine stack. sink may be nil; it is only non-nil
// under serve, where changelog events fan out to websocket clients.
func openApp(opts *RootOptions, sink notify.Sink) (*app, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	sessions, err := session.Open(session.DefaultTTL)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open session store", err)
	}

	res := resolver.New(st, st, sessions)
	clog := changelog.New(st, changelog.NewStoreApplier(st), sink)
	cset := changeset.New(res, st, clog)

	return &app{
		store:     st,
		sessions:  sessions,
		resolver:  res,
		changelog: clog,
		changeset: cset,
		registry:  compiler.NewRegistry(),
	}, nil
}

func (a *app) Close() {
	if err := a.sessions.Close(); err != nil {
		slog.Error("error closing session store", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// sessionFile is the YAML shape accepted by --session-file: a session id and
// the experimental per-node states to load into the session tier.
//
//	session: exp-1
//	overrides:
//	  node-values-1: emphasize
//	  node-aesthetic-2: off
type sessionFile struct {
	Session   string            `yaml:"session"`
	Overrides map[string]string `yaml:"overrides"`
}

// loadSessionFile parses a session override file and loads its states into
// the session store. Returns the session id the file declares.
func loadSessionFile(sessions *session.Store, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read session file", err)
	}

	var sf sessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to parse session file", err)
	}
	if sf.Session == "" {
		return "", NewExitError(ExitCommandError, "session file must declare a session id")
	}
	if len(sf.Overrides) == 0 {
		return "", NewExitError(ExitCommandError, "session file declares no overrides")
	}

	for nodeID, state := range sf.Overrides {
		if err := sessions.Set(sf.Session, nodeID, lens.NodeState(state)); err != nil {
			return "", fmt.Errorf("load session file: node %s: %w", nodeID, err)
		}
	}
	return sf.Session, nil
}
