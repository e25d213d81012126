package pausor

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/viant/afs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/approval"
	storegorm "github.com/viant/pausor/service/approval/store/gorm"
	storememory "github.com/viant/pausor/service/approval/store/memory"
	"github.com/viant/pausor/service/event"
	"github.com/viant/pausor/service/resume"
	"github.com/viant/pausor/service/state"
	statedb "github.com/viant/pausor/service/state/db"
	statefs "github.com/viant/pausor/service/state/fs"
	stateredis "github.com/viant/pausor/service/state/redis"
)

// Service is the engine façade wiring every component once at construction;
// backend selection happens here, never at request time.
type Service struct {
	store           approval.Store
	state           state.Backend
	codec           *codec.Service
	codecTypes      []interface{}
	checkpoints     model.Checkpoints
	engine          resume.Engine
	approvalOptions []approval.Option

	approvals   *approval.Service
	resume      *resume.Service
	broadcaster *event.Broadcaster[approval.Event]

	sweepInterval time.Duration
	stopSweeps    func()
	stopEvents    context.CancelFunc
}

// New creates an engine with in-memory defaults, suitable for embedding and
// tests. Use NewFromConfig for configuration-driven backend selection.
func New(options ...Option) *Service {
	ret := &Service{sweepInterval: time.Minute}
	for _, option := range options {
		option(ret)
	}
	ret.ensureBaseSetup()
	return ret
}

func (s *Service) ensureBaseSetup() {
	if s.codec == nil {
		s.codec = codec.New(codec.WithTypes(s.codecTypes...))
	}
	if s.store == nil {
		s.store = storememory.New()
	}
	if s.state == nil {
		s.state = statefs.New("mem://localhost/pausor")
	}
	approvalOptions := append([]approval.Option{approval.WithCodec(s.codec)}, s.approvalOptions...)
	if s.engine != nil {
		s.resume = resume.New(s.state, s.codec, s.engine)
		approvalOptions = append(approvalOptions, approval.WithResumer(s.resume))
	}
	s.approvals = approval.New(s.store, s.state, approvalOptions...)
	s.broadcaster = event.NewBroadcaster[approval.Event](s.approvals.Events())
}

// NewFromConfig creates an engine with backends selected by the supplied
// configuration.
func NewFromConfig(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{sweepInterval: config.Sweep.Interval}
	for _, option := range options {
		option(ret)
	}

	var db *gorm.DB
	var err error
	switch config.Store.Driver {
	case "sqlite", "postgres":
		db, err = openDB(config.Store)
		if err != nil {
			return nil, err
		}
		if ret.store == nil {
			if ret.store, err = storegorm.New(db); err != nil {
				return nil, err
			}
		}
	}

	if ret.state == nil {
		switch config.State.Backend {
		case "db":
			if ret.state, err = statedb.New(db); err != nil {
				return nil, err
			}
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     config.State.RedisAddr,
				Password: config.State.RedisPassword,
				DB:       config.State.RedisDB,
			})
			if err = client.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("failed to connect redis at %v: %w", config.State.RedisAddr, err)
			}
			ret.state = stateredis.New(client)
		default:
			baseURL := config.State.BaseURL
			if baseURL == "" {
				baseURL = DefaultConfig().State.BaseURL
			}
			ret.state = statefs.New(baseURL)
		}
	}

	if config.State.TTL > 0 {
		ret.approvalOptions = append(ret.approvalOptions, approval.WithSnapshotTTL(config.State.TTL))
	}
	if ret.engine == nil && config.Engine != "" {
		ret.engine = resume.NewHTTPEngine(config.Engine)
	}
	if len(ret.checkpoints) == 0 && config.Checkpoints != "" {
		data, err := afs.New().DownloadWithURL(ctx, config.Checkpoints)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoints from %v: %w", config.Checkpoints, err)
		}
		if ret.checkpoints, err = model.LoadCheckpoints(data); err != nil {
			return nil, err
		}
	}
	ret.ensureBaseSetup()
	return ret, nil
}

func openDB(config StoreConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch config.Driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(config.DSN), gormConfig)
	case "postgres":
		return gorm.Open(postgres.Open(config.DSN), gormConfig)
	}
	return nil, fmt.Errorf("unsupported store driver %q", config.Driver)
}

// Approvals returns the approval service.
func (s *Service) Approvals() *approval.Service { return s.approvals }

// Resume returns the resumption service, or nil when no engine is wired.
func (s *Service) Resume() *resume.Service { return s.resume }

// Broadcaster returns the lifecycle event broadcaster.
func (s *Service) Broadcaster() *event.Broadcaster[approval.Event] { return s.broadcaster }

// Codec returns the snapshot codec.
func (s *Service) Codec() *codec.Service { return s.codec }

// Checkpoints returns the configured checkpoint definitions.
func (s *Service) Checkpoints() model.Checkpoints { return s.checkpoints }

// Start launches the event fan-out loop and the periodic sweeps.
func (s *Service) Start(ctx context.Context) {
	if s.stopEvents != nil {
		return
	}
	eventCtx, cancel := context.WithCancel(ctx)
	s.stopEvents = cancel
	go s.broadcaster.Run(eventCtx)
	if s.sweepInterval > 0 {
		s.stopSweeps = approval.RunSweeps(ctx, s.approvals, s.sweepInterval)
	}
}

// Shutdown stops the background loops; in-flight requests stay persisted.
func (s *Service) Shutdown() {
	if s.stopSweeps != nil {
		s.stopSweeps()
		s.stopSweeps = nil
	}
	if s.stopEvents != nil {
		s.stopEvents()
		s.stopEvents = nil
	}
}
