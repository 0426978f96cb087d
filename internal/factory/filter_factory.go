package factory

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/adapters/nativemsg"
	"github.com/devscan/linkshield/internal/config"
	"github.com/devscan/linkshield/internal/ports"
)

// FilterFactory creates link filters based on configuration
type FilterFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	host   *nativemsg.Host
	engine nativemsg.Engine
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, host *nativemsg.Host, engine nativemsg.Engine) *FilterFactory {
	return &FilterFactory{
		cfg:    cfg,
		logger: logger,
		host:   host,
		engine: engine,
	}
}

// CreateLinkFilter creates a link filter based on the configuration
func (f *FilterFactory) CreateLinkFilter() (ports.LinkFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "nativemsg":
		f.host.Attach(f.engine)
		return f.host, nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}

// NewHost creates the native messaging host over the process stdio pair.
func NewHost(logger *zap.Logger) *nativemsg.Host {
	return nativemsg.NewHost(os.Stdin, os.Stdout, logger)
}
