package remote

import (
	"fmt"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

// Options carries the deployment-level switches shared by every backend
// the factory builds.
type Options struct {
	// EnableSFTP gates the ssh-based backend for installations that
	// forbid outbound ssh.
	EnableSFTP bool

	// TokenSaver receives refreshed Google Drive access tokens.
	TokenSaver TokenSaver
}

type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

func (f *Factory) ForProvider(p tariff.Provider) (tariff.Backend, error) {
	switch p.Protocol {
	case tariff.ProtocolFTP:
		return newFTPBackend(p), nil
	case tariff.ProtocolSFTP:
		if !f.opts.EnableSFTP {
			return nil, fmt.Errorf("%w: sftp disabled in configuration", tariff.ErrUnsupportedProtocol)
		}
		return newSFTPBackend(p), nil
	case tariff.ProtocolIMAP:
		return newIMAPBackend(p), nil
	case tariff.ProtocolHTTP:
		return newHTTPBackend(p), nil
	case tariff.ProtocolLocal:
		return newLocalBackend(p), nil
	case tariff.ProtocolGDrive:
		return newGDriveBackend(p, f.opts.TokenSaver), nil
	default:
		return nil, fmt.Errorf("%w: %s", tariff.ErrUnsupportedProtocol, p.Protocol)
	}
}
