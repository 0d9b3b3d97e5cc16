package tariff

import (
	"fmt"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolFTP    Protocol = "ftp"
	ProtocolSFTP   Protocol = "sftp"
	ProtocolIMAP   Protocol = "imap"
	ProtocolHTTP   Protocol = "http"
	ProtocolLocal  Protocol = "local"
	ProtocolGDrive Protocol = "gdrive"
)

const (
	defaultFilePattern   = "*"
	defaultPriceColumn   = "Prix de vente"
	defaultCSVDelimiter  = ";"
	defaultDecimalSep    = "."
	defaultTimeout       = 60 * time.Second
	defaultMaxUIDScan    = 200
	defaultMaxPreview    = 500
	maxDelimiterLen      = 5
)

// Provider is the configuration of one remote tariff source. The import
// core reads it per operation; it never owns or mutates it except for the
// reporting fields (last connection status) and the Drive token set.
type Provider struct {
	ID       string
	Name     string
	Active   bool
	Protocol Protocol

	Host           string
	Port           int
	Username       string
	Password       string
	TimeoutSeconds int

	FTPPassive bool
	FTPUseTLS  bool

	SFTPHostKeyFingerprint string
	SFTPPrivateKey         string
	SFTPPassphrase         string

	IMAPUseSSL         bool
	IMAPSearchCriteria string
	IMAPMarkSeen       bool
	IMAPMoveProcessed  bool
	IMAPMoveError      bool
	MaxUIDScan         int

	URL         string
	URLUsername string
	URLPassword string

	LocalPath string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveAccessToken  string
	GDriveTokenExpiry  *time.Time
	GDriveFolderID     string
	GDriveAuthState    string

	RemoteDirIn        string
	RemoteDirProcessed string
	RemoteDirError     string
	FilePattern        string
	ExcludePattern     string

	CSVEncoding      string
	CSVDelimiter     string
	CSVHasHeader     bool
	DecimalSeparator string
	BarcodeColumns   string
	PriceColumn      string

	AutoProcess            bool
	ScheduleEveryMinutes   int
	MaxFilesPerRun         int
	MaxPreview             int
	ClearDuplicateBarcodes bool

	LastConnectionStatus string
	LastError            string
	LastRunAt            *time.Time
}

// CSVParams is the reader configuration derived from a provider.
type CSVParams struct {
	Delimiter        string
	HasHeader        bool
	DecimalSeparator string
	Encoding         string
}

func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// EffectivePort returns the configured port, or the protocol default.
func (p Provider) EffectivePort() int {
	if p.Port > 0 {
		return p.Port
	}
	switch p.Protocol {
	case ProtocolFTP:
		return 21
	case ProtocolSFTP:
		return 22
	case ProtocolIMAP:
		if p.IMAPUseSSL {
			return 993
		}
		return 143
	}
	return 0
}

func (p Provider) EffectiveFilePattern() string {
	if strings.TrimSpace(p.FilePattern) == "" {
		return defaultFilePattern
	}
	return p.FilePattern
}

func (p Provider) EffectiveMaxUIDScan() int {
	if p.MaxUIDScan <= 0 {
		return defaultMaxUIDScan
	}
	return p.MaxUIDScan
}

func (p Provider) EffectiveMaxPreview() int {
	if p.MaxPreview <= 0 {
		return defaultMaxPreview
	}
	return p.MaxPreview
}

// BarcodeCandidates returns the configured barcode column names, in
// priority order, with blanks removed.
func (p Provider) BarcodeCandidates() []string {
	parts := strings.Split(p.BarcodeColumns, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if c := strings.TrimSpace(part); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (p Provider) PriceColumnName() string {
	if c := strings.TrimSpace(p.PriceColumn); c != "" {
		return c
	}
	return defaultPriceColumn
}

func (p Provider) CSVParams() (CSVParams, error) {
	delimiter := p.CSVDelimiter
	if delimiter == "" {
		delimiter = defaultCSVDelimiter
	}
	if len(delimiter) > maxDelimiterLen {
		return CSVParams{}, fmt.Errorf("csv delimiter can contain at most %d characters", maxDelimiterLen)
	}
	sep := p.DecimalSeparator
	if sep == "" {
		sep = defaultDecimalSep
	}
	return CSVParams{
		Delimiter:        delimiter,
		HasHeader:        p.CSVHasHeader,
		DecimalSeparator: sep,
		Encoding:         strings.TrimSpace(p.CSVEncoding),
	}, nil
}

// Validate checks the fields the provider's protocol requires before any
// connection can be attempted.
func (p Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("provider name is required")
	}
	switch p.Protocol {
	case ProtocolFTP, ProtocolSFTP, ProtocolIMAP:
		if strings.TrimSpace(p.Host) == "" {
			return fmt.Errorf("%s provider requires a host", p.Protocol)
		}
		if strings.TrimSpace(p.Username) == "" {
			return fmt.Errorf("%s provider requires a username", p.Protocol)
		}
	case ProtocolHTTP:
		if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
			return fmt.Errorf("http provider requires an http:// or https:// url")
		}
	case ProtocolLocal:
		if strings.TrimSpace(p.LocalPath) == "" {
			return fmt.Errorf("local provider requires a base path")
		}
	case ProtocolGDrive:
		if strings.TrimSpace(p.GDriveClientID) == "" || strings.TrimSpace(p.GDriveClientSecret) == "" {
			return fmt.Errorf("gdrive provider requires oauth client credentials")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, string(p.Protocol))
	}
	return nil
}
