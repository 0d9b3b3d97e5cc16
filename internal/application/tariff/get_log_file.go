package tariff

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type GetLogFileInput struct {
	LogID string
}

// GetLogFileOutput is not a JSON view. The transport streams Data as a
// file download under FileName.
type GetLogFileOutput struct {
	FileName string
	Data     []byte
}

type GetLogFile interface {
	Execute(ctx context.Context, in GetLogFileInput) (GetLogFileOutput, error)
}

type logFileGetter interface {
	GetFile(ctx context.Context, id string) (string, []byte, error)
}

type getLogFile struct {
	logs logFileGetter
}

func NewGetLogFile(logs logFileGetter) GetLogFile {
	return &getLogFile{logs: logs}
}

func (uc *getLogFile) Execute(ctx context.Context, in GetLogFileInput) (GetLogFileOutput, error) {
	if !idPattern.MatchString(in.LogID) {
		return GetLogFileOutput{}, ErrInvalidLogID
	}

	name, data, err := uc.logs.GetFile(ctx, in.LogID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GetLogFileOutput{}, ErrLogNotFound
		}
		return GetLogFileOutput{}, fmt.Errorf("%w: %v", ErrGetLogFile, err)
	}
	if len(data) == 0 {
		return GetLogFileOutput{}, fmt.Errorf("%w: no source file stored", ErrLogNotFound)
	}
	if name == "" {
		name = "import-source"
	}
	return GetLogFileOutput{FileName: name, Data: data}, nil
}
