package tariff_test

import (
	"context"
	"errors"
	"testing"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

// testLogID is a valid id for a stored import log.
const testLogID = "6f9619ff-8b86-4d01-b42d-00cf4fc964ff"

type fakeLogFileGetter struct {
	name string
	data []byte
	err  error
}

func (f *fakeLogFileGetter) GetFile(ctx context.Context, id string) (string, []byte, error) {
	return f.name, f.data, f.err
}

func TestGetLogFileReturnsStoredBytes(t *testing.T) {
	t.Parallel()

	uc := app.NewGetLogFile(&fakeLogFileGetter{name: "tarif.csv", data: []byte("barcode;price\n")})

	out, err := uc.Execute(context.Background(), app.GetLogFileInput{LogID: testLogID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.FileName != "tarif.csv" || string(out.Data) != "barcode;price\n" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestGetLogFileNameFallback(t *testing.T) {
	t.Parallel()

	uc := app.NewGetLogFile(&fakeLogFileGetter{data: []byte("x")})

	out, err := uc.Execute(context.Background(), app.GetLogFileInput{LogID: testLogID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.FileName != "import-source" {
		t.Fatalf("unexpected fallback name: %s", out.FileName)
	}
}

func TestGetLogFileMissing(t *testing.T) {
	t.Parallel()

	uc := app.NewGetLogFile(&fakeLogFileGetter{err: domain.ErrNotFound})
	if _, err := uc.Execute(context.Background(), app.GetLogFileInput{LogID: testLogID}); !errors.Is(err, app.ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}

	// A log that never kept its source bytes reads as missing too.
	uc = app.NewGetLogFile(&fakeLogFileGetter{name: "tarif.csv"})
	if _, err := uc.Execute(context.Background(), app.GetLogFileInput{LogID: testLogID}); !errors.Is(err, app.ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}

	if _, err := uc.Execute(context.Background(), app.GetLogFileInput{LogID: "99"}); !errors.Is(err, app.ErrInvalidLogID) {
		t.Fatalf("expected ErrInvalidLogID, got %v", err)
	}
}
