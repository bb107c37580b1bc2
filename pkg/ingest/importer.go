package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scoutalgo/clover/pkg/catalog"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/tracing"
)

const maxErrorSamples = 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ImportStats summarizes one import
type ImportStats struct {
	Source       string   `json:"source"`
	Read         int      `json:"read"`
	Imported     int      `json:"imported"`
	Duplicates   int      `json:"duplicates"`
	Invalid      int      `json:"invalid"`
	Errors       int      `json:"errors"`
	ErrorSamples []string `json:"error_samples,omitempty"`
}

func (s *ImportStats) sample(err error) {
	if len(s.ErrorSamples) < maxErrorSamples {
		s.ErrorSamples = append(s.ErrorSamples, err.Error())
	}
}

// Importer loads source exports into the catalog. Every new listing gets a
// fresh single-member canonical product.
type Importer struct {
	store    catalog.Store
	registry *Registry
	logger   ectologger.Logger
	now      func() time.Time
}

func NewImporter(store catalog.Store, registry *Registry, logger ectologger.Logger) *Importer {
	return &Importer{
		store:    store,
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ImportFile imports a JSON array of records exported from source
func (i *Importer) ImportFile(ctx context.Context, source, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return i.Import(ctx, source, f)
}

// Import decodes a JSON array from r one record at a time. Bad records are
// counted and skipped; a malformed document stops the import.
func (i *Importer) Import(ctx context.Context, source string, r io.Reader) (*ImportStats, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Importer.Import")
	defer span.End()

	adapter, err := i.registry.Lookup(source)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read %s export: %w", source, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("read %s export: expected a JSON array", source)
	}

	stats := &ImportStats{Source: source}
	log := i.logger.WithContext(ctx).WithField("source", source)

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return stats, fmt.Errorf("decode record %d: %w", stats.Read+1, err)
		}
		stats.Read++

		if err := i.importRecord(ctx, adapter, rec); err != nil {
			switch {
			case errors.Is(err, catalog.ErrDuplicate):
				stats.Duplicates++
			case errors.Is(err, ErrMissingField), errors.As(err, new(validator.ValidationErrors)):
				stats.Invalid++
				stats.sample(fmt.Errorf("record %d: %w", stats.Read, err))
			default:
				stats.Errors++
				stats.sample(fmt.Errorf("record %d: %w", stats.Read, err))
				log.WithError(err).Warnf("Failed to import record %d", stats.Read)
			}
			continue
		}
		stats.Imported++
	}

	log.WithFields(map[string]any{
		"read":       stats.Read,
		"imported":   stats.Imported,
		"duplicates": stats.Duplicates,
		"invalid":    stats.Invalid,
		"errors":     stats.Errors,
	}).Info("Import finished")

	return stats, nil
}

func (i *Importer) importRecord(ctx context.Context, adapter Adapter, rec Record) error {
	l, err := adapter.Adapt(rec)
	if err != nil {
		return err
	}

	existing, err := i.store.FindListing(ctx, l.Source, l.SourceNativeID)
	switch {
	case err == nil && existing != nil:
		return catalog.ErrDuplicate
	case err != nil && !errors.Is(err, catalog.ErrNotFound):
		return err
	}

	l.ID = uuid.New().String()
	l.CanonicalID = uuid.New().String()
	l.IngestedAt = i.now()

	if err := validate.Struct(l); err != nil {
		return err
	}

	return i.store.CreateListing(ctx, l, models.NewProductForListing(l.CanonicalID, l))
}
