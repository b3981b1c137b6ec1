package fridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"fridges/internal/cooking"
	"fridges/internal/scanning"
)

// Service handles fridge operations
type Service struct {
	store   Store
	scanner scanning.Scanner
	cook    cooking.Generator
	archive Archive
}

// NewService creates a new Service; generator and archive may be nil when
// those features are not configured
func NewService(store Store, scanner scanning.Scanner, generator cooking.Generator, archive Archive) *Service {
	return &Service{
		store:   store,
		scanner: scanner,
		cook:    generator,
		archive: archive,
	}
}

// Scan runs one receipt image through the scanner and reconciles the
// extracted items into the user's fridge. Individual bad records are skipped
// and reported in the result. When records parse but none validate, the
// partial result comes back alongside ErrNoValidItems so callers can report
// the reasons. Model, parse, and store failures surface as errors.
func (s *Service) Scan(ctx context.Context, uid string, imageData []byte, contentType string, dryRun bool) (*ScanResult, error) {
	raw, err := s.scanner.ScanReceipt(ctx, imageData, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"uid", uid,
			"content_type", contentType,
			"file_size", len(imageData),
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	records, err := scanning.ParseItems(raw)
	if err != nil {
		slog.Error("Failed to parse model response", "uid", uid, "error", err)
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	result := &ScanResult{UID: uid, Items: []Item{}, Rejected: []Rejection{}, DryRun: dryRun}
	for _, record := range records {
		item, err := ValidateItem(record)
		if err != nil {
			slog.Debug("Rejected item record", "uid", uid, "reason", err)
			result.Rejected = append(result.Rejected, Rejection{Raw: record, Reason: err.Error()})
			continue
		}
		result.Items = append(result.Items, item)
	}

	if len(result.Items) == 0 {
		return result, fmt.Errorf("%w (%d records rejected)", ErrNoValidItems, len(result.Rejected))
	}

	doc, err := s.store.Load(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		doc = NewDocument(uid)
	} else if err != nil {
		return nil, fmt.Errorf("loading fridge: %w", err)
	}

	updated, summary, err := Reconcile(doc, result.Items)
	if err != nil {
		return nil, fmt.Errorf("reconciling items: %w", err)
	}
	result.Summary = summary
	result.Document = updated

	if dryRun {
		slog.Info("Dry run, skipping save",
			"uid", uid,
			"added", len(summary.Added),
			"updated", len(summary.Updated),
		)
		return result, nil
	}

	if err := s.store.Save(ctx, uid, updated); err != nil {
		return nil, fmt.Errorf("saving fridge: %w", err)
	}

	if s.archive != nil {
		if _, err := s.archive.Store(uid, contentType, imageData); err != nil {
			// Archival is best effort; the fridge is already updated
			slog.Warn("Failed to archive receipt image", "uid", uid, "error", err)
		}
	}

	slog.Info("Scan complete",
		"uid", uid,
		"added", len(summary.Added),
		"updated", len(summary.Updated),
		"rejected", len(result.Rejected),
	)
	return result, nil
}

// Contents returns the stored document for a user; ErrNotFound when the user
// has no fridge yet
func (s *Service) Contents(ctx context.Context, uid string) (*Document, error) {
	doc, err := s.store.Load(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("loading fridge: %w", err)
	}
	return doc, nil
}

// ListFridges returns all stored documents
func (s *Service) ListFridges(ctx context.Context) ([]*Document, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing fridges: %w", err)
	}
	return docs, nil
}

// SuggestRecipes asks the generator for recipe ideas from the current fridge
// contents; ErrEmptyFridge when there is nothing to cook with
func (s *Service) SuggestRecipes(ctx context.Context, uid string) (string, error) {
	if s.cook == nil {
		return "", fmt.Errorf("no recipe generator configured")
	}

	doc, err := s.store.Load(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("loading fridge: %w", err)
	}
	if len(doc.Items) == 0 {
		return "", ErrEmptyFridge
	}

	ingredients := make([]cooking.Ingredient, 0, len(doc.Items))
	for name, entry := range doc.Items {
		ingredients = append(ingredients, cooking.Ingredient{Name: name, Quantity: entry.Quantity})
	}
	// Stable prompt order
	sort.Slice(ingredients, func(i, j int) bool { return ingredients[i].Name < ingredients[j].Name })

	recipes, err := s.cook.GenerateRecipes(ctx, ingredients)
	if err != nil {
		return "", fmt.Errorf("generating recipes: %w", err)
	}
	return recipes, nil
}
