// Package projector turns stored history records into display items for the
// history screen and routes deletes back to the store.
package projector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/history"
	"github.com/snaplate/backend/internal/imaging"
	"github.com/snaplate/backend/internal/logging"
	"github.com/snaplate/backend/internal/translate"
)

// DateLayout is a medium date followed by a short time.
const DateLayout = "Jan 2, 2006 at 3:04 PM"

// ThumbnailEdge bounds the longest edge of list thumbnails.
const ThumbnailEdge = 256

var ErrNotFound = errors.New("history item not found")

// DisplayItem is one row of the history screen.
type DisplayItem struct {
	ID            uuid.UUID        `json:"id"`
	Date          time.Time        `json:"date"`
	FormattedDate string           `json:"formatted_date"`
	Image         *imaging.Preview `json:"image,omitempty"`
	Result        translate.Result `json:"result"`
}

// Project maps records to display items, keeping their order. A record whose
// image cannot be decoded gets no preview.
func Project(records []history.Record, loc *time.Location) []DisplayItem {
	if loc == nil {
		loc = time.Local
	}
	items := make([]DisplayItem, 0, len(records))
	for _, rec := range records {
		item := DisplayItem{
			ID:            rec.ID,
			Date:          rec.Timestamp,
			FormattedDate: rec.Timestamp.In(loc).Format(DateLayout),
			Result:        rec.Result(),
		}
		if p, ok := imaging.Decode(rec.ImageData, ThumbnailEdge); ok {
			item.Image = p
		}
		items = append(items, item)
	}
	return items
}

// Projector keeps the last projection of the store in memory.
type Projector struct {
	store  history.Store
	loc    *time.Location
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	items    []DisplayItem
	images   map[uuid.UUID][]byte
	selected *DisplayItem
}

func New(store history.Store, loc *time.Location, logger *zap.SugaredLogger) *Projector {
	return &Projector{
		store:  store,
		loc:    loc,
		logger: logging.OrNop(logger),
		images: make(map[uuid.UUID][]byte),
	}
}

// Refresh re-reads the store and replaces the in-memory projection.
func (p *Projector) Refresh(ctx context.Context) ([]DisplayItem, error) {
	records, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	items := Project(records, p.loc)

	images := make(map[uuid.UUID][]byte, len(records))
	for _, rec := range records {
		if len(rec.ImageData) > 0 {
			images[rec.ID] = rec.ImageData
		}
	}

	p.mu.Lock()
	p.items = items
	p.images = images
	if p.selected != nil {
		p.selected = findItem(items, p.selected.ID)
	}
	p.mu.Unlock()

	return cloneItems(items), nil
}

// Items returns the current projection without touching the store.
func (p *Projector) Items() []DisplayItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneItems(p.items)
}

// SelectForDetail marks the item with id as the one shown in the detail
// view and returns it.
func (p *Projector) SelectForDetail(ctx context.Context, id uuid.UUID) (DisplayItem, error) {
	p.mu.Lock()
	item := findItem(p.items, id)
	p.mu.Unlock()

	if item == nil {
		// The projection may predate the record.
		items, err := p.Refresh(ctx)
		if err != nil {
			return DisplayItem{}, err
		}
		item = findItem(items, id)
		if item == nil {
			return DisplayItem{}, ErrNotFound
		}
	}

	p.mu.Lock()
	p.selected = item
	p.mu.Unlock()
	return *item, nil
}

// Selected returns the item shown in the detail view, if any.
func (p *Projector) Selected() (DisplayItem, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.selected == nil {
		return DisplayItem{}, false
	}
	return *p.selected, true
}

// Image returns the stored bytes of the record's picture.
func (p *Projector) Image(ctx context.Context, id uuid.UUID) ([]byte, error) {
	p.mu.RLock()
	data, ok := p.images[id]
	p.mu.RUnlock()
	if ok {
		return data, nil
	}

	if _, err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	data, ok = p.images[id]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Delete removes the record and re-projects, so the next read no longer
// contains it. Deleting an unknown id is not an error.
func (p *Projector) Delete(ctx context.Context, id uuid.UUID) ([]DisplayItem, error) {
	if err := p.store.DeleteByID(ctx, id); err != nil {
		return nil, err
	}
	p.logger.Infow("history record deleted", "record", id)
	return p.Refresh(ctx)
}

func findItem(items []DisplayItem, id uuid.UUID) *DisplayItem {
	for i := range items {
		if items[i].ID == id {
			item := items[i]
			return &item
		}
	}
	return nil
}

func cloneItems(items []DisplayItem) []DisplayItem {
	out := make([]DisplayItem, len(items))
	copy(out, items)
	return out
}
